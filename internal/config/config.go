package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	BlobDir string `toml:"blob_dir"`
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Recording contains the render loop and encoder settings for one capture session.
type Recording struct {
	// DurationSeconds is the fixed recording length; the session stops once
	// elapsed render time reaches it.
	DurationSeconds float64 `toml:"duration_seconds"`
	FPS             int     `toml:"fps"`
	Width           int     `toml:"width"`
	Height          int     `toml:"height"`
	// Container selects the output format: "webm" (VP9/Opus) or "mp4" (H.264/AAC).
	Container     string `toml:"container"`
	BlendMode     string `toml:"blend_mode"`
	ChunkBytes    int    `toml:"chunk_bytes"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	VerifyOutput  bool   `toml:"verify_output"`
}

// Generator contains configuration for the hosted generative content service.
type Generator struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key" env:"CARDCAST_GENERATOR_API_KEY"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// API contains configuration for the HTTP export server.
type API struct {
	Bind      string `toml:"bind"`
	Token     string `toml:"token" env:"CARDCAST_API_TOKEN"`
	// AssetRoot is the only directory exports submitted over HTTP may read
	// local files from. Empty disables local file references for them.
	AssetRoot string `toml:"asset_root"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" env:"CARDCAST_NTFY_TOPIC"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cardcast.
//
// Configuration sections by subsystem:
//   - Paths: data, blob, scratch and log directories
//   - Recording: frame geometry, timing, container and ffmpeg binaries
//   - Generator: generative content endpoint used for scenes and overlays
//   - API: HTTP export server bind address and bearer token
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Recording     Recording     `toml:"recording"`
	Generator     Generator     `toml:"generator"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cardcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/cardcast/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cardcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the recorder and server write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.BlobDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the export history database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "exports.db")
}

// LockPath returns the lock file guarding a single export server per data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "cardcast.lock")
}

// RecordingDuration returns the fixed capture length.
func (c *Config) RecordingDuration() time.Duration {
	return time.Duration(c.Recording.DurationSeconds * float64(time.Second))
}

// FrameInterval returns the time between two rendered frames.
func (c *Config) FrameInterval() time.Duration {
	if c.Recording.FPS <= 0 {
		return time.Second / defaultRecordingFPS
	}
	return time.Second / time.Duration(c.Recording.FPS)
}

// FFmpegBinary returns the ffmpeg executable used for decoding overlays and encoding captures.
func (c *Config) FFmpegBinary() string {
	if value := strings.TrimSpace(c.Recording.FFmpegBinary); value != "" {
		return value
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for artifact verification.
func (c *Config) FFprobeBinary() string {
	if value := strings.TrimSpace(c.Recording.FFprobeBinary); value != "" {
		return value
	}
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
