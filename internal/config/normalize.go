package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRecording()
	c.normalizeGenerator()
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = filepath.Join(c.Paths.DataDir, "blobs")
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRecording() {
	c.Recording.Container = strings.ToLower(strings.TrimSpace(c.Recording.Container))
	if c.Recording.Container == "" {
		c.Recording.Container = defaultRecordingContainer
	}
	c.Recording.BlendMode = strings.ToLower(strings.TrimSpace(c.Recording.BlendMode))
	if c.Recording.BlendMode == "" {
		c.Recording.BlendMode = defaultRecordingBlendMode
	}
	if c.Recording.ChunkBytes == 0 {
		c.Recording.ChunkBytes = defaultRecordingChunkBytes
	}
	c.Recording.FFmpegBinary = strings.TrimSpace(c.Recording.FFmpegBinary)
	c.Recording.FFprobeBinary = strings.TrimSpace(c.Recording.FFprobeBinary)
}

func (c *Config) normalizeGenerator() {
	c.Generator.BaseURL = strings.TrimSpace(c.Generator.BaseURL)
	if c.Generator.BaseURL == "" {
		c.Generator.BaseURL = defaultGeneratorBaseURL
	}
	c.Generator.APIKey = strings.TrimSpace(c.Generator.APIKey)
	c.Generator.Model = strings.TrimSpace(c.Generator.Model)
	if c.Generator.TimeoutSeconds == 0 {
		c.Generator.TimeoutSeconds = defaultGeneratorTimeoutSeconds
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if root := strings.TrimSpace(c.API.AssetRoot); root != "" {
		if expanded, err := expandPath(root); err == nil {
			root = expanded
		}
		c.API.AssetRoot = root
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotificationsTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
