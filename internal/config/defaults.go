package config

const (
	defaultDataDir                  = "~/.local/share/cardcast"
	defaultBlobDir                  = "~/.local/share/cardcast/blobs"
	defaultWorkDir                  = "~/.cache/cardcast/work"
	defaultLogDir                   = "~/.local/share/cardcast/logs"
	defaultRecordingDurationSeconds = 10.0
	defaultRecordingFPS             = 30
	defaultRecordingWidth           = 720
	defaultRecordingHeight          = 1280
	defaultRecordingContainer       = "webm"
	defaultRecordingBlendMode       = "screen"
	defaultRecordingChunkBytes      = 64 * 1024
	defaultGeneratorBaseURL         = "http://127.0.0.1:8787/v1/generate"
	defaultGeneratorTimeoutSeconds  = 120
	defaultAPIBind                  = "127.0.0.1:7811"
	defaultNotificationsTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	maxRecordingDurationSeconds     = 120.0
	maxRecordingFPS                 = 120
	maxRecordingDimension           = 4096
	minRecordingChunkBytes          = 4 * 1024
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			BlobDir: defaultBlobDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Recording: Recording{
			DurationSeconds: defaultRecordingDurationSeconds,
			FPS:             defaultRecordingFPS,
			Width:           defaultRecordingWidth,
			Height:          defaultRecordingHeight,
			Container:       defaultRecordingContainer,
			BlendMode:       defaultRecordingBlendMode,
			ChunkBytes:      defaultRecordingChunkBytes,
			VerifyOutput:    true,
		},
		Generator: Generator{
			BaseURL:        defaultGeneratorBaseURL,
			TimeoutSeconds: defaultGeneratorTimeoutSeconds,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationsTimeout,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
