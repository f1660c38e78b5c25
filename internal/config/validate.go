package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRecording() error {
	r := c.Recording
	if r.DurationSeconds <= 0 {
		return errors.New("recording.duration_seconds must be positive")
	}
	if r.DurationSeconds > maxRecordingDurationSeconds {
		return fmt.Errorf("recording.duration_seconds must be at most %.0f", maxRecordingDurationSeconds)
	}
	if r.FPS <= 0 || r.FPS > maxRecordingFPS {
		return fmt.Errorf("recording.fps must be between 1 and %d", maxRecordingFPS)
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.New("recording.width and recording.height must be positive")
	}
	if r.Width > maxRecordingDimension || r.Height > maxRecordingDimension {
		return fmt.Errorf("recording.width and recording.height must be at most %d", maxRecordingDimension)
	}
	// yuv420p encoders reject odd dimensions.
	if r.Width%2 != 0 || r.Height%2 != 0 {
		return errors.New("recording.width and recording.height must be even")
	}
	switch r.Container {
	case "webm", "mp4":
	default:
		return fmt.Errorf("recording.container: unsupported value %q (use webm or mp4)", r.Container)
	}
	switch r.BlendMode {
	case "normal", "screen", "multiply", "overlay":
	default:
		return fmt.Errorf("recording.blend_mode: unsupported value %q", r.BlendMode)
	}
	if r.ChunkBytes < minRecordingChunkBytes {
		return fmt.Errorf("recording.chunk_bytes must be at least %d", minRecordingChunkBytes)
	}
	return nil
}

func (c *Config) validateGenerator() error {
	parsed, err := url.Parse(c.Generator.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("generator.base_url must be an absolute URL, got %q", c.Generator.BaseURL)
	}
	if c.Generator.TimeoutSeconds <= 0 {
		return errors.New("generator.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
