package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"cardcast/internal/config"
	"cardcast/internal/deps"
	"cardcast/internal/encoding"
	"cardcast/internal/generate"
)

// CheckGenerator verifies that the generation endpoint answers. It uses a
// 10-second timeout and a single attempt.
func CheckGenerator(ctx context.Context, cfg config.Generator) Result {
	const name = "Generator"
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return Result{Name: name, Detail: "missing base url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := generate.NewClient(generate.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		TimeoutSeconds: 10,
	})
	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	detail := "Reachable"
	if strings.TrimSpace(cfg.APIKey) == "" {
		detail = "Reachable (no api key configured)"
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckEncoders confirms ffmpeg can encode the configured container. A build
// missing only the audio encoder passes with a warning: exports without a
// soundtrack still work.
func CheckEncoders(ctx context.Context, cfg *config.Config) Result {
	const name = "Encoders"
	stream := encoding.Stream{
		Width:      cfg.Recording.Width,
		Height:     cfg.Recording.Height,
		FPS:        cfg.Recording.FPS,
		Duration:   cfg.RecordingDuration(),
		Container:  cfg.Recording.Container,
		Soundtrack: "soundtrack",
	}
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	withAudio := encoding.CheckCodec(checkCtx, cfg.FFmpegBinary(), stream)
	if withAudio == nil {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", cfg.Recording.Container, stream.MIMEType())}
	}
	stream.Soundtrack = ""
	if err := encoding.CheckCodec(checkCtx, cfg.FFmpegBinary(), stream); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s video only: %v", cfg.Recording.Container, withAudio)}
}

// CheckSystemDeps evaluates the external binaries for the given config.
// The server and the CLI status command share this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (generator unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (generator unreachable)"
	}
	return err.Error()
}
