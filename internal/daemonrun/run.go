package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gogpu/gg"

	"cardcast/internal/blobstore"
	"cardcast/internal/config"
	"cardcast/internal/daemon"
	"cardcast/internal/deps"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/logging"
	"cardcast/internal/preflight"
	"cardcast/internal/services"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Ready, when set, receives the bound API address once the server listens.
	Ready func(addr string)
}

// Run starts the export server and blocks until ctx ends or a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logHub := logging.NewStreamHub(4096)
	logger, err := logging.NewFromConfigWithStream(cfg, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Development {
		logger = logger.With(logging.Bool("development", true))
	}
	gg.SetLogger(logging.NewComponentLogger(logger, "gg"))

	logDependencySnapshot(logger, cfg)
	if err := checkReadiness(signalCtx, logger, cfg); err != nil {
		return err
	}
	pidPath := filepath.Join(cfg.Paths.DataDir, "cardcast.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	history, err := exports.Open(cfg)
	if err != nil {
		logger.Error("open export history", logging.Error(err))
		return err
	}
	defer history.Close()

	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		return err
	}

	origin := "http://" + cfg.API.Bind
	svc, err := exportsvc.New(cfg, history, blobs, logger,
		exportsvc.WithDownloadURL(func(b blobstore.Blob) string { return origin + "/blobs/" + b.ID }))
	if err != nil {
		return fmt.Errorf("create export service: %w", err)
	}

	d, err := daemon.New(cfg, svc, logHub, logger)
	if err != nil {
		svc.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "server start failed", "server_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind and that no other server uses this data directory"),
		)
		return err
	}
	if opts.Ready != nil {
		opts.Ready(d.Addr())
	}

	<-signalCtx.Done()
	logger.Info("cardcast server shutting down", logging.String(logging.FieldEventType, "server_shutdown"))
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("generator_key_present", strings.TrimSpace(cfg.Generator.APIKey) != ""),
		logging.Bool("verify_output", cfg.Recording.VerifyOutput),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("api_token_set", cfg.API.Token != ""),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
		if status.Version != "" {
			attrs = append(attrs, logging.String(key+"_version", status.Version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "required dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldErrorHint, "install the binary or set recording.ffmpeg_binary"),
		)
	}
}

// checkReadiness runs the preflight checks and refuses to serve when any
// of them fails.
func checkReadiness(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	failed := preflight.Failed(preflight.RunAll(ctx, cfg))
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for _, result := range failed {
		names = append(names, result.Name)
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	return services.Wrap(services.ErrConfiguration, "daemonrun", "preflight",
		"readiness checks failed: "+strings.Join(names, ", "), nil)
}
