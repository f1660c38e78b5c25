package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cardcast/internal/capture"
	"cardcast/internal/config"
	"cardcast/internal/deps"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/logging"
	"cardcast/internal/preflight"
)

// Daemon serves the export API and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	exports *exportsvc.Service
	hub     *logging.StreamHub

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	DatabasePath  string
	LockFilePath  string
	Active        *capture.Session
	Last          *capture.Session
	ExportCounts  map[exports.Status]int
	Dependencies  []deps.Status
	Checks        []preflight.Result
}

// New constructs a daemon around an export service. hub may be nil, in which
// case the log endpoint returns empty pages.
func New(cfg *config.Config, svc *exportsvc.Service, hub *logging.StreamHub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc == nil {
		return nil, errors.New("daemon requires config and export service")
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		exports:  svc,
		hub:      hub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cardcast server is already running for this data directory")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("cardcast server started",
		logging.String(logging.FieldEventType, "server_start"),
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

// Stop stops serving and releases the instance lock. Running exports keep
// going until Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release server lock", "server_lock",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next server start may report a stale lock"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("cardcast server stopped", logging.String(logging.FieldEventType, "server_stop"))
}

// Close stops the server and aborts in-flight exports, which are recorded as
// failed.
func (d *Daemon) Close() error {
	d.Stop()
	d.exports.Close()
	return nil
}

// Addr returns the bound API address, or "" before Start.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// Status returns the current daemon status including readiness checks.
func (d *Daemon) Status(ctx context.Context) Status {
	recorder := d.exports.Recorder()
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.exports.History().Path(),
		LockFilePath: d.lockPath,
		Active:       recorder.Active(),
		Last:         recorder.Last(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Checks: []preflight.Result{
			preflight.CheckDirectoryAccess("Blob directory", d.cfg.Paths.BlobDir),
			preflight.CheckDirectoryAccess("Work directory", d.cfg.Paths.WorkDir),
			preflight.CheckGeneratorFromConfig(ctx, d.cfg),
			preflight.NotificationsStatus(d.cfg),
		},
	}
	counts, err := d.exports.History().Stats(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "export stats unavailable", "export_stats",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status reports zero export counts"),
		)
	}
	status.ExportCounts = counts
	return status
}
