package exportsvc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"cardcast/internal/assets"
	"cardcast/internal/blobstore"
	"cardcast/internal/capture"
	"cardcast/internal/config"
	"cardcast/internal/encoding"
	"cardcast/internal/exports"
	"cardcast/internal/logging"
	"cardcast/internal/media/ffprobe"
	"cardcast/internal/notifications"
	"cardcast/internal/overlay"
	"cardcast/internal/services"
)

// Verifier checks a finished artifact on disk.
type Verifier func(ctx context.Context, path string, want ffprobe.Expectation) error

// FFprobeVerifier inspects path with binary and compares it with want.
func FFprobeVerifier(binary string) Verifier {
	return func(ctx context.Context, path string, want ffprobe.Expectation) error {
		result, err := ffprobe.Inspect(ctx, binary, path)
		if err != nil {
			return err
		}
		return ffprobe.Verify(result, want)
	}
}

// Service orchestrates exports.
type Service struct {
	cfg      *config.Config
	history  *exports.Store
	blobs    *blobstore.Store
	resolver *assets.Resolver
	recorder *capture.Recorder
	notifier notifications.Service
	verify   Verifier
	download func(blobstore.Blob) string
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithRecorder replaces the ffmpeg-backed recorder.
func WithRecorder(recorder *capture.Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

// WithResolver replaces the default asset resolver.
func WithResolver(resolver *assets.Resolver) Option {
	return func(s *Service) { s.resolver = resolver }
}

// WithNotifier replaces the config-derived notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithVerifier sets the artifact check. Nil disables verification.
func WithVerifier(verify Verifier) Option {
	return func(s *Service) { s.verify = verify }
}

// WithDownloadURL makes notifications link to the artifact, for example
// through the HTTP server's /blobs route.
func WithDownloadURL(link func(blobstore.Blob) string) Option {
	return func(s *Service) { s.download = link }
}

// New wires a Service. Exports left recording by a previous process are
// marked failed.
func New(cfg *config.Config, history *exports.Store, blobs *blobstore.Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil || history == nil || blobs == nil {
		return nil, errors.New("exportsvc: config, history and blob store are required")
	}
	logger = logging.NewComponentLogger(logger, "exports")
	s := &Service{
		cfg:      cfg,
		history:  history,
		blobs:    blobs,
		notifier: notifications.NewService(cfg),
		logger:   logger,
	}
	if cfg.Recording.VerifyOutput {
		s.verify = FFprobeVerifier(cfg.FFprobeBinary())
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = assets.NewResolver(logger, assets.WithBlobs(blobs))
	}
	if s.recorder == nil {
		sinks := encoding.FFmpegFactory(encoding.FFmpegOptions{
			Binary:     cfg.FFmpegBinary(),
			ChunkBytes: cfg.Recording.ChunkBytes,
			Logger:     logger,
		})
		recorder, err := capture.NewRecorder(blobs, sinks, logger)
		if err != nil {
			return nil, err
		}
		s.recorder = recorder
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	reset, err := history.ResetStuck(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("reset interrupted exports: %w", err)
	}
	if reset > 0 {
		logging.WarnWithContext(logger, "interrupted exports marked failed", "exports_reset",
			logging.Int64("count", reset),
			logging.String(logging.FieldImpact, "those exports have no artifact"),
		)
	}
	return s, nil
}

// Recorder exposes the capture recorder for status views.
func (s *Service) Recorder() *capture.Recorder { return s.recorder }

// History exposes the export history store.
func (s *Service) History() *exports.Store { return s.history }

// Blobs returns the artifact store.
func (s *Service) Blobs() *blobstore.Store { return s.blobs }

// Close cancels running exports and waits for them to be recorded as failed.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// Export runs spec to completion. Cancelling ctx aborts the recording.
func (s *Service) Export(ctx context.Context, spec Spec) (Outcome, error) {
	job, err := s.Begin(ctx, spec)
	if err != nil {
		return Outcome{}, err
	}
	outcome, err := job.Wait(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		job.Cancel()
		<-job.Done()
		return job.outcome, job.err
	}
	return outcome, err
}

// Begin prepares assets and starts recording. ctx bounds preparation only;
// the recording itself runs until it finishes, the job is cancelled, or the
// service is closed.
func (s *Service) Begin(ctx context.Context, spec Spec) (*Job, error) {
	resolved, err := spec.resolve(s.cfg)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	prep, err := s.prepare(ctx, runCtx, resolved)
	if err != nil {
		cancel()
		return nil, err
	}

	job := &Job{done: make(chan struct{}), cancel: cancel}
	session, err := s.recorder.Start(runCtx, capture.Request{
		Title:      resolved.Title,
		Scene:      prep.scene,
		Overlay:    prep.overlay,
		Blend:      resolved.blend,
		Soundtrack: prep.soundtrack,
		Width:      resolved.Width,
		Height:     resolved.Height,
		FPS:        resolved.FPS,
		Duration:   resolved.duration,
		Container:  resolved.Container,
	}, capture.Callbacks{})
	if err != nil {
		cancel()
		prep.release()
		if errors.Is(err, capture.ErrSessionActive) {
			return nil, services.Wrap(services.ErrConflict, "exportsvc", "start", "a recording session is already active", err)
		}
		return nil, err
	}
	job.Session = session

	record, err := s.history.Create(context.WithoutCancel(ctx), exports.NewRecord{
		SessionID:     session.ID(),
		Title:         resolved.Title,
		SceneRef:      prep.sceneRef,
		OverlayRef:    prep.overlayRef,
		SoundtrackRef: prep.soundtrackRef,
		Container:     resolved.Container,
	})
	if err != nil {
		cancel()
		<-session.Done()
		prep.release()
		return nil, fmt.Errorf("record export: %w", err)
	}
	job.Export = record

	logger := s.logger.With(
		logging.String(logging.FieldSessionID, session.ID()),
		logging.Int64(logging.FieldExportID, record.ID),
	)
	logger.Info("export started",
		logging.String(logging.FieldEventType, "export_start"),
		logging.String("title", record.Title),
		logging.Int("expected_frames", session.Snapshot().ExpectedFrames),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.finish(job, resolved, prep, logger)
	}()
	return job, nil
}

func (s *Service) finish(job *Job, spec resolvedSpec, prep *prepared, logger *slog.Logger) {
	defer close(job.done)
	<-job.Session.Done()
	result, err := job.Session.Wait(context.Background())
	prep.release()

	ctx := context.Background()
	if err == nil && s.verify != nil {
		if verr := s.verifyArtifact(ctx, spec, result); verr != nil {
			if rerr := s.blobs.Revoke(result.URL); rerr != nil {
				logging.WarnWithContext(logger, "revoke unverified artifact failed", "blob_revoke",
					logging.Error(rerr),
					logging.String(logging.FieldImpact, "unverified artifact left in blob store"),
				)
			}
			err = services.Wrap(services.ErrExternalTool, "exportsvc", "verify", "artifact failed verification", verr)
		}
	}

	id := job.Export.ID
	if err != nil {
		if merr := s.history.MarkFailed(ctx, id, err.Error()); merr != nil {
			logging.ErrorWithContext(logger, "record export failure", "history_update", logging.Error(merr))
		}
		logging.ErrorWithContext(logger, "export failed", "export_error", logging.Error(err))
		s.notify(ctx, logger, notifications.EventExportFailed, notifications.Payload{
			"title": job.Export.Title,
			"error": err,
		})
	} else {
		completion := exports.Completion{
			BlobURL:         result.URL,
			MIMEType:        result.MIMEType,
			SizeBytes:       result.Size,
			Frames:          result.Frames,
			DurationSeconds: result.Duration.Seconds(),
		}
		if merr := s.history.MarkDone(ctx, id, completion); merr != nil {
			logging.ErrorWithContext(logger, "record export completion", "history_update", logging.Error(merr))
		}
		logger.Info("export complete",
			logging.String(logging.FieldEventType, "export_complete"),
			logging.String("url", result.URL),
			logging.Int("frames", result.Frames),
			logging.Duration("duration", result.Duration),
		)
		payload := notifications.Payload{
			"title":    job.Export.Title,
			"frames":   result.Frames,
			"duration": result.Duration.String(),
			"url":      result.URL,
		}
		if s.download != nil {
			payload["download"] = s.download(result.Blob)
		}
		s.notify(ctx, logger, notifications.EventExportCompleted, payload)
	}

	record, gerr := s.history.Get(ctx, id)
	if gerr != nil || record == nil {
		record = job.Export
	}
	job.outcome = Outcome{Export: record, Result: result}
	job.err = err
}

func (s *Service) verifyArtifact(ctx context.Context, spec resolvedSpec, result capture.Result) error {
	if encoding.BaseMIMEType(result.MIMEType) == encoding.MemoryMIMEType {
		return nil
	}
	blob, err := s.blobs.Stat(result.URL)
	if err != nil {
		return err
	}
	verifyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.verify(verifyCtx, blob.Path, ffprobe.Expectation{
		Width:           spec.Width,
		Height:          spec.Height,
		FPS:             spec.FPS,
		DurationSeconds: result.Duration.Seconds(),
		HasAudio:        result.HasAudio,
	})
}

func (s *Service) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := s.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_error",
			logging.Error(err),
			logging.String(logging.FieldImpact, "export outcome not pushed"),
		)
	}
}

type prepared struct {
	scene         image.Image
	overlay       overlay.FrameSource
	soundtrack    string
	sceneRef      string
	overlayRef    string
	soundtrackRef string
	cleanups      []func()
}

func (p *prepared) release() {
	if p.overlay != nil {
		_ = p.overlay.Close()
	}
	for i := len(p.cleanups) - 1; i >= 0; i-- {
		p.cleanups[i]()
	}
}

// prepare fetches assets under ctx. Decoders that outlive preparation, such
// as an ffmpeg overlay process, are bound to runCtx.
func (s *Service) prepare(ctx, runCtx context.Context, spec resolvedSpec) (_ *prepared, err error) {
	prep := &prepared{}
	defer func() {
		if err != nil {
			prep.release()
		}
	}()

	scene, err := s.resolver.Fetch(ctx, spec.Scene)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	prep.sceneRef = describeRef(scene)
	img, err := assets.DecodeImage(scene)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "exportsvc", "scene", "", err)
	}
	prep.scene = img

	workDir := filepath.Join(s.cfg.Paths.WorkDir, "assets")
	if spec.Overlay != "" {
		asset, err := s.resolver.Fetch(ctx, spec.Overlay)
		if err != nil {
			return nil, fmt.Errorf("overlay: %w", err)
		}
		prep.overlayRef = describeRef(asset)
		path, cleanup, err := assets.Materialize(asset, workDir)
		if err != nil {
			return nil, fmt.Errorf("overlay: %w", err)
		}
		prep.cleanups = append(prep.cleanups, cleanup)
		source, err := overlay.Open(runCtx, path, overlay.Options{
			Width:        spec.Width,
			Height:       spec.Height,
			FPS:          spec.FPS,
			FFmpegBinary: s.cfg.FFmpegBinary(),
			Logger:       s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("overlay: %w", err)
		}
		prep.overlay = source
	}

	if spec.Soundtrack != "" {
		asset, err := s.resolver.Fetch(ctx, spec.Soundtrack)
		if err != nil {
			return nil, fmt.Errorf("soundtrack: %w", err)
		}
		prep.soundtrackRef = describeRef(asset)
		path, cleanup, err := assets.Materialize(asset, workDir)
		if err != nil {
			return nil, fmt.Errorf("soundtrack: %w", err)
		}
		prep.cleanups = append(prep.cleanups, cleanup)
		prep.soundtrack = path
	}
	return prep, nil
}

// describeRef keeps history rows small: data URIs are summarized.
func describeRef(asset assets.Asset) string {
	if len(asset.Ref) > 5 && asset.Ref[:5] == "data:" {
		return fmt.Sprintf("data:%s (%d bytes)", asset.MIMEType, len(asset.Data))
	}
	return asset.Ref
}
