package exportsvc_test

import (
	"context"
	"encoding/base64"
	"errors"
	"image/color"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"cardcast/internal/blobstore"
	"cardcast/internal/capture"
	"cardcast/internal/compositor"
	"cardcast/internal/config"
	"cardcast/internal/encoding"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/media/ffprobe"
	"cardcast/internal/notifications"
	"cardcast/internal/services"
	"cardcast/internal/testsupport"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.last = payload
	return nil
}

func (r *recordingNotifier) snapshot() []notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Event(nil), r.events...)
}

type fixture struct {
	cfg      *config.Config
	history  *exports.Store
	blobs    *blobstore.Store
	notifier *recordingNotifier
	svc      *exportsvc.Service
}

func newFixture(t *testing.T, pacer func() compositor.Pacer, opts ...exportsvc.Option) *fixture {
	t.Helper()
	return newFixtureWith(t, encoding.MemoryFactory(), pacer, nil, opts...)
}

func newFixtureWith(t *testing.T, sinks encoding.Factory, pacer func() compositor.Pacer, copts []capture.Option, opts ...exportsvc.Option) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Recording.VerifyOutput = false
	history := testsupport.MustOpenStore(t, cfg)
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	if pacer == nil {
		pacer = func() compositor.Pacer { return compositor.ImmediatePacer{} }
	}
	copts = append([]capture.Option{capture.WithPacer(pacer)}, copts...)
	recorder, err := capture.NewRecorder(blobs, sinks, nil, copts...)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	notifier := &recordingNotifier{}
	opts = append([]exportsvc.Option{
		exportsvc.WithRecorder(recorder),
		exportsvc.WithNotifier(notifier),
	}, opts...)
	svc, err := exportsvc.New(cfg, history, blobs, nil, opts...)
	if err != nil {
		t.Fatalf("exportsvc.New: %v", err)
	}
	t.Cleanup(svc.Close)
	return &fixture{cfg: cfg, history: history, blobs: blobs, notifier: notifier, svc: svc}
}

func pngURI(t *testing.T, c color.RGBA) string {
	t.Helper()
	data := testsupport.PNGBytes(t, testsupport.SolidImage(8, 8, c))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestExportRecordsHistoryAndArtifact(t *testing.T) {
	f := newFixture(t, nil, exportsvc.WithDownloadURL(func(b blobstore.Blob) string {
		return "http://cards.local/blobs/" + b.ID
	}))

	outcome, err := f.svc.Export(context.Background(), exportsvc.Spec{
		Title:   "happy birthday",
		Scene:   pngURI(t, color.RGBA{R: 0x30, A: 0xff}),
		Overlay: pngURI(t, color.RGBA{G: 0x80, A: 0xff}),
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	rec := outcome.Export
	if rec.Status != exports.StatusDone || rec.BlobURL != outcome.Result.URL {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.Frames != 10 || rec.DurationSeconds != 1 {
		t.Fatalf("expected 10 frames over 1s, got %d over %v", rec.Frames, rec.DurationSeconds)
	}
	if !strings.HasPrefix(rec.SceneRef, "data:image/png (") || rec.OverlayRef == "" || rec.SoundtrackRef != "" {
		t.Fatalf("unexpected asset refs %q %q %q", rec.SceneRef, rec.OverlayRef, rec.SoundtrackRef)
	}

	data, blob, err := f.blobs.Read(rec.BlobURL)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if blob.FileName != "Happy-Birthday.bin" {
		t.Fatalf("unexpected download name %q", blob.FileName)
	}
	info, err := encoding.ParseMemoryContainer(data)
	if err != nil {
		t.Fatalf("ParseMemoryContainer: %v", err)
	}
	if info.Frames != 10 || info.HasAudio {
		t.Fatalf("unexpected container %+v", info)
	}

	if events := f.notifier.snapshot(); len(events) != 1 || events[0] != notifications.EventExportCompleted {
		t.Fatalf("unexpected notifications %v", events)
	}
	if f.notifier.last["download"] != "http://cards.local/blobs/"+blob.ID {
		t.Fatalf("unexpected download link %v", f.notifier.last["download"])
	}
}

func TestExportFailureIsRecorded(t *testing.T) {
	unsupported := func(context.Context, *compositor.Surface, capture.Request) (encoding.Stream, error) {
		return encoding.Stream{}, errors.New("capture stream unavailable")
	}
	f := newFixtureWith(t, encoding.MemoryFactory(), nil,
		[]capture.Option{capture.WithStreamFactory(unsupported)},
		exportsvc.WithVerifier(func(context.Context, string, ffprobe.Expectation) error {
			t.Error("verifier must not run for failed recordings")
			return nil
		}),
	)

	_, err := f.svc.Export(context.Background(), exportsvc.Spec{Title: "Broken", Scene: pngURI(t, color.RGBA{A: 0xff})})
	if !errors.Is(err, capture.ErrInitialization) {
		t.Fatalf("expected initialization error, got %v", err)
	}

	records, err := f.history.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].Status != exports.StatusError {
		t.Fatalf("unexpected history %+v", records)
	}
	if !strings.Contains(records[0].ErrorMessage, "capture stream unavailable") {
		t.Fatalf("expected descriptive error message, got %q", records[0].ErrorMessage)
	}
	if events := f.notifier.snapshot(); len(events) != 1 || events[0] != notifications.EventExportFailed {
		t.Fatalf("unexpected notifications %v", events)
	}
}

func TestExportRejectsBadSpec(t *testing.T) {
	f := newFixture(t, nil)
	cases := []exportsvc.Spec{
		{},
		{Scene: "x", Blend: "dodge"},
		{Scene: "x", Container: "avi"},
		{Scene: "x", FPS: -1},
		{Scene: "x", Width: 2_000_000_000, Height: 2_000_000_000},
		{Scene: "x", Width: 31},
		{Scene: "x", FPS: 100_000},
		{Scene: "x", DurationSeconds: 1e9},
		{Scene: "x", DurationSeconds: -1},
	}
	for _, spec := range cases {
		_, err := f.svc.Begin(context.Background(), spec)
		if services.HTTPStatus(err) != http.StatusBadRequest {
			t.Fatalf("spec %+v: expected validation error, got %v", spec, err)
		}
	}
	if _, err := f.svc.Begin(context.Background(), exportsvc.Spec{Scene: "data:text/plain,hello"}); err == nil {
		t.Fatal("expected undecodable scene to fail")
	}
}

type holdPacer struct{ release chan struct{} }

func (holdPacer) Begin() {}

func (p holdPacer) Wait(ctx context.Context, offset time.Duration) error {
	if offset == 0 {
		return nil
	}
	select {
	case <-p.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestBeginRejectsOverlappingExports(t *testing.T) {
	hold := holdPacer{release: make(chan struct{})}
	f := newFixture(t, func() compositor.Pacer { return hold })
	scene := pngURI(t, color.RGBA{B: 0xff, A: 0xff})

	job, err := f.svc.Begin(context.Background(), exportsvc.Spec{Scene: scene})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	_, err = f.svc.Begin(context.Background(), exportsvc.Spec{Scene: scene})
	if !errors.Is(err, capture.ErrSessionActive) || services.HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	close(hold.release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcome, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if outcome.Export.Title != "Untitled card" || outcome.Export.Status != exports.StatusDone {
		t.Fatalf("unexpected export %+v", outcome.Export)
	}
}

func TestCancelledExportIsMarkedFailed(t *testing.T) {
	hold := holdPacer{release: make(chan struct{})}
	f := newFixture(t, func() compositor.Pacer { return hold })

	job, err := f.svc.Begin(context.Background(), exportsvc.Spec{Scene: pngURI(t, color.RGBA{A: 0xff})})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	job.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	outcome, err := job.Wait(ctx)
	if !errors.Is(err, capture.ErrRuntime) {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if outcome.Export.Status != exports.StatusError {
		t.Fatalf("expected error status, got %s", outcome.Export.Status)
	}
}

func TestVerificationFailureRevokesArtifact(t *testing.T) {
	var checked ffprobe.Expectation
	// Verification is skipped for the in-process container, so use a sink
	// that reports a real container type.
	webm := func(ctx context.Context, stream encoding.Stream) (encoding.Sink, error) {
		inner, err := encoding.NewMemorySink(stream)
		if err != nil {
			return nil, err
		}
		return webmSink{inner}, nil
	}
	f := newFixtureWith(t, webm, nil, nil, exportsvc.WithVerifier(func(_ context.Context, path string, want ffprobe.Expectation) error {
		if !strings.HasSuffix(path, ".webm") {
			t.Errorf("expected blob path with webm extension, got %q", path)
		}
		checked = want
		return errors.New("expected 1 video stream, found 0")
	}))

	outcome, err := f.svc.Export(context.Background(), exportsvc.Spec{Scene: pngURI(t, color.RGBA{A: 0xff})})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected verification failure, got %v", err)
	}
	if checked.Width != 32 || checked.Height != 48 || checked.FPS != 10 || checked.DurationSeconds != 1 || checked.HasAudio {
		t.Fatalf("unexpected expectation %+v", checked)
	}
	if _, err := f.blobs.Stat(outcome.Result.URL); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected artifact to be revoked, got %v", err)
	}
	if outcome.Export.Status != exports.StatusError {
		t.Fatalf("expected error status, got %s", outcome.Export.Status)
	}
}

type webmSink struct{ *encoding.MemorySink }

func (webmSink) MIMEType() string { return "video/webm;codecs=vp9" }

func TestNewResetsInterruptedExports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	history := testsupport.MustOpenStore(t, cfg)
	stuck := testsupport.NewExport(t, history, "stale-session", "Stale")
	blobs, err := blobstore.New(cfg.Paths.BlobDir)
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	svc, err := exportsvc.New(cfg, history, blobs, nil)
	if err != nil {
		t.Fatalf("exportsvc.New: %v", err)
	}
	defer svc.Close()

	rec, err := history.Get(context.Background(), stuck.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != exports.StatusError || rec.ErrorMessage != exports.InterruptedReason {
		t.Fatalf("expected interrupted export to be failed, got %+v", rec)
	}
}
