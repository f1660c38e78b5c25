package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardcast/internal/compositor"
	"cardcast/internal/encoding"
	"cardcast/internal/logging"
)

// FrameObserver is notified after each frame reaches the sink.
type FrameObserver func(sessionID string, tick compositor.Tick)

// Recorder owns the single capture slot.
type Recorder struct {
	store    ArtifactStore
	sinks    encoding.Factory
	streams  StreamFactory
	pacer    func() compositor.Pacer
	observer FrameObserver
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	active *Session
	last   *Session
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithStreamFactory replaces SurfaceStream.
func WithStreamFactory(factory StreamFactory) Option {
	return func(r *Recorder) {
		if factory != nil {
			r.streams = factory
		}
	}
}

// WithPacer sets the frame pacing for new sessions. The default paces frames
// in real time.
func WithPacer(newPacer func() compositor.Pacer) Option {
	return func(r *Recorder) {
		if newPacer != nil {
			r.pacer = newPacer
		}
	}
}

// WithFrameObserver registers a per-frame hook.
func WithFrameObserver(observer FrameObserver) Option {
	return func(r *Recorder) {
		r.observer = observer
	}
}

// NewRecorder builds a recorder that stores artifacts in store and encodes
// with sinks.
func NewRecorder(store ArtifactStore, sinks encoding.Factory, logger *slog.Logger, opts ...Option) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("capture: artifact store is required")
	}
	if sinks == nil {
		return nil, errors.New("capture: sink factory is required")
	}
	r := &Recorder{
		store:   store,
		sinks:   sinks,
		streams: SurfaceStream,
		pacer:   func() compositor.Pacer { return compositor.NewRealtimePacer() },
		now:     time.Now,
		logger:  logging.NewComponentLogger(logger, "capture"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start begins a new session. It fails with ErrSessionActive while another
// session is recording and with a validation error for malformed requests;
// every other failure is reported through cb.
func (r *Recorder) Start(ctx context.Context, req Request, cb Callbacks) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Blend == "" {
		req.Blend = compositor.DefaultBlendMode
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrSessionActive
	}
	session := newSession(r, uuid.NewString(), req, cb)
	r.active = session
	r.last = session
	r.mu.Unlock()

	go session.run(ctx)
	return session, nil
}

// Active returns the recording session, or nil.
func (r *Recorder) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Last returns the most recently started session, or nil.
func (r *Recorder) Last() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) release(s *Session) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
}
