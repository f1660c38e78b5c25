package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"cardcast/internal/compositor"
	"cardcast/internal/encoding"
	"cardcast/internal/logging"
)

// Session is one recording attempt.
type Session struct {
	id       string
	req      Request
	cb       Callbacks
	recorder *Recorder
	logger   *slog.Logger
	done     chan struct{}

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	finishedAt time.Time
	frames     int
	disposed   bool
	result     Result
	err        error
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID             string    `json:"id"`
	State          State     `json:"state"`
	Frames         int       `json:"frames"`
	ExpectedFrames int       `json:"expected_frames"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
	URL            string    `json:"url,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func newSession(r *Recorder, id string, req Request, cb Callbacks) *Session {
	return &Session{
		id:       id,
		req:      req,
		cb:       cb,
		recorder: r,
		logger:   r.logger.With(logging.String(logging.FieldSessionID, id)),
		done:     make(chan struct{}),
		state:    StateIdle,
	}
}

func (s *Session) ID() string { return s.id }

// Done is closed once the session is terminal and its callback has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Frames is the number of frames delivered to the sink so far.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SurfaceDisposed reports whether the render surface has been released.
func (s *Session) SurfaceDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:             s.id,
		State:          s.state,
		Frames:         s.frames,
		ExpectedFrames: s.req.ExpectedFrames(),
		StartedAt:      s.startedAt,
		FinishedAt:     s.finishedAt,
		URL:            s.result.URL,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	return snap
}

// Wait blocks until the session is terminal or ctx ends.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	result, err := s.record(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	s.complete(result)
}

func (s *Session) record(ctx context.Context) (Result, error) {
	req := s.req
	surface, err := compositor.NewSurface(req.Width, req.Height)
	if err != nil {
		return Result{}, initError("allocate render surface", err)
	}
	defer s.dispose(surface)
	if err := surface.SetScene(req.Scene); err != nil {
		return Result{}, initError("load scene", err)
	}

	stream, err := s.recorder.streams(ctx, surface, req)
	if err != nil {
		return Result{}, initError("acquire capture stream", err)
	}
	sink, err := s.recorder.sinks(ctx, stream)
	if err != nil {
		return Result{}, initError("open recorder", err)
	}

	var (
		chunkMu sync.Mutex
		chunks  [][]byte
		size    int
	)
	sinkErr := make(chan error, 1)
	events := encoding.Events{
		OnData: func(chunk []byte) {
			chunkMu.Lock()
			chunks = append(chunks, chunk)
			size += len(chunk)
			chunkMu.Unlock()
		},
		OnError: func(err error) {
			select {
			case sinkErr <- err:
			default:
			}
		},
	}
	if err := sink.Start(ctx, events); err != nil {
		sink.Abort()
		return Result{}, initError("start recorder", err)
	}

	startedAt := s.recorder.now()
	s.mu.Lock()
	s.state = StateRecording
	s.startedAt = startedAt
	s.mu.Unlock()
	s.logger.Info("recording started",
		logging.String(logging.FieldEventType, "recording_start"),
		logging.String("mime_type", sink.MIMEType()),
		logging.Int("width", stream.Width),
		logging.Int("height", stream.Height),
		logging.Int("fps", stream.FPS),
		logging.Duration("duration", req.Duration),
		logging.Bool("audio", stream.HasAudio()),
	)
	if s.cb.OnRecordingStart != nil {
		s.cb.OnRecordingStart(StartInfo{
			SessionID:      s.id,
			StartedAt:      startedAt,
			ExpectedFrames: req.ExpectedFrames(),
			MIMEType:       sink.MIMEType(),
			HasAudio:       stream.HasAudio(),
		})
	}

	loop, err := compositor.NewLoop(req.FPS, s.recorder.pacer())
	if err != nil {
		sink.Abort()
		return Result{}, runtimeError("start render loop", err)
	}
	sampler := logging.NewProgressSampler(25)
	expected := req.ExpectedFrames()
	_, runErr := loop.Run(ctx, func(tick compositor.Tick) (bool, error) {
		select {
		case err := <-sinkErr:
			return false, fmt.Errorf("recorder reported: %w", err)
		default:
		}
		if tick.Elapsed >= req.Duration {
			return false, nil
		}
		var layer image.Image
		if req.Overlay != nil {
			frame, err := req.Overlay.FrameAt(tick.Index)
			if err != nil {
				return false, fmt.Errorf("overlay frame %d: %w", tick.Index, err)
			}
			layer = frame
		}
		frame, err := surface.Compose(layer, req.Blend)
		if err != nil {
			return false, fmt.Errorf("compose frame %d: %w", tick.Index, err)
		}
		if err := sink.WriteFrame(frame); err != nil {
			return false, fmt.Errorf("write frame %d: %w", tick.Index, err)
		}
		s.mu.Lock()
		s.frames++
		s.mu.Unlock()
		if s.recorder.observer != nil {
			s.recorder.observer(s.id, tick)
		}
		if percent := float64(tick.Index+1) * 100 / float64(expected); sampler.ShouldLog(percent, "recording") {
			s.logger.Debug("recording progress", logging.Int("frame", tick.Index+1), logging.Int("expected", expected))
		}
		return true, nil
	})
	if runErr != nil {
		sink.Abort()
		return Result{}, runtimeError("render", runErr)
	}

	if err := sink.Stop(); err != nil {
		return Result{}, runtimeError("finalize recording", err)
	}
	select {
	case err := <-sinkErr:
		return Result{}, runtimeError("finalize recording", err)
	default:
	}

	chunkMu.Lock()
	data := bytes.Join(chunks, nil)
	chunkMu.Unlock()
	if len(data) == 0 || size == 0 {
		return Result{}, runtimeError("finalize recording", errors.New("recorder produced no data"))
	}
	blob, err := s.recorder.store.Put(data, sink.MIMEType(), req.Title)
	if err != nil {
		return Result{}, runtimeError("store artifact", err)
	}

	frames := s.Frames()
	return Result{
		SessionID:  s.id,
		URL:        blob.URL,
		MIMEType:   blob.MIMEType,
		Size:       blob.Size,
		Frames:     frames,
		Duration:   time.Duration(frames) * time.Second / time.Duration(req.FPS),
		HasAudio:   stream.HasAudio(),
		StartedAt:  startedAt,
		FinishedAt: s.recorder.now(),
		Blob:       blob,
	}, nil
}

func (s *Session) dispose(surface *compositor.Surface) {
	if err := surface.Dispose(); err != nil {
		logging.WarnWithContext(s.logger, "render surface dispose failed", "surface_dispose",
			logging.Error(err),
			logging.String(logging.FieldImpact, "surface memory released late"),
		)
	}
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
}

func (s *Session) complete(result Result) {
	s.mu.Lock()
	s.state = StateDone
	s.result = result
	s.finishedAt = result.FinishedAt
	s.mu.Unlock()
	s.recorder.release(s)

	s.logger.Info("recording complete",
		logging.String(logging.FieldEventType, "recording_complete"),
		logging.String("url", result.URL),
		logging.Int("frames", result.Frames),
		logging.Int64("bytes", result.Size),
	)
	if s.cb.OnRecordingComplete != nil {
		s.cb.OnRecordingComplete(result)
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateError
	s.err = err
	s.finishedAt = s.recorder.now()
	s.mu.Unlock()
	s.recorder.release(s)

	logging.ErrorWithContext(s.logger, "recording failed", "recording_error", logging.Error(err))
	if s.cb.OnRecordingError != nil {
		s.cb.OnRecordingError(err)
	}
}
