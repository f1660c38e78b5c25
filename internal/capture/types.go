package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"cardcast/internal/blobstore"
	"cardcast/internal/compositor"
	"cardcast/internal/encoding"
	"cardcast/internal/overlay"
	"cardcast/internal/services"
)

// State is a session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateDone      State = "done"
	StateError     State = "error"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Request describes one recording.
type Request struct {
	Title string
	// Scene is drawn stretched to the canvas under every frame.
	Scene image.Image
	// Overlay is optional; nil records the scene alone.
	Overlay overlay.FrameSource
	Blend   compositor.BlendMode
	// Soundtrack is an optional local audio file mixed into the output.
	Soundtrack string
	Width      int
	Height     int
	FPS        int
	Duration   time.Duration
	Container  string
}

// Recording limits applied to every request.
const (
	MaxDuration  = 120 * time.Second
	MaxFPS       = 120
	MaxDimension = compositor.MaxDimension
)

// Validate checks the request before a session is created.
func (r Request) Validate() error {
	var problems []string
	if r.Scene == nil || r.Scene.Bounds().Empty() {
		problems = append(problems, "scene image is required")
	}
	problems = append(problems, limitProblems(r.Width, r.Height, r.FPS, r.Duration)...)
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "capture", "validate request", strings.Join(problems, "; "), nil)
	}
	return nil
}

// CheckLimits validates recording geometry and timing without a scene, for
// callers that must reject a request before fetching its assets.
func CheckLimits(width, height, fps int, duration time.Duration) error {
	if problems := limitProblems(width, height, fps, duration); len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "capture", "check limits", strings.Join(problems, "; "), nil)
	}
	return nil
}

func limitProblems(width, height, fps int, duration time.Duration) []string {
	var problems []string
	switch {
	case width <= 0 || height <= 0:
		problems = append(problems, fmt.Sprintf("canvas size must be positive (got %dx%d)", width, height))
	case width > MaxDimension || height > MaxDimension:
		problems = append(problems, fmt.Sprintf("canvas size must be at most %dx%d (got %dx%d)", MaxDimension, MaxDimension, width, height))
	case width%2 != 0 || height%2 != 0:
		// yuv420p encoders reject odd dimensions.
		problems = append(problems, fmt.Sprintf("canvas size must be even (got %dx%d)", width, height))
	}
	if fps <= 0 || fps > MaxFPS {
		problems = append(problems, fmt.Sprintf("frame rate must be between 1 and %d (got %d)", MaxFPS, fps))
	}
	if duration <= 0 || duration > MaxDuration {
		problems = append(problems, fmt.Sprintf("duration must be positive and at most %s (got %s)", MaxDuration, duration))
	}
	return problems
}

// ExpectedFrames is the number of frames a full recording renders.
func (r Request) ExpectedFrames() int {
	return compositor.FrameCount(r.Duration, r.FPS)
}

// StartInfo is passed to OnRecordingStart.
type StartInfo struct {
	SessionID      string
	StartedAt      time.Time
	ExpectedFrames int
	MIMEType       string
	HasAudio       bool
}

// Result is passed to OnRecordingComplete.
type Result struct {
	SessionID  string
	URL        string
	MIMEType   string
	Size       int64
	Frames     int
	Duration   time.Duration
	HasAudio   bool
	StartedAt  time.Time
	FinishedAt time.Time
	Blob       blobstore.Blob
}

// Callbacks observe a session. Nil callbacks are skipped. They run on the
// session goroutine and must not block for long.
//
// Exactly one of OnRecordingComplete or OnRecordingError fires per session.
// OnRecordingStart fires at most once, only after the capture stream and sink
// were acquired: an initialization failure reports OnRecordingError without
// a preceding start, so start and error are not always paired.
type Callbacks struct {
	OnRecordingStart    func(StartInfo)
	OnRecordingComplete func(Result)
	OnRecordingError    func(error)
}

// ArtifactStore persists finished recordings.
type ArtifactStore interface {
	Put(data []byte, mimeType, title string) (blobstore.Blob, error)
}

// StreamFactory acquires the capture stream for a surface.
type StreamFactory func(ctx context.Context, surface *compositor.Surface, req Request) (encoding.Stream, error)

// SurfaceStream is the default StreamFactory. It binds the stream to the
// surface size and attaches the soundtrack when one is set.
func SurfaceStream(ctx context.Context, surface *compositor.Surface, req Request) (encoding.Stream, error) {
	if err := ctx.Err(); err != nil {
		return encoding.Stream{}, err
	}
	if surface == nil || surface.Disposed() {
		return encoding.Stream{}, compositor.ErrDisposed
	}
	bounds := surface.Bounds()
	stream := encoding.Stream{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		FPS:       req.FPS,
		Duration:  req.Duration,
		Container: req.Container,
	}
	if track := strings.TrimSpace(req.Soundtrack); track != "" {
		info, err := os.Stat(track)
		if err != nil {
			return encoding.Stream{}, fmt.Errorf("soundtrack unavailable: %w", err)
		}
		if info.IsDir() {
			return encoding.Stream{}, errors.New("soundtrack is a directory")
		}
		stream.Soundtrack = track
	}
	if err := stream.Validate(); err != nil {
		return encoding.Stream{}, err
	}
	return stream, nil
}
