package compositor

import (
	"context"
	"errors"
	"math"
	"time"
)

// Tick describes one scheduled frame. Elapsed is derived from Index so the
// timeline does not depend on scheduler jitter.
type Tick struct {
	Index   int
	Elapsed time.Duration
}

// FrameFunc renders one frame. Returning false stops the loop after this tick.
type FrameFunc func(Tick) (bool, error)

// Pacer decides when each frame is due.
type Pacer interface {
	// Begin marks the start of a run.
	Begin()
	// Wait blocks until offset has elapsed since Begin or ctx ends.
	Wait(ctx context.Context, offset time.Duration) error
}

// RealtimePacer schedules frames against the wall clock. Frames that fall
// behind are rendered immediately without accumulating drift.
type RealtimePacer struct {
	start time.Time
}

func NewRealtimePacer() *RealtimePacer {
	return &RealtimePacer{}
}

func (p *RealtimePacer) Begin() {
	p.start = time.Now()
}

func (p *RealtimePacer) Wait(ctx context.Context, offset time.Duration) error {
	delay := time.Until(p.start.Add(offset))
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ImmediatePacer never waits. Offline renders and tests use it.
type ImmediatePacer struct{}

func (ImmediatePacer) Begin() {}

func (ImmediatePacer) Wait(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Loop drives a FrameFunc at a fixed frame rate.
type Loop struct {
	fps   int
	pacer Pacer
}

// NewLoop returns a loop running at fps frames per second. A nil pacer means
// realtime pacing.
func NewLoop(fps int, pacer Pacer) (*Loop, error) {
	if fps <= 0 {
		return nil, errors.New("frame rate must be positive")
	}
	if pacer == nil {
		pacer = NewRealtimePacer()
	}
	return &Loop{fps: fps, pacer: pacer}, nil
}

// Interval is the nominal time between frames.
func (l *Loop) Interval() time.Duration {
	return time.Second / time.Duration(l.fps)
}

// Offset is the scheduled elapsed time of frame index.
func (l *Loop) Offset(index int) time.Duration {
	return frameOffset(index, l.fps)
}

// Run calls fn once per frame until fn returns false, fn fails, or ctx ends.
// It returns the number of ticks delivered. No tick is delivered after Run
// returns.
func (l *Loop) Run(ctx context.Context, fn FrameFunc) (int, error) {
	if fn == nil {
		return 0, errors.New("frame function is required")
	}
	l.pacer.Begin()
	for index := 0; ; index++ {
		offset := l.Offset(index)
		if err := l.pacer.Wait(ctx, offset); err != nil {
			return index, err
		}
		more, err := fn(Tick{Index: index, Elapsed: offset})
		if err != nil {
			return index + 1, err
		}
		if !more {
			return index + 1, nil
		}
	}
}

// FrameCount is the number of frames a run of duration at fps produces:
// every tick whose elapsed time is still below duration.
func FrameCount(duration time.Duration, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	if int64(duration) > (math.MaxInt64-int64(time.Second))/int64(fps) {
		return math.MaxInt
	}
	scaled := duration * time.Duration(fps)
	return int((scaled + time.Second - 1) / time.Second)
}

func frameOffset(index, fps int) time.Duration {
	return time.Duration(index) * time.Second / time.Duration(fps)
}
