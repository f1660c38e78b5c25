package encoding

import (
	"context"
	"errors"
	"image"
	"sync"
)

var (
	// ErrUnsupportedCodec marks containers or encoders the host cannot produce.
	ErrUnsupportedCodec = errors.New("codec unsupported")
	// ErrSinkClosed is returned when frames arrive after Stop or Abort.
	ErrSinkClosed = errors.New("recorder sink closed")
)

// Events carries sink notifications. Callbacks may run on sink goroutines.
type Events struct {
	OnData  func([]byte)
	OnStop  func()
	OnError func(error)
}

// Sink encodes a stream of frames into one container.
type Sink interface {
	Start(ctx context.Context, events Events) error
	WriteFrame(frame *image.RGBA) error
	// Stop flushes the container and blocks until OnStop or OnError has fired.
	Stop() error
	// Abort tears the sink down without delivering further events.
	Abort()
	MIMEType() string
}

// Factory opens a sink bound to stream.
type Factory func(ctx context.Context, stream Stream) (Sink, error)

// eventGate serializes event delivery and guarantees a single terminal event.
type eventGate struct {
	mu       sync.Mutex
	events   Events
	finished bool
	muted    bool
}

func (g *eventGate) data(chunk []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished || g.muted || g.events.OnData == nil || len(chunk) == 0 {
		return
	}
	g.events.OnData(chunk)
}

func (g *eventGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return
	}
	g.finished = true
	if !g.muted && g.events.OnStop != nil {
		g.events.OnStop()
	}
}

func (g *eventGate) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return
	}
	g.finished = true
	if !g.muted && g.events.OnError != nil {
		g.events.OnError(err)
	}
}

func (g *eventGate) mute() {
	g.mu.Lock()
	g.muted = true
	g.mu.Unlock()
}
