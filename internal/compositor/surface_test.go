package compositor_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"cardcast/internal/compositor"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

func near(got, want uint8, tolerance int) bool {
	d := int(got) - int(want)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

func newSurface(t *testing.T) *compositor.Surface {
	t.Helper()
	surface, err := compositor.NewSurface(32, 48)
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	t.Cleanup(func() { _ = surface.Dispose() })
	return surface
}

func TestComposeStretchesSceneToCanvas(t *testing.T) {
	surface := newSurface(t)
	scene := solid(8, 8, color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff})
	if err := surface.SetScene(scene); err != nil {
		t.Fatalf("SetScene: %v", err)
	}

	frame, err := surface.Compose(nil, compositor.BlendScreen)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if frame.Bounds() != image.Rect(0, 0, 32, 48) {
		t.Fatalf("unexpected frame bounds %v", frame.Bounds())
	}
	center := frame.RGBAAt(16, 24)
	if !near(center.R, 0x40, 2) || center.A != 0xff {
		t.Fatalf("expected scene color at center, got %+v", center)
	}
	corner := frame.RGBAAt(31, 47)
	if corner.A != 0xff {
		t.Fatalf("expected canvas fully covered, corner %+v", corner)
	}
	if scene.Pix[0] != 0x40 {
		t.Fatal("scene image was mutated")
	}
}

func TestComposeScreenBrightensAndRestoresBlending(t *testing.T) {
	surface := newSurface(t)
	if err := surface.SetScene(solid(4, 4, color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff})); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	overlay := solid(4, 4, color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})

	screened, err := surface.Compose(overlay, compositor.BlendScreen)
	if err != nil {
		t.Fatalf("Compose screen: %v", err)
	}
	px := screened.RGBAAt(16, 24)
	if px.R <= 0x80 {
		t.Fatalf("screen blend should brighten past both layers, got %+v", px)
	}

	normal, err := surface.Compose(overlay, compositor.BlendNormal)
	if err != nil {
		t.Fatalf("Compose normal: %v", err)
	}
	if got := normal.RGBAAt(16, 24); !near(got.R, 0x80, 2) {
		t.Fatalf("normal blend should show the overlay, got %+v", got)
	}

	bare, err := surface.Compose(nil, compositor.BlendScreen)
	if err != nil {
		t.Fatalf("Compose bare: %v", err)
	}
	if got := bare.RGBAAt(16, 24); !near(got.R, 0x40, 2) {
		t.Fatalf("previous frame leaked into next frame, got %+v", got)
	}
	if surface.Frames() != 3 {
		t.Fatalf("expected 3 frames, got %d", surface.Frames())
	}
}

func TestComposeRequiresScene(t *testing.T) {
	surface := newSurface(t)
	if _, err := surface.Compose(nil, compositor.BlendScreen); err == nil {
		t.Fatal("expected error without scene")
	}
	if err := surface.SetScene(image.NewRGBA(image.Rect(0, 0, 0, 0))); err == nil {
		t.Fatal("expected error for empty scene")
	}
}

func TestDisposeIsIdempotentAndBlocksRendering(t *testing.T) {
	surface, err := compositor.NewSurface(16, 16)
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	if err := surface.SetScene(solid(2, 2, color.RGBA{A: 0xff})); err != nil {
		t.Fatalf("SetScene: %v", err)
	}
	if err := surface.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := surface.Dispose(); err != nil {
		t.Fatalf("second Dispose: %v", err)
	}
	if !surface.Disposed() {
		t.Fatal("expected disposed surface")
	}
	if _, err := surface.Compose(nil, compositor.BlendNormal); !errors.Is(err, compositor.ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	if err := surface.SetScene(solid(2, 2, color.RGBA{A: 0xff})); !errors.Is(err, compositor.ErrDisposed) {
		t.Fatalf("expected ErrDisposed from SetScene, got %v", err)
	}
}

func TestNewSurfaceRejectsBadDimensions(t *testing.T) {
	if _, err := compositor.NewSurface(0, 10); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := compositor.NewSurface(2_000_000_000, 2_000_000_000); err == nil {
		t.Fatal("expected error for oversized canvas")
	}
	if _, err := compositor.NewSurface(compositor.MaxDimension+2, 64); err == nil {
		t.Fatal("expected error above MaxDimension")
	}
}

func TestParseBlendMode(t *testing.T) {
	cases := map[string]compositor.BlendMode{
		"":         compositor.BlendScreen,
		"Screen":   compositor.BlendScreen,
		" normal ": compositor.BlendNormal,
		"MULTIPLY": compositor.BlendMultiply,
		"overlay":  compositor.BlendOverlay,
	}
	for input, want := range cases {
		got, err := compositor.ParseBlendMode(input)
		if err != nil {
			t.Fatalf("ParseBlendMode(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseBlendMode(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := compositor.ParseBlendMode("dodge"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLoopStopsWhenFrameFuncDeclines(t *testing.T) {
	loop, err := compositor.NewLoop(30, compositor.ImmediatePacer{})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	duration := 10 * time.Second
	var last compositor.Tick
	rendered := 0
	ticks, err := loop.Run(context.Background(), func(tick compositor.Tick) (bool, error) {
		if tick.Elapsed >= duration {
			return false, nil
		}
		if tick.Index != rendered {
			t.Fatalf("tick index %d out of order (expected %d)", tick.Index, rendered)
		}
		rendered++
		last = tick
		return true, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rendered != 300 {
		t.Fatalf("expected 300 rendered frames, got %d", rendered)
	}
	if ticks != 301 {
		t.Fatalf("expected 301 ticks including the stop tick, got %d", ticks)
	}
	if want := compositor.FrameCount(duration, 30); rendered != want {
		t.Fatalf("FrameCount mismatch: rendered %d, FrameCount %d", rendered, want)
	}
	if last.Elapsed >= duration {
		t.Fatalf("rendered a frame at or past the duration: %v", last.Elapsed)
	}
}

func TestLoopPropagatesFrameErrorsAndCancellation(t *testing.T) {
	loop, err := compositor.NewLoop(60, compositor.ImmediatePacer{})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	boom := errors.New("boom")
	ticks, err := loop.Run(context.Background(), func(tick compositor.Tick) (bool, error) {
		if tick.Index == 2 {
			return false, boom
		}
		return true, nil
	})
	if !errors.Is(err, boom) || ticks != 3 {
		t.Fatalf("expected boom after 3 ticks, got %v after %d", err, ticks)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ticks, err = loop.Run(ctx, func(tick compositor.Tick) (bool, error) {
		if tick.Index == 4 {
			cancel()
		}
		return true, nil
	})
	if !errors.Is(err, context.Canceled) || ticks != 5 {
		t.Fatalf("expected cancellation after 5 ticks, got %v after %d", err, ticks)
	}
}

func TestRealtimePacerHonorsSchedule(t *testing.T) {
	loop, err := compositor.NewLoop(100, compositor.NewRealtimePacer())
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	start := time.Now()
	if _, err := loop.Run(context.Background(), func(tick compositor.Tick) (bool, error) {
		return tick.Index < 5, nil
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("realtime pacing finished too quickly: %v", elapsed)
	}
}

func TestFrameCount(t *testing.T) {
	cases := []struct {
		duration time.Duration
		fps      int
		want     int
	}{
		{10 * time.Second, 30, 300},
		{1500 * time.Millisecond, 24, 36},
		{time.Second + time.Millisecond, 10, 11},
		{0, 30, 0},
		{time.Duration(math.MaxInt64), 120, math.MaxInt},
		{time.Duration(1e9) * time.Second, 100000, math.MaxInt},
	}
	for _, tc := range cases {
		if got := compositor.FrameCount(tc.duration, tc.fps); got != tc.want {
			t.Fatalf("FrameCount(%v, %d) = %d, want %d", tc.duration, tc.fps, got, tc.want)
		}
	}
}
