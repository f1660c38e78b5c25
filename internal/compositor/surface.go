package compositor

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gg"
)

// ErrDisposed is returned when a disposed surface is asked to render.
var ErrDisposed = errors.New("render surface disposed")

// MaxDimension bounds each side of a surface.
const MaxDimension = 4096

// Surface is a fixed-size canvas that composites a scene and an overlay frame.
type Surface struct {
	mu       sync.Mutex
	dc       *gg.Context
	width    int
	height   int
	scene    *gg.ImageBuf
	frames   int
	disposed bool
}

// NewSurface allocates a canvas of the given size.
func NewSurface(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface dimensions must be positive, got %dx%d", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("surface dimensions must be at most %d, got %dx%d", MaxDimension, width, height)
	}
	return &Surface{
		dc:     gg.NewContext(width, height),
		width:  width,
		height: height,
	}, nil
}

// Bounds returns the canvas rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// SetScene installs the base layer. The image is converted once and reused for
// every frame; the source is never mutated.
func (s *Surface) SetScene(scene image.Image) error {
	if scene == nil || scene.Bounds().Empty() {
		return errors.New("scene image is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	s.scene = gg.ImageBufFromImage(scene)
	return nil
}

// Compose renders one frame: scene stretched to the canvas, then overlay (if
// any) stretched on top with mode, then blending restored to normal. The
// returned image is owned by the caller.
func (s *Surface) Compose(overlay image.Image, mode BlendMode) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	if s.scene == nil {
		return nil, errors.New("compose: scene not set")
	}

	w, h := float64(s.width), float64(s.height)
	s.dc.ClearWithColor(gg.Black)
	s.dc.DrawImageEx(s.scene, gg.DrawImageOptions{
		DstWidth:      w,
		DstHeight:     h,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})

	if overlay != nil && !overlay.Bounds().Empty() {
		s.dc.Push()
		s.dc.DrawImageEx(gg.ImageBufFromImage(overlay), gg.DrawImageOptions{
			DstWidth:      w,
			DstHeight:     h,
			Interpolation: gg.InterpBilinear,
			Opacity:       1,
			BlendMode:     mode.ggMode(),
		})
		s.dc.Pop()
	}

	s.frames++
	return s.dc.Image().(*image.RGBA), nil
}

// Frames reports how many frames the surface has composed.
func (s *Surface) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Disposed reports whether Dispose has run.
func (s *Surface) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose releases the drawing context. It is safe to call more than once.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.disposed = true
	s.scene = nil
	return s.dc.Close()
}
