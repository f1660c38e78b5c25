package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/gif"
	"io"
	"time"

	"golang.org/x/image/draw"
)

// defaultGIFDelay replaces zero frame delays, matching common viewer behaviour.
const defaultGIFDelay = 100 * time.Millisecond

// GIFSource plays an animated GIF on the render timeline.
type GIFSource struct {
	frames []image.Image
	ends   []time.Duration
	total  time.Duration
	fps    int
}

// NewGIFSource decodes every frame of an animated GIF, applying frame
// disposal, and scales the result to the render target.
func NewGIFSource(r io.Reader, opts Options) (*GIFSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	anim, err := gif.DecodeAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode gif overlay: %w", err)
	}
	if len(anim.Image) == 0 {
		return nil, errors.New("gif overlay has no frames")
	}

	bounds := image.Rect(0, 0, anim.Config.Width, anim.Config.Height)
	if bounds.Empty() {
		bounds = anim.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)
	src := &GIFSource{fps: opts.FPS}
	for i, paletted := range anim.Image {
		var restore *image.RGBA
		disposal := byte(0)
		if i < len(anim.Disposal) {
			disposal = anim.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			restore = image.NewRGBA(bounds)
			draw.Draw(restore, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, paletted.Bounds(), paletted, paletted.Bounds().Min, draw.Over)
		src.frames = append(src.frames, scaleTo(cloneRGBA(canvas), opts.Width, opts.Height))

		delay := defaultGIFDelay
		if i < len(anim.Delay) && anim.Delay[i] > 0 {
			delay = time.Duration(anim.Delay[i]) * 10 * time.Millisecond
		}
		src.total += delay
		src.ends = append(src.ends, src.total)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, paletted.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = restore
		}
	}
	return src, nil
}

// FrameAt returns the GIF frame visible at index / fps seconds, looping.
func (g *GIFSource) FrameAt(index int) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("negative frame index %d", index)
	}
	at := time.Duration(index) * time.Second / time.Duration(g.fps)
	at %= g.total
	for i, end := range g.ends {
		if at < end {
			return g.frames[i], nil
		}
	}
	return g.frames[len(g.frames)-1], nil
}

// Len is the number of distinct GIF frames.
func (g *GIFSource) Len() int { return len(g.frames) }

// LoopDuration is the length of one pass through the animation.
func (g *GIFSource) LoopDuration() time.Duration { return g.total }

func (g *GIFSource) Close() error { return nil }

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
