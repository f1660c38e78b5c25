package overlay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// FrameSource yields overlay frames by render frame index.
type FrameSource interface {
	FrameAt(index int) (image.Image, error)
	Close() error
}

// Options describes the render target the frames are prepared for.
type Options struct {
	Width        int
	Height       int
	FPS          int
	FFmpegBinary string
	Logger       *slog.Logger
}

func (o Options) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("overlay target must have positive size, got %dx%d", o.Width, o.Height)
	}
	if o.FPS <= 0 {
		return errors.New("overlay frame rate must be positive")
	}
	return nil
}

// Kind is the decoder chosen for an overlay file.
type Kind string

const (
	KindVideo Kind = "video"
	KindGIF   Kind = "gif"
	KindStill Kind = "still"
)

// Sniff inspects the leading bytes of path to pick a decoder.
func Sniff(path string) (Kind, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open overlay: %w", err)
	}
	defer file.Close()

	head := make([]byte, 16)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read overlay header: %w", err)
	}
	return sniffBytes(head[:n]), nil
}

func sniffBytes(head []byte) Kind {
	switch {
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return KindGIF
	case bytes.HasPrefix(head, []byte("\x89PNG\r\n\x1a\n")):
		return KindStill
	case bytes.HasPrefix(head, []byte{0xff, 0xd8, 0xff}):
		return KindStill
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")):
		return KindStill
	default:
		return KindVideo
	}
}

// Open chooses a FrameSource for the overlay file at path.
func Open(ctx context.Context, path string, opts Options) (FrameSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("overlay path is required")
	}
	kind, err := Sniff(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindGIF:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open overlay: %w", err)
		}
		defer file.Close()
		return NewGIFSource(bufio.NewReader(file), opts)
	case KindStill:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open overlay: %w", err)
		}
		defer file.Close()
		img, _, err := image.Decode(bufio.NewReader(file))
		if err != nil {
			return nil, fmt.Errorf("decode overlay image: %w", err)
		}
		return NewStaticSource(scaleTo(img, opts.Width, opts.Height))
	default:
		return NewFFmpegSource(ctx, path, opts)
	}
}

// StaticSource loops over a fixed list of frames, one per render frame.
type StaticSource struct {
	frames []image.Image
}

func NewStaticSource(frames ...image.Image) (*StaticSource, error) {
	if len(frames) == 0 {
		return nil, errors.New("static overlay needs at least one frame")
	}
	return &StaticSource{frames: frames}, nil
}

func (s *StaticSource) FrameAt(index int) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("negative frame index %d", index)
	}
	return s.frames[index%len(s.frames)], nil
}

func (s *StaticSource) Len() int { return len(s.frames) }

func (s *StaticSource) Close() error { return nil }

// scaleTo resamples img to w x h. Images already at that size are returned as is.
func scaleTo(img image.Image, w, h int) image.Image {
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
