package overlay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"cardcast/internal/logging"
	"cardcast/internal/services"
)

// FFmpegSource decodes a video clip with ffmpeg, looping it indefinitely and
// resampling it to the render size and frame rate. Frames must be requested
// in non-decreasing order; repeated indexes return the cached frame.
type FFmpegSource struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	reader  *bufio.Reader
	stderr  lockedBuffer
	width   int
	height  int
	next    int
	current *image.RGBA
	closed  bool
}

// NewFFmpegSource starts decoding path.
func NewFFmpegSource(ctx context.Context, path string, opts Options) (*FFmpegSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	binary := strings.TrimSpace(opts.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}

	decodeCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(decodeCtx, binary, DecodeArgs(path, opts)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	src := &FFmpegSource{
		cmd:    cmd,
		cancel: cancel,
		reader: bufio.NewReaderSize(stdout, opts.Width*opts.Height*4),
		width:  opts.Width,
		height: opts.Height,
	}
	cmd.Stderr = &src.stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, services.Wrap(services.ErrExternalTool, "overlay", "start ffmpeg", "ffmpeg could not be launched", err)
	}
	logging.NewComponentLogger(opts.Logger, "overlay").Debug("overlay decoder started",
		logging.String("path", path),
		logging.Int("width", opts.Width),
		logging.Int("height", opts.Height),
		logging.Int("fps", opts.FPS),
	)
	return src, nil
}

// DecodeArgs returns the ffmpeg arguments used to decode an overlay clip.
func DecodeArgs(path string, opts Options) []string {
	filter := fmt.Sprintf("scale=%d:%d,fps=%d", opts.Width, opts.Height, opts.FPS)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-stream_loop", "-1",
		"-i", path,
		"-an",
		"-vf", filter,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-r", strconv.Itoa(opts.FPS),
		"pipe:1",
	}
}

func (f *FFmpegSource) FrameAt(index int) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, errors.New("overlay source closed")
	}
	if index < 0 {
		return nil, fmt.Errorf("negative frame index %d", index)
	}
	if index < f.next-1 {
		return nil, fmt.Errorf("overlay frame %d already passed (at %d)", index, f.next-1)
	}
	for f.next <= index {
		frame := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
		if _, err := io.ReadFull(f.reader, frame.Pix); err != nil {
			return nil, f.decodeError(err)
		}
		f.current = frame
		f.next++
	}
	return f.current, nil
}

func (f *FFmpegSource) decodeError(err error) error {
	detail := strings.TrimSpace(f.stderr.String())
	if detail == "" {
		detail = "decoder stopped producing frames"
	}
	return services.Wrap(services.ErrExternalTool, "overlay", "decode frame", detail, err)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Close stops the decoder.
func (f *FFmpegSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.cancel()
	_ = f.cmd.Wait()
	return nil
}
