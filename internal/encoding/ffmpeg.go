package encoding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"cardcast/internal/logging"
	"cardcast/internal/services"
)

const (
	defaultChunkBytes = 64 * 1024
	stderrTailBytes   = 4 * 1024
)

// FFmpegOptions configures FFmpegSink.
type FFmpegOptions struct {
	Binary     string
	ChunkBytes int
	Logger     *slog.Logger
}

// FFmpegSink encodes raw RGBA frames with an ffmpeg child process.
type FFmpegSink struct {
	stream Stream
	codecs codecSet
	opts   FFmpegOptions
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	gate    *eventGate
	done    chan struct{}
	exitErr error
	stderr  *tailBuffer
	closed  bool
	frame   []byte
}

// NewFFmpegSink validates stream and prepares a sink. The process is spawned
// by Start.
func NewFFmpegSink(stream Stream, opts FFmpegOptions) (*FFmpegSink, error) {
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	codecs, err := codecsFor(stream.Container)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.ChunkBytes <= 0 {
		opts.ChunkBytes = defaultChunkBytes
	}
	return &FFmpegSink{
		stream: stream,
		codecs: codecs,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "encoding"),
	}, nil
}

// FFmpegFactory returns a Factory that verifies encoder support before opening
// an FFmpegSink.
func FFmpegFactory(opts FFmpegOptions) Factory {
	return func(ctx context.Context, stream Stream) (Sink, error) {
		if err := CheckCodec(ctx, opts.Binary, stream); err != nil {
			return nil, err
		}
		return NewFFmpegSink(stream, opts)
	}
}

func (s *FFmpegSink) MIMEType() string {
	return s.codecs.mimeType(s.stream.HasAudio())
}

// Args returns the ffmpeg argument list for the sink's stream.
func (s *FFmpegSink) Args() []string {
	st := s.stream
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", st.Width, st.Height),
		"-framerate", strconv.Itoa(st.FPS),
		"-i", "pipe:0",
	}
	if st.HasAudio() {
		args = append(args, "-stream_loop", "-1", "-i", st.Soundtrack)
	}
	args = append(args, "-map", "0:v:0")
	if st.HasAudio() {
		args = append(args, "-map", "1:a:0")
	}
	args = append(args, "-c:v", s.codecs.video, "-pix_fmt", "yuv420p")
	switch s.codecs.container {
	case ContainerMP4:
		args = append(args, "-preset", "veryfast", "-tune", "zerolatency")
	default:
		args = append(args, "-deadline", "realtime", "-cpu-used", "8", "-b:v", "2M")
	}
	if st.HasAudio() {
		args = append(args, "-c:a", s.codecs.audio, "-b:a", "128k", "-shortest")
	}
	args = append(args, "-t", strconv.FormatFloat(st.Duration.Seconds(), 'f', 3, 64))
	if s.codecs.container == ContainerMP4 {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	args = append(args, "-f", s.codecs.container, "pipe:1")
	return args
}

// Start spawns ffmpeg and begins streaming its output through events.
func (s *FFmpegSink) Start(ctx context.Context, events Events) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return errors.New("ffmpeg sink already started")
	}

	cmd := exec.CommandContext(ctx, s.opts.Binary, s.Args()...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	s.stderr = &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = s.stderr

	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "encoding", "start ffmpeg", "ffmpeg could not be launched", err)
	}
	s.logger.Debug("ffmpeg sink started",
		logging.String("binary", s.opts.Binary),
		logging.String("container", s.codecs.container),
		logging.Bool("audio", s.stream.HasAudio()),
	)

	s.cmd = cmd
	s.stdin = stdin
	s.gate = &eventGate{events: events}
	s.done = make(chan struct{})
	s.frame = make([]byte, s.stream.FrameBytes())
	go s.pump(stdout)
	return nil
}

func (s *FFmpegSink) pump(stdout io.Reader) {
	defer close(s.done)

	var readErr error
	buf := make([]byte, s.opts.ChunkBytes)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			s.gate.data(append([]byte(nil), buf[:n]...))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			readErr = err
			break
		}
	}

	waitErr := s.cmd.Wait()
	switch {
	case readErr != nil:
		s.exitErr = fmt.Errorf("read ffmpeg output: %w", readErr)
	case waitErr != nil:
		detail := strings.TrimSpace(s.stderr.String())
		if detail == "" {
			detail = waitErr.Error()
		}
		s.exitErr = services.Wrap(services.ErrExternalTool, "encoding", "ffmpeg", detail, waitErr)
	}
	if s.exitErr != nil {
		s.gate.fail(s.exitErr)
		return
	}
	s.gate.stop()
}

// WriteFrame sends one frame to ffmpeg. Frames must match the stream size.
func (s *FFmpegSink) WriteFrame(frame *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return errors.New("ffmpeg sink not started")
	}
	if s.closed {
		return ErrSinkClosed
	}
	payload, err := packFrame(frame, s.stream, s.frame)
	if err != nil {
		return err
	}
	if _, err := s.stdin.Write(payload); err != nil {
		return fmt.Errorf("write frame to ffmpeg: %w", err)
	}
	return nil
}

// Stop closes ffmpeg's input and waits for the container to be flushed.
func (s *FFmpegSink) Stop() error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return errors.New("ffmpeg sink not started")
	}
	if !s.closed {
		s.closed = true
		_ = s.stdin.Close()
	}
	done := s.done
	s.mu.Unlock()

	<-done
	return s.exitErr
}

// Abort kills ffmpeg and discards any pending output.
func (s *FFmpegSink) Abort() {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return
	}
	s.gate.mute()
	if !s.closed {
		s.closed = true
		_ = s.stdin.Close()
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	done := s.done
	s.mu.Unlock()
	<-done
}

// packFrame returns the tightly packed RGBA bytes of frame, copying into
// scratch only when the frame has padding or an offset origin.
func packFrame(frame *image.RGBA, stream Stream, scratch []byte) ([]byte, error) {
	if frame == nil {
		return nil, errors.New("nil frame")
	}
	bounds := frame.Bounds()
	if bounds.Dx() != stream.Width || bounds.Dy() != stream.Height {
		return nil, fmt.Errorf("frame size %dx%d does not match stream %dx%d", bounds.Dx(), bounds.Dy(), stream.Width, stream.Height)
	}
	rowBytes := stream.Width * 4
	if frame.Stride == rowBytes && bounds.Min == (image.Point{}) && len(frame.Pix) >= rowBytes*stream.Height {
		return frame.Pix[:rowBytes*stream.Height], nil
	}
	for y := 0; y < stream.Height; y++ {
		start := frame.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		copy(scratch[y*rowBytes:(y+1)*rowBytes], frame.Pix[start:start+rowBytes])
	}
	return scratch, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
