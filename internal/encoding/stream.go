package encoding

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ContainerWebM = "webm"
	ContainerMP4  = "mp4"
)

// Stream describes the capture stream a sink is bound to.
type Stream struct {
	Width     int
	Height    int
	FPS       int
	Duration  time.Duration
	Container string
	// Soundtrack is a local audio file path. Empty means video only.
	Soundtrack string
}

// HasAudio reports whether the stream carries a soundtrack.
func (s Stream) HasAudio() bool {
	return strings.TrimSpace(s.Soundtrack) != ""
}

// FrameBytes is the size of one raw RGBA frame.
func (s Stream) FrameBytes() int {
	return s.Width * s.Height * 4
}

// Validate checks the stream can be encoded.
func (s Stream) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("stream dimensions must be positive, got %dx%d", s.Width, s.Height)
	}
	if s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("stream dimensions must be even, got %dx%d", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return errors.New("stream frame rate must be positive")
	}
	if s.Duration <= 0 {
		return errors.New("stream duration must be positive")
	}
	if _, err := codecsFor(s.Container); err != nil {
		return err
	}
	return nil
}

// MIMEType returns the blob MIME type for the stream's container.
func (s Stream) MIMEType() string {
	codecs, err := codecsFor(s.Container)
	if err != nil {
		return "application/octet-stream"
	}
	return codecs.mimeType(s.HasAudio())
}

type codecSet struct {
	container  string
	video      string
	audio      string
	videoLabel string
	audioLabel string
}

func (c codecSet) mimeType(audio bool) string {
	labels := c.videoLabel
	if audio {
		labels += "," + c.audioLabel
	}
	return fmt.Sprintf("video/%s;codecs=%s", c.container, labels)
}

func codecsFor(container string) (codecSet, error) {
	switch strings.ToLower(strings.TrimSpace(container)) {
	case ContainerWebM, "":
		return codecSet{container: ContainerWebM, video: "libvpx-vp9", audio: "libopus", videoLabel: "vp9", audioLabel: "opus"}, nil
	case ContainerMP4:
		return codecSet{container: ContainerMP4, video: "libx264", audio: "aac", videoLabel: "avc1", audioLabel: "mp4a"}, nil
	default:
		return codecSet{}, fmt.Errorf("%w: container %q", ErrUnsupportedCodec, container)
	}
}

// BaseMIMEType strips codec parameters from a MIME type.
func BaseMIMEType(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.TrimSpace(mime)
}
