package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`

	// NBReadPackets is only present when ffprobe ran with -count_packets.
	NBReadPackets string `json:"nb_read_packets"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	// Streamed webm has no Segment Duration; counted packets give it back.
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-count_packets",
		"-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

func (r Result) count(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int { return r.count("video") }

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int { return r.count("audio") }

// Video returns the first video stream.
func (r Result) Video() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration in seconds. Containers
// muxed to a pipe carry none, so it falls back to the video stream duration
// and then to counted frames over the frame rate. It returns 0 when nothing
// is known and NaN when the container value is malformed.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return parseFloat(r.Format.Duration)
	}
	video, ok := r.Video()
	if !ok {
		return 0
	}
	if d := parseFloat(video.Duration); d > 0 {
		return d
	}
	frames := parseFloat(video.NBReadPackets)
	if !(frames > 0) {
		frames = parseFloat(video.NBFrames)
	}
	rate := video.FrameRate()
	if rate <= 0 {
		rate = parseRate(video.RFrameRate)
	}
	if frames > 0 && rate > 0 {
		return frames / rate
	}
	return 0
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

// FrameRate parses avg_frame_rate ("30/1", "30000/1001"). It returns 0 when
// the rate is missing or malformed.
func (s Stream) FrameRate() float64 {
	return parseRate(s.AvgFrameRate)
}

func parseRate(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		return 0
	}
	n, errN := strconv.ParseFloat(num, 64)
	d, errD := strconv.ParseFloat(den, 64)
	if errN != nil || errD != nil || d == 0 {
		return 0
	}
	return n / d
}

// Expectation is what a finished export should look like.
type Expectation struct {
	Width           int
	Height          int
	FPS             int
	DurationSeconds float64
	// ToleranceSeconds bounds the duration difference. Zero means one frame.
	ToleranceSeconds float64
	HasAudio         bool
}

// Verify compares r with want and returns every mismatch joined into one error.
func Verify(r Result, want Expectation) error {
	var problems []error
	if n := r.VideoStreamCount(); n != 1 {
		problems = append(problems, fmt.Errorf("expected 1 video stream, found %d", n))
	}
	audio := r.AudioStreamCount()
	switch {
	case want.HasAudio && audio != 1:
		problems = append(problems, fmt.Errorf("expected 1 audio stream, found %d", audio))
	case !want.HasAudio && audio != 0:
		problems = append(problems, fmt.Errorf("expected no audio stream, found %d", audio))
	}
	if video, ok := r.Video(); ok && want.Width > 0 && want.Height > 0 {
		if video.Width != want.Width || video.Height != want.Height {
			problems = append(problems, fmt.Errorf("expected %dx%d, found %dx%d", want.Width, want.Height, video.Width, video.Height))
		}
	}
	if want.DurationSeconds > 0 {
		tolerance := want.ToleranceSeconds
		if tolerance <= 0 && want.FPS > 0 {
			tolerance = 1 / float64(want.FPS)
		}
		got := r.DurationSeconds()
		if math.IsNaN(got) || got <= 0 {
			problems = append(problems, errors.New("container reports no duration"))
		} else if math.Abs(got-want.DurationSeconds) > tolerance+1e-9 {
			problems = append(problems, fmt.Errorf("expected duration %.3fs, found %.3fs", want.DurationSeconds, got))
		}
	}
	return errors.Join(problems...)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
