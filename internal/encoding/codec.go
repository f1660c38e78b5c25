package encoding

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CheckCodec confirms the ffmpeg binary can encode stream's container. It
// fails with ErrUnsupportedCodec when a required encoder is missing.
func CheckCodec(ctx context.Context, binary string, stream Stream) error {
	codecs, err := codecsFor(stream.Container)
	if err != nil {
		return err
	}
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	output, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output() //nolint:gosec
	if err != nil {
		return fmt.Errorf("%w: list ffmpeg encoders: %v", ErrUnsupportedCodec, err)
	}
	available := ParseEncoders(output)
	required := []string{codecs.video}
	if stream.HasAudio() {
		required = append(required, codecs.audio)
	}
	for _, name := range required {
		if _, ok := available[name]; !ok {
			return fmt.Errorf("%w: ffmpeg has no %s encoder for %s output", ErrUnsupportedCodec, name, codecs.container)
		}
	}
	return nil
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output, keyed
// by name with the capability flags as value.
func ParseEncoders(output []byte) map[string]string {
	encoders := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			if strings.HasPrefix(line, "------") {
				listing = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = fields[0]
	}
	return encoders
}
