package deps

import (
	"os/exec"
	"strings"
)

// probeVersion runs "<binary> -version" and returns the version token from
// the first line ("ffmpeg version 7.1 Copyright ..." yields "7.1").
// Failures yield an empty string; availability is decided by LookPath alone.
func probeVersion(binary string) string {
	out, err := exec.Command(binary, "-version").Output()
	if err != nil {
		return ""
	}
	return ParseVersion(string(out))
}

// ParseVersion extracts the version token from ffmpeg/ffprobe -version output.
func ParseVersion(output string) string {
	line, _, _ := strings.Cut(output, "\n")
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			return fields[i+1]
		}
	}
	return ""
}
