package deps

import (
	"os"
	"path/filepath"
	"testing"

	"cardcast/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\necho 'ffmpeg version 7.1.1 Copyright (c) the FFmpeg developers'\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  ", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Version != "7.1.1" {
		t.Fatalf("expected version 7.1.1, got %q", results[0].Version)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
}

func TestRequirementsFollowVerifySetting(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.FFmpegBinary = "/opt/ffmpeg/bin/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 2 || reqs[0].Command != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
	if reqs[1].Optional {
		t.Fatal("ffprobe should be required when verification is enabled")
	}
	cfg.Recording.VerifyOutput = false
	if reqs := Requirements(&cfg); !reqs[1].Optional {
		t.Fatal("ffprobe should be optional without verification")
	}
}

func TestParseVersion(t *testing.T) {
	cases := map[string]string{
		"ffprobe version n7.0-static https://johnvansickle.com\nbuilt with gcc": "n7.0-static",
		"garbage": "",
		"":        "",
	}
	for input, want := range cases {
		if got := ParseVersion(input); got != want {
			t.Fatalf("ParseVersion(%q) = %q, want %q", input, got, want)
		}
	}
}
