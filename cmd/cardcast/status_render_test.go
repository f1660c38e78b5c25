package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"cardcast/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Server", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Server:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Server", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "FFmpeg", Available: false},
		{Name: "FFprobe", Available: true, Command: "/usr/bin/ffprobe", Version: "7.1"},
		{Name: "Generator", Available: false, Optional: true, Detail: "not configured"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[ERROR]") || !strings.Contains(lines[0], "Summary") {
		t.Fatalf("expected summary line first, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] not available") {
		t.Fatalf("expected error detail in second line, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[OK] Ready 7.1 (command: /usr/bin/ffprobe)") {
		t.Fatalf("expected ready detail in third line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "[WARN] not configured") {
		t.Fatalf("expected warn detail in fourth line, got %q", lines[3])
	}
	if !strings.Contains(lines[4], "Missing dependencies: FFmpeg") {
		t.Fatalf("expected missing dependencies summary, got %q", lines[4])
	}
}

func TestServerLinesShowActiveSession(t *testing.T) {
	lines := serverLines(&api.ServerStatus{
		Running:       true,
		PID:           42,
		ActiveSession: &api.Session{ID: "sess-1", Frames: 12, ExpectedFrames: 300},
	}, false)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Running (pid 42)") || !strings.Contains(joined, "sess-1 frame 12/300") {
		t.Fatalf("unexpected server lines:\n%s", joined)
	}
}

func TestExportRowsTruncateAndHumanize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := exportRows([]api.Export{{
		ID:        3,
		Title:     "Card",
		Status:    "done",
		Frames:    300,
		SizeBytes: 2048,
		CreatedAt: "2026-03-01T11:00:00.000Z",
	}}, now)
	want := []string{"3", "Card", "done", "300", "2.0 KiB", "1 hour ago"}
	if strings.Join(rows[0], "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected row %q", rows[0])
	}

	long := strings.Repeat("x", 40)
	table := renderTable(exportColumns, [][]string{{"1", long, "done", "-", "-", "now"}})
	if strings.Contains(table, long) || !strings.Contains(table, "…") {
		t.Fatalf("expected long title to be truncated:\n%s", table)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
