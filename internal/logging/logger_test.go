package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cardcast/internal/config"
	"cardcast/internal/logging"
	"cardcast/internal/services"
)

func TestNewFromConfigWritesJSONArchive(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("archived line", logging.String("scene", "card.png"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "cardcast.log"))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("archive line is not JSON: %v (%q)", err, content)
	}
	if entry["msg"] != "archived line" || entry["scene"] != "card.png" {
		t.Fatalf("unexpected archive entry: %#v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("expected lowercase level, got %#v", entry["level"])
	}
}

func TestConsoleLoggerLiftsComponent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "capture").Info("recording started", logging.Int("fps", 30), logging.String("note", "two words"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO capture: recording started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should not repeat as a field: %q", line)
	}
	if !strings.Contains(line, "fps=30") || !strings.Contains(line, `note="two words"`) {
		t.Fatalf("expected formatted fields, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "logger_test.go:") {
		t.Fatalf("expected caller in debug logs, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsSessionFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := services.WithSessionID(context.Background(), "sess-7")
	ctx = services.WithExportID(ctx, 3)
	logging.WithContext(ctx, base).Info("tagged")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldSessionID] != "sess-7" {
		t.Fatalf("missing session id: %#v", entry)
	}
	if entry[logging.FieldExportID] != float64(3) {
		t.Fatalf("missing export id: %#v", entry)
	}
}

func TestTeeLoggerDuplicatesRecords(t *testing.T) {
	var first, second bytes.Buffer
	base := slog.New(slog.NewTextHandler(&first, nil))
	logger := logging.TeeLogger(base, slog.NewTextHandler(&second, nil))

	logger.With(logging.String("k", "v")).Info("both")

	for name, buf := range map[string]*bytes.Buffer{"first": &first, "second": &second} {
		if !strings.Contains(buf.String(), "msg=both") || !strings.Contains(buf.String(), "k=v") {
			t.Fatalf("%s handler missing record: %q", name, buf.String())
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "verification skipped", "verify_skipped")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry[logging.FieldEventType] != "verify_skipped" {
		t.Fatalf("missing event type: %#v", entry)
	}
	if entry[logging.FieldImpact] == nil {
		t.Fatalf("missing impact: %#v", entry)
	}
}
