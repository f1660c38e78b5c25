package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFixture writes size filler bytes to path, creating parent
// directories. Recorders only need soundtrack and overlay inputs to exist.
func WriteFixture(t testing.TB, path string, size int) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, max(size, 1)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
