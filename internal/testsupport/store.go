package testsupport

import (
	"context"
	"testing"

	"cardcast/internal/config"
	"cardcast/internal/exports"
)

// MustOpenStore opens an exports.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *exports.Store {
	t.Helper()

	store, err := exports.Open(cfg)
	if err != nil {
		t.Fatalf("exports.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewExport inserts a recording export for tests.
func NewExport(t testing.TB, store *exports.Store, sessionID, title string) *exports.Record {
	t.Helper()

	rec, err := store.Create(context.Background(), exports.NewRecord{SessionID: sessionID, Title: title})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rec
}
