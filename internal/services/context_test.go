package services_test

import (
	"context"
	"testing"

	"cardcast/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "sess-1")
	ctx = services.WithExportID(ctx, 42)
	ctx = services.WithRequestID(ctx, "req-9")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "sess-1" {
		t.Fatalf("unexpected session id %q ok=%v", id, ok)
	}
	if id, ok := services.ExportIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected export id %d ok=%v", id, ok)
	}
	if id, ok := services.RequestIDFromContext(ctx); !ok || id != "req-9" {
		t.Fatalf("unexpected request id %q ok=%v", id, ok)
	}
}

func TestContextIgnoresEmptyValues(t *testing.T) {
	ctx := services.WithSessionID(context.Background(), "")
	ctx = services.WithExportID(ctx, 0)
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session id")
	}
	if _, ok := services.ExportIDFromContext(ctx); ok {
		t.Fatal("expected no export id")
	}
}
