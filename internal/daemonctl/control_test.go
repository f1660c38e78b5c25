package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cardcast/internal/api"
	"cardcast/internal/daemonctl"
	"cardcast/internal/exports"
	"cardcast/internal/services"
	"cardcast/internal/testsupport"
)

func TestClientSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(api.ExportListResponse{Exports: []api.Export{{ID: 3, Title: "Card"}}})
	}))
	defer srv.Close()

	client := daemonctl.NewClientFor(srv.URL, "sekrit")
	list, err := client.ListExports(context.Background(), 5, exports.StatusDone)
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(list) != 1 || list[0].ID != 3 {
		t.Fatalf("unexpected exports %+v", list)
	}
	if gotAuth != "Bearer sekrit" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotQuery != "limit=5&status=done" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestClientMapsErrorStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, services.ErrConflict},
		{http.StatusBadRequest, services.ErrValidation},
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusBadGateway, services.ErrExternalTool},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "nope"})
		}))
		_, err := daemonctl.NewClientFor(srv.URL, "").StartExport(context.Background(), api.StartExportRequest{Scene: "x"})
		srv.Close()
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestBuildStatusSnapshotFallsBackToLocalState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	// Reserve a port and release it so nothing is listening there.
	closed := httptest.NewServer(http.NotFoundHandler())
	cfg.API.Bind = closed.Listener.Addr().String()
	closed.Close()

	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewExport(t, store, "sess-1", "Card")

	status, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if status.Running {
		t.Fatal("expected offline status")
	}
	if status.ExportCounts["recording"] != 1 {
		t.Fatalf("unexpected counts %v", status.ExportCounts)
	}
	if len(status.Dependencies) == 0 || len(status.Checks) != 4 {
		t.Fatalf("expected local dependency and readiness checks, got %+v", status)
	}
}

func TestDownloadCopiesArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/blobs/abc" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("video-bytes"))
	}))
	defer srv.Close()

	client := daemonctl.NewClientFor(srv.URL, "")
	var buf strings.Builder
	n, err := client.Download(context.Background(), srv.URL+"/blobs/abc", &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 11 || buf.String() != "video-bytes" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}
	if _, err := client.Download(context.Background(), srv.URL+"/blobs/missing", &buf); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
