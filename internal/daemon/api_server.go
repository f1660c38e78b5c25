package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardcast/internal/api"
	"cardcast/internal/assets"
	"cardcast/internal/blobstore"
	"cardcast/internal/config"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/logging"
	"cardcast/internal/services"
)

// maxExportBody bounds POST /api/exports; inline data URIs make bodies large.
const maxExportBody = 64 << 20

type apiServer struct {
	bind      string
	token     string
	assetRoot string
	logger    *slog.Logger
	daemon    *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.API.Bind),
		token:     cfg.API.Token,
		assetRoot: cfg.API.AssetRoot,
		logger:    logger,
		daemon:    d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, withRequestID(authMiddleware(s.token, h)))
	}
	handle("POST /api/exports", s.handleStartExport)
	handle("GET /api/exports", s.handleListExports)
	handle("GET /api/exports/{id}", s.handleExport)
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/logs", s.handleLogs)
	handle("GET /blobs/{id}", s.handleBlob)
	return mux
}

// withRequestID tags each request with a correlation id, reusing the
// client's X-Request-ID when present.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// origin is the base URL clients use to reach this server.
func (s *apiServer) origin(r *http.Request) string {
	if r != nil && r.Host != "" {
		return "http://" + r.Host
	}
	if addr := s.address(); addr != "" {
		return "http://" + addr
	}
	return "http://" + s.bind
}

func (s *apiServer) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var body api.StartExportRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	for _, ref := range []string{body.Scene, body.Overlay, body.Soundtrack} {
		if err := assets.ConfineLocal(ref, s.assetRoot); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	svc := s.daemon.exports
	job, err := svc.Begin(r.Context(), exportsvc.Spec{
		Title:           body.Title,
		Scene:           body.Scene,
		Overlay:         body.Overlay,
		Soundtrack:      body.Soundtrack,
		Blend:           body.Blend,
		Container:       body.Container,
		DurationSeconds: body.DurationSeconds,
		FPS:             body.FPS,
		Width:           body.Width,
		Height:          body.Height,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	base := s.origin(r)
	if !body.Wait {
		s.writeJSON(w, http.StatusAccepted, api.FromJob(job, base))
		return
	}
	// A dropped client does not abort the export; it finishes in history.
	outcome, err := job.Wait(r.Context())
	if err != nil && outcome.Export == nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := api.FromJob(job, base)
	resp.Export = api.FromRecord(outcome.Export, base)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleListExports(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var statuses []exports.Status
	for _, value := range query["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := exports.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 100
	}

	records, err := s.daemon.exports.History().List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportListResponse{Exports: api.FromRecords(records, s.origin(r))})
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid export id")
		return
	}
	record, err := s.daemon.exports.History().Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "export not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ExportResponse{Export: api.FromRecord(record, s.origin(r))})
}

func (s *apiServer) handleBlob(w http.ResponseWriter, r *http.Request) {
	url := blobstore.URLPrefix + r.PathValue("id")
	file, blob, err := s.daemon.exports.Blobs().Open(url)
	if errors.Is(err, blobstore.ErrInvalidURL) {
		s.writeError(w, http.StatusNotFound, "blob not found")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", blob.MIMEType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.FileName}))
	http.ServeContent(w, r, blob.FileName, blob.CreatedAt, file)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.ServerStatus{
		Running:       status.Running,
		PID:           status.PID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		Recording:     status.Active != nil,
		ActiveSession: api.FromSession(status.Active),
		LastSession:   api.FromSession(status.Last),
		ExportCounts:  api.ExportCounts(status.ExportCounts),
		Dependencies:  api.FromDependencies(status.Dependencies),
		Checks:        api.FromChecks(status.Checks),
	})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.LogStreamResponse{})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")
	session := strings.TrimSpace(query.Get("session"))
	component := strings.TrimSpace(query.Get("component"))

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if tail && since == 0 && !follow {
		raw, next = hub.Tail(limit)
	} else {
		var err error
		raw, next, err = hub.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	filtered := make([]api.LogEvent, 0, len(raw))
	for _, evt := range api.FromLogEvents(raw) {
		if session != "" && evt.SessionID != session {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	s.writeJSON(w, http.StatusOK, api.LogStreamResponse{Events: filtered, Next: next})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.log()), "api request failed", "api_error",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
