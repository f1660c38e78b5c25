package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cardcast/internal/api"
	"cardcast/internal/config"
	"cardcast/internal/deps"
	"cardcast/internal/exports"
	"cardcast/internal/preflight"
	"cardcast/internal/services"
)

// Client talks to a running cardcast server over its HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a client for the server configured in cfg.
func NewClient(cfg *config.Config) *Client {
	return NewClientFor("http://"+cfg.API.Bind, cfg.API.Token)
}

// NewClientFor returns a client for an explicit base URL.
func NewClientFor(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{},
	}
}

// Status fetches server status.
func (c *Client) Status(ctx context.Context) (*api.ServerStatus, error) {
	var out api.ServerStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListExports fetches export history, newest first.
func (c *Client) ListExports(ctx context.Context, limit int, statuses ...exports.Status) ([]api.Export, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	for _, status := range statuses {
		query.Add("status", string(status))
	}
	path := "/api/exports"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out api.ExportListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Exports, nil
}

// GetExport fetches one export.
func (c *Client) GetExport(ctx context.Context, id int64) (api.Export, error) {
	var out api.ExportResponse
	if err := c.do(ctx, http.MethodGet, "/api/exports/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return api.Export{}, err
	}
	return out.Export, nil
}

// StartExport asks the server to record an export.
func (c *Client) StartExport(ctx context.Context, req api.StartExportRequest) (api.StartExportResponse, error) {
	var out api.StartExportResponse
	if err := c.do(ctx, http.MethodPost, "/api/exports", req, &out); err != nil {
		return api.StartExportResponse{}, err
	}
	return out, nil
}

// Download streams an artifact from a download URL issued by the server
// into w and returns the number of bytes written.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, responseError(http.MethodGet, req.URL.Path, resp.StatusCode, body)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download artifact: %w", err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return responseError(method, path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(method, path string, status int, body []byte) error {
	var payload api.ErrorResponse
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}
	var marker error
	switch status {
	case http.StatusBadRequest:
		marker = services.ErrValidation
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusConflict:
		marker = services.ErrConflict
	case http.StatusGatewayTimeout:
		marker = services.ErrTimeout
	case http.StatusUnauthorized:
		marker = services.ErrConfiguration
		message = "server rejected the api token"
	default:
		marker = services.ErrExternalTool
	}
	return services.Wrap(marker, "daemonctl", method+" "+path, fmt.Sprintf("server returned %d: %s", status, message), nil)
}

// IsUnavailable reports whether err means no server is listening.
func IsUnavailable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// BuildStatusSnapshot asks a running server for its status. When no server
// answers it assembles the same view from local state.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*api.ServerStatus, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	status, err := NewClient(cfg).Status(queryCtx)
	if err == nil {
		return status, nil
	}
	if !IsUnavailable(err) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	status = &api.ServerStatus{
		DatabasePath: cfg.DatabasePath(),
		LockFilePath: cfg.LockPath(),
		ExportCounts: api.ExportCounts(nil),
	}
	if store, openErr := exports.Open(cfg); openErr == nil {
		if stats, statsErr := store.Stats(ctx); statsErr == nil {
			status.ExportCounts = api.ExportCounts(stats)
		}
		_ = store.Close()
	}
	status.Dependencies = api.FromDependencies(deps.CheckBinaries(deps.Requirements(cfg)))
	status.Checks = api.FromChecks([]preflight.Result{
		preflight.CheckDirectoryAccess("Blob directory", cfg.Paths.BlobDir),
		preflight.CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		preflight.CheckGeneratorFromConfig(ctx, cfg),
		preflight.NotificationsStatus(cfg),
	})
	return status, nil
}
