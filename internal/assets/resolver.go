package assets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardcast/internal/blobstore"
	"cardcast/internal/config"
	"cardcast/internal/logging"
	"cardcast/internal/services"
)

// DefaultMaxBytes caps the size of a single fetched asset.
const DefaultMaxBytes = 256 << 20

// Asset is a resolved reference.
type Asset struct {
	Ref      string
	MIMEType string
	Data     []byte
	// Path is set when the asset already lives on the local filesystem.
	Path string
}

// BlobReader loads blobs by URL.
type BlobReader interface {
	Read(url string) ([]byte, blobstore.Blob, error)
}

// Resolver fetches assets.
type Resolver struct {
	client   *http.Client
	blobs    BlobReader
	maxBytes int64
	logger   *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client used for remote assets.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithBlobs enables blob URL resolution.
func WithBlobs(blobs BlobReader) Option {
	return func(r *Resolver) {
		r.blobs = blobs
	}
}

// WithMaxBytes overrides DefaultMaxBytes.
func WithMaxBytes(limit int64) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.maxBytes = limit
		}
	}
}

// NewResolver constructs a resolver.
func NewResolver(logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: DefaultMaxBytes,
		logger:   logging.NewComponentLogger(logger, "assets"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch resolves ref into an Asset.
func (r *Resolver) Fetch(ctx context.Context, ref string) (Asset, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "fetch", "empty asset reference", nil)
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return r.fetchData(ref)
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return r.fetchHTTP(ctx, ref)
	case blobstore.IsURL(ref):
		return r.fetchBlob(ref)
	default:
		path, _, err := localPath(ref)
		if err != nil {
			return Asset{}, err
		}
		return r.fetchFile(ref, path)
	}
}

// localPath reports the filesystem path ref names, if it is a local reference.
func localPath(ref string) (string, bool, error) {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"), strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"), blobstore.IsURL(ref):
		return "", false, nil
	case strings.HasPrefix(lower, "file://"):
		parsed, err := url.Parse(ref)
		if err != nil {
			return "", true, services.Wrap(services.ErrValidation, "assets", "fetch", "invalid file url", err)
		}
		return parsed.Path, true, nil
	default:
		return ref, true, nil
	}
}

// IsLocalRef reports whether ref names a file on this machine.
func IsLocalRef(ref string) bool {
	_, local, _ := localPath(strings.TrimSpace(ref))
	return local && strings.TrimSpace(ref) != ""
}

// ConfineLocal rejects local file references outside root. URLs, data URIs
// and blob URLs always pass; with an empty root every local reference fails.
func ConfineLocal(ref, root string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	path, local, err := localPath(ref)
	if err != nil || !local {
		return err
	}
	if strings.TrimSpace(root) == "" {
		return services.Wrap(services.ErrValidation, "assets", "confine",
			"local file references are not accepted here; send a URL, data URI or blob URL", nil)
	}
	realRoot, err := realPath(root)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "assets", "confine", "invalid asset root", err)
	}
	target, err := realPath(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "assets", "confine", "invalid path", err)
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return services.Wrap(services.ErrValidation, "assets", "confine", ref+" is outside the asset root", nil)
	}
	return nil
}

// realPath expands, absolutizes and resolves symlinks where the path exists.
func realPath(path string) (string, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return filepath.Clean(abs), nil
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (r *Resolver) fetchData(ref string) (Asset, error) {
	mime, data, err := ParseDataURI(ref)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "data uri", "malformed data uri", err)
	}
	if int64(len(data)) > r.maxBytes {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "data uri", "asset exceeds size limit", nil)
	}
	return Asset{Ref: shortRef(ref), MIMEType: mime, Data: data}, nil
}

func (r *Resolver) fetchHTTP(ctx context.Context, ref string) (Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "http", "invalid url", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "assets", "http", "download failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return Asset{}, services.Wrap(marker, "assets", "http", fmt.Sprintf("GET %s returned %s", ref, resp.Status), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return Asset{}, services.Wrap(services.ErrTransient, "assets", "http", "read body", err)
	}
	if int64(len(data)) > r.maxBytes {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "http", "asset exceeds size limit", nil)
	}
	mime := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if mime == "" || strings.HasPrefix(mime, "application/octet-stream") {
		mime = http.DetectContentType(data)
	}
	r.logger.Debug("asset downloaded", logging.String("url", ref), logging.Int("bytes", len(data)))
	return Asset{Ref: ref, MIMEType: mime, Data: data}, nil
}

func (r *Resolver) fetchBlob(ref string) (Asset, error) {
	if r.blobs == nil {
		return Asset{}, services.Wrap(services.ErrConfiguration, "assets", "blob", "blob store not available", nil)
	}
	data, blob, err := r.blobs.Read(ref)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Ref: ref, MIMEType: blob.MIMEType, Data: data, Path: blob.Path}, nil
}

func (r *Resolver) fetchFile(ref, path string) (Asset, error) {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "file", "invalid path", err)
	}
	info, err := os.Stat(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return Asset{}, services.Wrap(services.ErrNotFound, "assets", "file", expanded+" does not exist", nil)
	}
	if err != nil {
		return Asset{}, fmt.Errorf("stat asset: %w", err)
	}
	if info.IsDir() {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "file", expanded+" is a directory", nil)
	}
	if info.Size() > r.maxBytes {
		return Asset{}, services.Wrap(services.ErrValidation, "assets", "file", "asset exceeds size limit", nil)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return Asset{}, fmt.Errorf("read asset: %w", err)
	}
	return Asset{Ref: ref, MIMEType: http.DetectContentType(data), Data: data, Path: expanded}, nil
}

// ParseDataURI decodes an RFC 2397 data URI.
func ParseDataURI(ref string) (string, []byte, error) {
	if !strings.HasPrefix(strings.ToLower(ref), "data:") {
		return "", nil, errors.New("missing data: scheme")
	}
	header, payload, ok := strings.Cut(ref[len("data:"):], ",")
	if !ok {
		return "", nil, errors.New("missing payload separator")
	}
	params := strings.Split(header, ";")
	mime := strings.TrimSpace(params[0])
	if mime == "" {
		mime = "text/plain;charset=US-ASCII"
	}
	encoded := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			encoded = true
		}
	}
	if encoded {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return "", nil, fmt.Errorf("decode base64 payload: %w", err)
			}
		}
		return mime, data, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode percent-encoded payload: %w", err)
	}
	return mime, []byte(decoded), nil
}

// Materialize returns a file path holding the asset. Assets already on disk
// are returned as is; others are written into dir and removed by cleanup.
func Materialize(asset Asset, dir string) (string, func(), error) {
	if asset.Path != "" {
		return asset.Path, func() {}, nil
	}
	if len(asset.Data) == 0 {
		return "", nil, errors.New("materialize: asset has no data")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("materialize: %w", err)
	}
	file, err := os.CreateTemp(dir, "asset-*"+blobstore.ExtensionFor(asset.MIMEType))
	if err != nil {
		return "", nil, fmt.Errorf("materialize: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }
	if _, err := file.Write(asset.Data); err != nil {
		_ = file.Close()
		cleanup()
		return "", nil, fmt.Errorf("materialize: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("materialize: %w", err)
	}
	return filepath.Clean(path), cleanup, nil
}

func shortRef(ref string) string {
	if len(ref) <= 64 {
		return ref
	}
	return ref[:64] + "..."
}
