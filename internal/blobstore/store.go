package blobstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cardcast/internal/fileutil"
	"cardcast/internal/services"
)

// URLPrefix starts every blob URL issued by the store.
const URLPrefix = "blob:cardcast/"

// ErrInvalidURL reports a string that is not a cardcast blob URL.
var ErrInvalidURL = errors.New("invalid blob url")

// Blob describes one stored artifact.
type Blob struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"-"`
}

// Store manages blobs under a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// New returns a store rooted at dir, creating it when needed.
func New(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Put stores data and returns its blob. title seeds the download file name.
func (s *Store) Put(data []byte, mimeType, title string) (Blob, error) {
	if len(data) == 0 {
		return Blob{}, errors.New("refusing to store empty blob")
	}
	id := uuid.NewString()
	ext := ExtensionFor(mimeType)
	blob := Blob{
		ID:        id,
		URL:       URLPrefix + id,
		MIMEType:  strings.TrimSpace(mimeType),
		Size:      int64(len(data)),
		FileName:  DownloadName(title, ext),
		CreatedAt: s.now().UTC(),
		Path:      filepath.Join(s.dir, id+ext),
	}
	if err := fileutil.WriteAtomic(blob.Path, data, 0o644); err != nil {
		return Blob{}, fmt.Errorf("write blob: %w", err)
	}
	meta, err := json.Marshal(blob)
	if err != nil {
		_ = os.Remove(blob.Path)
		return Blob{}, fmt.Errorf("encode blob metadata: %w", err)
	}
	if err := fileutil.WriteAtomic(s.metaPath(id), meta, 0o644); err != nil {
		_ = os.Remove(blob.Path)
		return Blob{}, fmt.Errorf("write blob metadata: %w", err)
	}
	return blob, nil
}

// Stat returns the blob addressed by url.
func (s *Store) Stat(url string) (Blob, error) {
	id, err := ParseURL(url)
	if err != nil {
		return Blob{}, err
	}
	return s.StatID(id)
}

// StatID returns the blob with the given id.
func (s *Store) StatID(id string) (Blob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Blob{}, fmt.Errorf("%w: %s", ErrInvalidURL, id)
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return Blob{}, services.Wrap(services.ErrNotFound, "blobstore", "stat", "blob "+id+" not found", nil)
	}
	if err != nil {
		return Blob{}, fmt.Errorf("read blob metadata: %w", err)
	}
	var blob Blob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Blob{}, fmt.Errorf("decode blob metadata: %w", err)
	}
	blob.Path = filepath.Join(s.dir, id+ExtensionFor(blob.MIMEType))
	return blob, nil
}

// Open returns a reader for the blob addressed by url.
func (s *Store) Open(url string) (*os.File, Blob, error) {
	blob, err := s.Stat(url)
	if err != nil {
		return nil, Blob{}, err
	}
	file, err := os.Open(blob.Path)
	if err != nil {
		return nil, Blob{}, fmt.Errorf("open blob: %w", err)
	}
	return file, blob, nil
}

// Read loads the whole blob addressed by url.
func (s *Store) Read(url string) ([]byte, Blob, error) {
	file, blob, err := s.Open(url)
	if err != nil {
		return nil, Blob{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, Blob{}, fmt.Errorf("read blob: %w", err)
	}
	return data, blob, nil
}

// Revoke deletes the blob. Revoking an unknown blob is not an error.
func (s *Store) Revoke(url string) error {
	blob, err := s.Stat(url)
	if errors.Is(err, services.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(blob.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := os.Remove(s.metaPath(blob.ID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob metadata: %w", err)
	}
	return nil
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// ParseURL extracts the blob id from a blob URL.
func ParseURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, URLPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	id := strings.TrimPrefix(url, URLPrefix)
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, url)
	}
	return parsed.String(), nil
}

// IsURL reports whether value looks like a cardcast blob URL.
func IsURL(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), URLPrefix)
}

// ExtensionFor maps a MIME type onto a file extension.
func ExtensionFor(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	switch base {
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// DownloadName turns a card title into a file name such as
// "Happy-Birthday-Sam.webm".
func DownloadName(title, ext string) string {
	title = cases.Title(language.Und).String(strings.ToLower(strings.TrimSpace(title)))
	name := strings.Trim(unsafeName.ReplaceAllString(title, "-"), "-")
	if name == "" {
		name = "Cardcast-Export"
	}
	if runes := []rune(name); len(runes) > 80 {
		name = strings.TrimRight(string(runes[:80]), "-")
	}
	return name + ext
}
