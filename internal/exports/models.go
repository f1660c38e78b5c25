package exports

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an export.
type Status string

const (
	StatusRecording Status = "recording"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// InterruptedReason is recorded for exports abandoned by a stopped process.
const InterruptedReason = "interrupted before recording finished"

var statusSet = map[Status]struct{}{
	StatusRecording: {},
	StatusDone:      {},
	StatusError:     {},
}

// ParseStatus normalizes a status name. Unknown names return false.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	_, ok := statusSet[status]
	return status, ok
}

// Record is one row of export history.
type Record struct {
	ID              int64
	SessionID       string
	Title           string
	Status          Status
	SceneRef        string
	OverlayRef      string
	SoundtrackRef   string
	Container       string
	BlobURL         string
	MIMEType        string
	SizeBytes       int64
	Frames          int
	DurationSeconds float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinishedAt      *time.Time
}

// IsTerminal reports whether the export has finished.
func (r *Record) IsTerminal() bool {
	return r != nil && (r.Status == StatusDone || r.Status == StatusError)
}

// NewRecord carries the fields known when a session starts.
type NewRecord struct {
	SessionID     string
	Title         string
	SceneRef      string
	OverlayRef    string
	SoundtrackRef string
	Container     string
}

// Completion carries the artifact details of a finished session.
type Completion struct {
	BlobURL         string
	MIMEType        string
	SizeBytes       int64
	Frames          int
	DurationSeconds float64
}
