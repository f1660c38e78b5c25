package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Export describes an export history row in a transport-friendly format.
type Export struct {
	ID              int64   `json:"id"`
	SessionID       string  `json:"sessionId"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	Container       string  `json:"container"`
	SceneRef        string  `json:"sceneRef,omitempty"`
	OverlayRef      string  `json:"overlayRef,omitempty"`
	SoundtrackRef   string  `json:"soundtrackRef,omitempty"`
	BlobURL         string  `json:"blobUrl,omitempty"`
	DownloadURL     string  `json:"downloadUrl,omitempty"`
	MIMEType        string  `json:"mimeType,omitempty"`
	SizeBytes       int64   `json:"sizeBytes,omitempty"`
	Frames          int     `json:"frames,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
	FinishedAt      string  `json:"finishedAt,omitempty"`
}

// Session captures the live state of a capture session.
type Session struct {
	ID             string `json:"id"`
	State          string `json:"state"`
	Frames         int    `json:"frames"`
	ExpectedFrames int    `json:"expectedFrames"`
	StartedAt      string `json:"startedAt,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty"`
	BlobURL        string `json:"blobUrl,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult mirrors a preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ServerStatus aggregates server runtime information for API consumers.
type ServerStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	DatabasePath  string             `json:"databasePath"`
	LockFilePath  string             `json:"lockFilePath"`
	Recording     bool               `json:"recording"`
	ActiveSession *Session           `json:"activeSession,omitempty"`
	LastSession   *Session           `json:"lastSession,omitempty"`
	ExportCounts  map[string]int     `json:"exportCounts"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Checks        []CheckResult      `json:"checks"`
}

// StartExportRequest is the body of POST /api/exports.
type StartExportRequest struct {
	Title           string  `json:"title"`
	Scene           string  `json:"scene"`
	Overlay         string  `json:"overlay,omitempty"`
	Soundtrack      string  `json:"soundtrack,omitempty"`
	Blend           string  `json:"blend,omitempty"`
	Container       string  `json:"container,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	FPS             int     `json:"fps,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	// Wait holds the response until the export is terminal.
	Wait bool `json:"wait,omitempty"`
}

// StartExportResponse reports a started (or, with Wait, finished) export.
type StartExportResponse struct {
	Export  Export  `json:"export"`
	Session Session `json:"session"`
}

// ExportListResponse wraps a collection of exports for API responses.
type ExportListResponse struct {
	Exports []Export `json:"exports"`
}

// ExportResponse wraps a single export.
type ExportResponse struct {
	Export Export `json:"export"`
}

// LogEvent is a log line for live tailing.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	ExportID  int64             `json:"exportId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events with the cursor for the next call.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}
