package api

import (
	"time"

	"cardcast/internal/blobstore"
	"cardcast/internal/capture"
	"cardcast/internal/deps"
	"cardcast/internal/exports"
	"cardcast/internal/exportsvc"
	"cardcast/internal/logging"
	"cardcast/internal/preflight"
)

// FromRecord converts an export history row. downloadBase, when set, is the
// server origin used to build the artifact download link.
func FromRecord(rec *exports.Record, downloadBase string) Export {
	if rec == nil {
		return Export{}
	}
	out := Export{
		ID:              rec.ID,
		SessionID:       rec.SessionID,
		Title:           rec.Title,
		Status:          string(rec.Status),
		Container:       rec.Container,
		SceneRef:        rec.SceneRef,
		OverlayRef:      rec.OverlayRef,
		SoundtrackRef:   rec.SoundtrackRef,
		BlobURL:         rec.BlobURL,
		MIMEType:        rec.MIMEType,
		SizeBytes:       rec.SizeBytes,
		Frames:          rec.Frames,
		DurationSeconds: rec.DurationSeconds,
		ErrorMessage:    rec.ErrorMessage,
		CreatedAt:       formatTime(rec.CreatedAt),
		UpdatedAt:       formatTime(rec.UpdatedAt),
	}
	if rec.FinishedAt != nil {
		out.FinishedAt = formatTime(*rec.FinishedAt)
	}
	if rec.BlobURL != "" {
		out.DownloadURL = DownloadURL(downloadBase, rec.BlobURL)
	}
	return out
}

// FromRecords converts a slice of history rows.
func FromRecords(records []*exports.Record, downloadBase string) []Export {
	out := make([]Export, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec, downloadBase))
	}
	return out
}

// DownloadURL maps a blob URL onto the server's /blobs route. It returns ""
// for malformed blob URLs.
func DownloadURL(base, blobURL string) string {
	id, err := blobstore.ParseURL(blobURL)
	if err != nil {
		return ""
	}
	return base + "/blobs/" + id
}

// FromSession converts a capture session. Nil yields nil.
func FromSession(session *capture.Session) *Session {
	if session == nil {
		return nil
	}
	snap := session.Snapshot()
	return &Session{
		ID:             snap.ID,
		State:          string(snap.State),
		Frames:         snap.Frames,
		ExpectedFrames: snap.ExpectedFrames,
		StartedAt:      formatTime(snap.StartedAt),
		FinishedAt:     formatTime(snap.FinishedAt),
		BlobURL:        snap.URL,
		Error:          snap.Error,
	}
}

// FromJob converts a started export.
func FromJob(job *exportsvc.Job, downloadBase string) StartExportResponse {
	resp := StartExportResponse{Export: FromRecord(job.Export, downloadBase)}
	if s := FromSession(job.Session); s != nil {
		resp.Session = *s
	}
	return resp
}

// FromDependencies converts dependency statuses.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

// FromLogEvents converts streamed log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			SessionID: evt.SessionID,
			ExportID:  evt.ExportID,
			Fields:    evt.Fields,
		})
	}
	return out
}

// ExportCounts converts history stats into string-keyed counts with every
// status present.
func ExportCounts(stats map[exports.Status]int) map[string]int {
	out := map[string]int{
		string(exports.StatusRecording): 0,
		string(exports.StatusDone):      0,
		string(exports.StatusError):     0,
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
