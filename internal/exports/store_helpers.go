package exports

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

const recordColumns = "id, session_id, title, status, scene_ref, overlay_ref, soundtrack_ref, container, blob_url, mime_type, size_bytes, frames, duration_seconds, error_message, created_at, updated_at, finished_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec           Record
		status        string
		sceneRef      sql.NullString
		overlayRef    sql.NullString
		soundtrackRef sql.NullString
		container     sql.NullString
		blobURL       sql.NullString
		mimeType      sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
		finishedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Title,
		&status,
		&sceneRef,
		&overlayRef,
		&soundtrackRef,
		&container,
		&blobURL,
		&mimeType,
		&rec.SizeBytes,
		&rec.Frames,
		&rec.DurationSeconds,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(status)
	rec.SceneRef = sceneRef.String
	rec.OverlayRef = overlayRef.String
	rec.SoundtrackRef = soundtrackRef.String
	rec.Container = container.String
	rec.BlobURL = blobURL.String
	rec.MIMEType = mimeType.String
	rec.ErrorMessage = errorMessage.String
	if ts, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = ts
	}
	if ts, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = ts
	}
	if finishedRaw.Valid {
		if ts, err := parseTimeString(finishedRaw.String); err == nil {
			rec.FinishedAt = &ts
		}
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
