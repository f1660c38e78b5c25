package exports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cardcast/internal/config"
)

// Store manages export history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the database at path directly.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new export in the recording state.
func (s *Store) Create(ctx context.Context, rec NewRecord) (*Record, error) {
	if strings.TrimSpace(rec.SessionID) == "" {
		return nil, errors.New("create export: session id required")
	}
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = "Untitled card"
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO exports (
            session_id, title, status, scene_ref, overlay_ref, soundtrack_ref,
            container, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		title,
		StatusRecording,
		nullableString(rec.SceneRef),
		nullableString(rec.OverlayRef),
		nullableString(rec.SoundtrackRef),
		nullableString(rec.Container),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert export: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.Get(ctx, id)
}

// MarkDone records a successful session. Only recording exports transition.
func (s *Store) MarkDone(ctx context.Context, id int64, done Completion) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE exports SET status = ?, blob_url = ?, mime_type = ?, size_bytes = ?,
            frames = ?, duration_seconds = ?, error_message = NULL, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		StatusDone,
		done.BlobURL,
		nullableString(done.MIMEType),
		done.SizeBytes,
		done.Frames,
		done.DurationSeconds,
		now,
		now,
		id,
		StatusRecording,
	)
	if err != nil {
		return fmt.Errorf("mark export done: %w", err)
	}
	return expectTransition(res, id)
}

// MarkFailed records a failed session. Only recording exports transition.
func (s *Store) MarkFailed(ctx context.Context, id int64, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "recording failed"
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE exports SET status = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND status = ?`,
		StatusError,
		message,
		now,
		now,
		id,
		StatusRecording,
	)
	if err != nil {
		return fmt.Errorf("mark export failed: %w", err)
	}
	return expectTransition(res, id)
}

// ErrNotRecording is returned when a terminal export is asked to transition again.
var ErrNotRecording = errors.New("export is not recording")

func expectTransition(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: export %d", ErrNotRecording, id)
	}
	return nil
}

// Get returns the export with id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM exports WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return rec, nil
}

// GetBySession returns the export for a capture session, or nil.
func (s *Store) GetBySession(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM exports WHERE session_id = ?`, sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export by session: %w", err)
	}
	return rec, nil
}

// List returns the newest exports first, optionally filtered by status.
// A limit of zero or less returns every row.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM exports`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats counts exports by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM exports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("export stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// ResetStuck fails every export still marked recording and returns how many
// rows changed. Call it before accepting new sessions.
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE exports SET status = ?, error_message = ?, updated_at = ?, finished_at = ? WHERE status = ?`,
		StatusError,
		InterruptedReason,
		now,
		now,
		StatusRecording,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck exports: %w", err)
	}
	return res.RowsAffected()
}
