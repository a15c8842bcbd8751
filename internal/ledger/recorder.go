package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"assetmirror/internal/failure"
	"assetmirror/internal/mirror"
)

// Recorder writes mirror progress for one run. It satisfies mirror.Recorder.
type Recorder struct {
	store *Store
	runID string
}

var _ mirror.Recorder = (*Recorder)(nil)

// Recorder binds a mirror.Recorder to runID.
func (s *Store) Recorder(runID string) *Recorder {
	return &Recorder{store: s, runID: runID}
}

// RecordResource appends one resource outcome.
func (r *Recorder) RecordResource(ctx context.Context, event mirror.ResourceEvent) error {
	var kind, message string
	if event.Err != nil {
		kind = failure.Kind(event.Err)
		message = event.Err.Error()
	}
	err := r.store.exec(ctx, `INSERT INTO resource_events
		(run_id, entry_id, resource, backend, url, path, outcome, expected, actual, error_kind, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.runID, event.EntryID, event.Resource, event.Backend, nullableString(event.URL), nullableString(event.Path),
		event.Outcome, nullableString(event.Expected), nullableString(event.Actual),
		nullableString(kind), nullableString(message), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record resource %s/%s: %w", event.EntryID, event.Resource, err)
	}
	return nil
}

// RecordEntry upserts the result of one entry.
func (r *Recorder) RecordEntry(ctx context.Context, result mirror.EntryResult) error {
	var message string
	if result.Err != nil {
		message = result.Err.Error()
	}
	err := r.store.exec(ctx, `INSERT INTO entry_results
		(run_id, entry_id, status, fetched, existing, duration_ms, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, entry_id) DO UPDATE SET
			status = excluded.status, fetched = excluded.fetched, existing = excluded.existing,
			duration_ms = excluded.duration_ms, error_kind = excluded.error_kind, error_message = excluded.error_message`,
		r.runID, result.EntryID, string(result.Status), result.Fetched, result.Existing,
		result.Duration.Milliseconds(), nullableString(result.ErrorKind()), nullableString(message),
	)
	if err != nil {
		return fmt.Errorf("record entry %s: %w", result.EntryID, err)
	}
	return nil
}

// ResourceRecord is a stored resource event.
type ResourceRecord struct {
	EntryID      string    `json:"entry_id"`
	Resource     string    `json:"resource"`
	Backend      string    `json:"backend"`
	URL          string    `json:"url,omitempty"`
	Path         string    `json:"path,omitempty"`
	Outcome      string    `json:"outcome"`
	Expected     string    `json:"expected,omitempty"`
	Actual       string    `json:"actual,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ResourceEvents returns the events of runID in insertion order. outcome
// filters when non-empty.
func (s *Store) ResourceEvents(ctx context.Context, runID, outcome string) ([]ResourceRecord, error) {
	query := `SELECT entry_id, resource, backend, url, path, outcome, expected, actual, error_kind, error_message, created_at
		FROM resource_events WHERE run_id = ?`
	args := []any{runID}
	if outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, outcome)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resource events: %w", err)
	}
	defer rows.Close()

	var out []ResourceRecord
	for rows.Next() {
		var (
			rec                                                   ResourceRecord
			url, path, expected, actual, kind, message, createdAt sql.NullString
		)
		if err := rows.Scan(&rec.EntryID, &rec.Resource, &rec.Backend, &url, &path, &rec.Outcome,
			&expected, &actual, &kind, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan resource event: %w", err)
		}
		rec.URL = url.String
		rec.Path = path.String
		rec.Expected = expected.String
		rec.Actual = actual.String
		rec.ErrorKind = kind.String
		rec.ErrorMessage = message.String
		if ts, err := parseTimeString(createdAt.String); err == nil {
			rec.CreatedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EntryRecord is a stored entry result.
type EntryRecord struct {
	EntryID      string        `json:"entry_id"`
	Status       string        `json:"status"`
	Fetched      int           `json:"fetched"`
	Existing     int           `json:"existing"`
	Duration     time.Duration `json:"duration"`
	ErrorKind    string        `json:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// EntryResults returns the entry results of runID ordered by entry id.
func (s *Store) EntryResults(ctx context.Context, runID string) ([]EntryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry_id, status, fetched, existing, duration_ms, error_kind, error_message
		FROM entry_results WHERE run_id = ? ORDER BY entry_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entry results: %w", err)
	}
	defer rows.Close()

	var out []EntryRecord
	for rows.Next() {
		var (
			rec           EntryRecord
			durationMS    int64
			kind, message sql.NullString
		)
		if err := rows.Scan(&rec.EntryID, &rec.Status, &rec.Fetched, &rec.Existing, &durationMS, &kind, &message); err != nil {
			return nil, fmt.Errorf("scan entry result: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.ErrorKind = kind.String
		rec.ErrorMessage = message.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
