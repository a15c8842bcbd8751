package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"assetmirror/internal/failure"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// Command names stored with each run.
const (
	CommandMirror = "mirror"
	CommandVerify = "verify"
)

// Run is one recorded invocation.
type Run struct {
	ID           string     `json:"id"`
	Command      string     `json:"command"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Entries      int        `json:"entries"`
	Fetched      int        `json:"fetched"`
	Failed       int        `json:"failed"`
	Missing      int        `json:"missing"`
	Findings     int        `json:"findings"`
	Fatal        int        `json:"fatal"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Duration reports how long the run took, or zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary carries the totals written when a run finishes.
type Summary struct {
	Entries  int
	Fetched  int
	Failed   int
	Missing  int
	Findings int
	Fatal    int
	Err      error
}

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

const runColumns = "id, command, status, started_at, finished_at, entries, fetched, failed, missing, findings, fatal, error_kind, error_message"

// BeginRun inserts a running row for id.
func (s *Store) BeginRun(ctx context.Context, id, command string) (*Run, error) {
	if id == "" {
		return nil, errors.New("run id is required")
	}
	now := time.Now().UTC()
	err := s.exec(ctx,
		`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		id, command, RunRunning, formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Run{ID: id, Command: command, Status: RunRunning, StartedAt: now}, nil
}

// FinishRun stores the totals and final status of run id. The status is
// derived from the summary: a run-fatal error aborts, any other error or
// failed entry or fatal finding fails.
func (s *Store) FinishRun(ctx context.Context, id string, summary Summary) error {
	status := RunSucceeded
	switch {
	case failure.IsRunFatal(summary.Err):
		status = RunAborted
	case summary.Err != nil, summary.Failed > 0, summary.Fatal > 0:
		status = RunFailed
	}
	var kind, message string
	if summary.Err != nil {
		kind = failure.Kind(summary.Err)
		message = summary.Err.Error()
	}
	err := s.exec(ctx, `UPDATE runs SET status = ?, finished_at = ?, entries = ?, fetched = ?, failed = ?,
		missing = ?, findings = ?, fatal = ?, error_kind = ?, error_message = ? WHERE id = ?`,
		status, formatTime(time.Now()), summary.Entries, summary.Fetched, summary.Failed,
		summary.Missing, summary.Findings, summary.Fatal, nullableString(kind), nullableString(message), id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first. command filters by
// command name when non-empty.
func (s *Store) RecentRuns(ctx context.Context, command string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if command != "" {
		query += ` WHERE command = ?`
		args = append(args, command)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		status      string
		startedRaw  string
		finishedRaw sql.NullString
		kind        sql.NullString
		message     sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Command,
		&status,
		&startedRaw,
		&finishedRaw,
		&run.Entries,
		&run.Fetched,
		&run.Failed,
		&run.Missing,
		&run.Findings,
		&run.Fatal,
		&kind,
		&message,
	); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.ErrorKind = kind.String
	run.ErrorMessage = message.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}
