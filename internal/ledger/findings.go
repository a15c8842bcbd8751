package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"assetmirror/internal/verify"
)

// RecordFindings stores every finding of a verify run in one transaction.
func (s *Store) RecordFindings(ctx context.Context, runID string, findings []verify.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin findings tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO findings
			(run_id, severity, code, root, entry_id, file, path, detail) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare findings insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range findings {
			if _, err := stmt.ExecContext(ctx, runID, string(f.Severity), string(f.Code), f.Root, f.EntryID,
				f.File, nullableString(f.Path), nullableString(f.Detail)); err != nil {
				return fmt.Errorf("insert finding: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Findings returns the stored findings of runID.
func (s *Store) Findings(ctx context.Context, runID string) ([]verify.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, code, root, entry_id, file, path, detail
		FROM findings WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []verify.Finding
	for rows.Next() {
		var (
			f              verify.Finding
			severity, code string
			path, detail   sql.NullString
		)
		if err := rows.Scan(&severity, &code, &f.Root, &f.EntryID, &f.File, &path, &detail); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Severity = verify.Severity(severity)
		f.Code = verify.Code(code)
		f.Path = path.String
		f.Detail = detail.String
		out = append(out, f)
	}
	return out, rows.Err()
}
