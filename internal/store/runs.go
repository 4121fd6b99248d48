package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Run is one row in the runs table.
type Run struct {
	RunID      string
	DocumentID string
	InputPath  string
	Status     metrics.RunStatus
	// Cursor is the last completed phase, empty before reconnaissance
	// finishes.
	Cursor     phase.Phase
	Confidence float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NextPhase is the first phase a resumed run should execute. ok is
// false when the sequence is exhausted.
func (r *Run) NextPhase() (phase.Phase, bool) {
	if r.Cursor == "" {
		return phase.Reconnaissance, true
	}
	return phase.Next(r.Cursor)
}

// CreateRun inserts a new run row.
func (s *Store) CreateRun(ctx context.Context, r *Run) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, document_id, input_path, status, cursor, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.DocumentID, r.InputPath, string(r.Status), string(r.Cursor),
		r.Confidence, fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

// UpdateRun persists the run's status, cursor, and confidence.
func (s *Store) UpdateRun(ctx context.Context, runID string, status metrics.RunStatus, cursor phase.Phase, confidence float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, cursor = ?, confidence = ?, updated_at = ?
		WHERE run_id = ?`,
		string(status), string(cursor), confidence, fmtTime(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, document_id, input_path, status, cursor, confidence, created_at, updated_at
		FROM runs WHERE run_id = ?`, runID)

	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns recent runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, document_id, input_path, status, cursor, confidence, created_at, updated_at
		FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRunsByStatus returns runs in the given state, newest first.
func (s *Store) ListRunsByStatus(ctx context.Context, status metrics.RunStatus) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, document_id, input_path, status, cursor, confidence, created_at, updated_at
		FROM runs WHERE status = ? ORDER BY created_at DESC, run_id DESC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list runs by status: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything attached to it.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		// ai_calls carries no foreign key so batched writes never race
		// run deletion; clean it up explicitly.
		if _, err := tx.ExecContext(ctx, `DELETE FROM ai_calls WHERE run_id = ?`, runID); err != nil {
			return fmt.Errorf("delete calls: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r                    Run
		status, cursor       string
		createdAt, updatedAt string
	)
	err := row.Scan(&r.RunID, &r.DocumentID, &r.InputPath, &status, &cursor,
		&r.Confidence, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Status = metrics.RunStatus(status)
	r.Cursor = phase.Phase(cursor)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
