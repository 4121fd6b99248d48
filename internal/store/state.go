package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Text snapshot labels. Checkpoint snapshots use CheckpointLabel.
const (
	LabelOriginal = "original"
	LabelCurrent  = "current"
)

// CheckpointLabel names the text snapshot taken at a phase's checkpoint.
func CheckpointLabel(p phase.Phase) string {
	return "checkpoint:" + string(p)
}

// SaveHints upserts the run's structure hints.
func (s *Store) SaveHints(ctx context.Context, runID string, h *hints.StructureHints) error {
	payload, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal hints: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO hints (run_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		runID, string(payload), fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save hints for %s: %w", runID, err)
	}
	return nil
}

// LoadHints loads the run's structure hints.
func (s *Store) LoadHints(ctx context.Context, runID string) (*hints.StructureHints, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM hints WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("hints for %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load hints for %s: %w", runID, err)
	}

	var h hints.StructureHints
	if err := json.Unmarshal([]byte(payload), &h); err != nil {
		return nil, fmt.Errorf("unmarshal hints for %s: %w", runID, err)
	}
	return &h, nil
}

// SaveLedger upserts the run's ledger.
func (s *Store) SaveLedger(ctx context.Context, l *ledger.Ledger) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ledgers (run_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		l.RunID, string(payload), fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save ledger for %s: %w", l.RunID, err)
	}
	return nil
}

// LoadLedger loads the run's ledger.
func (s *Store) LoadLedger(ctx context.Context, runID string) (*ledger.Ledger, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ledgers WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger for %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger for %s: %w", runID, err)
	}

	var l ledger.Ledger
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		return nil, fmt.Errorf("unmarshal ledger for %s: %w", runID, err)
	}
	return &l, nil
}

// SaveText upserts a document text snapshot under the given label.
func (s *Store) SaveText(ctx context.Context, runID, label, body string, words, lines int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO texts (run_id, label, body, words, lines, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, label) DO UPDATE SET
			body = excluded.body, words = excluded.words, lines = excluded.lines, updated_at = excluded.updated_at`,
		runID, label, body, words, lines, fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save text %s/%s: %w", runID, label, err)
	}
	return nil
}

// LoadText loads the snapshot stored under label.
func (s *Store) LoadText(ctx context.Context, runID, label string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM texts WHERE run_id = ? AND label = ?`, runID, label).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("text %s/%s: %w", runID, label, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load text %s/%s: %w", runID, label, err)
	}
	return body, nil
}

// SaveMetrics upserts the run's metrics record.
func (s *Store) SaveMetrics(ctx context.Context, m *metrics.RunMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_metrics (run_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		m.RunID, string(payload), fmtTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save metrics for %s: %w", m.RunID, err)
	}
	return nil
}

// LoadMetrics loads one run's metrics record.
func (s *Store) LoadMetrics(ctx context.Context, runID string) (*metrics.RunMetrics, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM run_metrics WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metrics for %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load metrics for %s: %w", runID, err)
	}

	var m metrics.RunMetrics
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metrics for %s: %w", runID, err)
	}
	return &m, nil
}

// ListMetrics loads metrics for recent runs, newest first.
func (s *Store) ListMetrics(ctx context.Context, limit int) ([]metrics.RunMetrics, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM run_metrics ORDER BY updated_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	var out []metrics.RunMetrics
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		var m metrics.RunMetrics
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RunState is everything a resumed run loads back from the store.
type RunState struct {
	Run    *Run
	Hints  *hints.StructureHints
	Ledger *ledger.Ledger
	Text   string
}

// LoadRunState loads a run with its hints, ledger, and current text.
// Hints and ledger are nil when the run never got that far; Text falls
// back to the original snapshot when no current one exists.
func (s *Store) LoadRunState(ctx context.Context, runID string) (*RunState, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	state := &RunState{Run: run}

	if h, err := s.LoadHints(ctx, runID); err == nil {
		state.Hints = h
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if l, err := s.LoadLedger(ctx, runID); err == nil {
		state.Ledger = l
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	text, err := s.LoadText(ctx, runID, LabelCurrent)
	if errors.Is(err, ErrNotFound) {
		text, err = s.LoadText(ctx, runID, LabelOriginal)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	state.Text = text

	return state, nil
}
