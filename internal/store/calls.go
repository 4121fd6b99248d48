package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sluice-dev/sluice/internal/aicall"
)

// SaveCalls inserts a batch of AI call records. Satisfies the call
// recorder's sink.
func (s *Store) SaveCalls(ctx context.Context, calls []*aicall.Call) error {
	if len(calls) == 0 {
		return nil
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ai_calls (
				id, run_id, document_id, phase, stage, provider, model, request_id,
				timestamp, latency_ms, prompt_tokens, completion_tokens, total_tokens,
				cost_usd, attempts, response, truncated, success, error_type, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range calls {
			_, err := stmt.ExecContext(ctx,
				c.ID, c.RunID, c.DocumentID, c.Phase, c.Stage, c.Provider, c.Model,
				c.RequestID, fmtTime(c.Timestamp), c.LatencyMs, c.PromptTokens,
				c.CompletionTokens, c.TotalTokens, c.CostUSD, c.Attempts,
				c.Response, c.Truncated, c.Success, c.ErrorType, c.Error)
			if err != nil {
				return fmt.Errorf("insert call %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListCalls returns a run's AI call records in chronological order.
func (s *Store) ListCalls(ctx context.Context, runID string) ([]*aicall.Call, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, document_id, phase, stage, provider, model, request_id,
			timestamp, latency_ms, prompt_tokens, completion_tokens, total_tokens,
			cost_usd, attempts, response, truncated, success, error_type, error
		FROM ai_calls WHERE run_id = ? ORDER BY timestamp, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list calls for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*aicall.Call
	for rows.Next() {
		var (
			c  aicall.Call
			ts string
		)
		err := rows.Scan(&c.ID, &c.RunID, &c.DocumentID, &c.Phase, &c.Stage,
			&c.Provider, &c.Model, &c.RequestID, &ts, &c.LatencyMs,
			&c.PromptTokens, &c.CompletionTokens, &c.TotalTokens, &c.CostUSD,
			&c.Attempts, &c.Response, &c.Truncated, &c.Success, &c.ErrorType, &c.Error)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		c.Timestamp = parseTime(ts)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CallTotals aggregates a run's AI usage straight from the database.
func (s *Store) CallTotals(ctx context.Context, runID string) (aicall.Totals, error) {
	var t aicall.Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM ai_calls WHERE run_id = ?`, runID).
		Scan(&t.Calls, &t.Failures, &t.PromptTokens, &t.CompletionTokens, &t.CostUSD)
	if err != nil {
		return aicall.Totals{}, fmt.Errorf("call totals for %s: %w", runID, err)
	}
	return t, nil
}
