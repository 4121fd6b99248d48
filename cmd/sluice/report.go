package main

import (
	"fmt"
	"math"

	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/pipeline"
)

// runReport is the per-document summary printed after a run. It carries
// the full warning and recovery lists, never a bare pass/fail.
type runReport struct {
	RunID      string            `json:"run_id" yaml:"run_id"`
	DocumentID string            `json:"document_id" yaml:"document_id"`
	Status     metrics.RunStatus `json:"status" yaml:"status"`

	Confidence     int    `json:"confidence_pct" yaml:"confidence_pct"`
	Level          string `json:"confidence_level" yaml:"confidence_level"`
	Recommendation string `json:"recommendation" yaml:"recommendation"`

	WordsBefore  int     `json:"words_before" yaml:"words_before"`
	WordsAfter   int     `json:"words_after" yaml:"words_after"`
	ReductionPct float64 `json:"reduction_pct" yaml:"reduction_pct"`

	AICalls   int     `json:"ai_calls,omitempty" yaml:"ai_calls,omitempty"`
	AICostUSD float64 `json:"ai_cost_usd,omitempty" yaml:"ai_cost_usd,omitempty"`

	Checkpoints []string `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	Warnings    []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Recoveries  []string `json:"recoveries,omitempty" yaml:"recoveries,omitempty"`

	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// buildReport flattens a pipeline result for display.
func buildReport(res *pipeline.Result, outputPath string) runReport {
	r := runReport{
		RunID:          res.RunID,
		DocumentID:     res.DocumentID,
		Status:         res.Status,
		Confidence:     res.Display.Percentage,
		Level:          string(res.Display.Level),
		Recommendation: res.Display.Recommendation,
		WordsBefore:    res.Metrics.WordsBefore,
		WordsAfter:     res.Metrics.WordsAfter,
		ReductionPct:   round1(res.Metrics.ReductionPct()),
		AICalls:        res.Metrics.AI.Calls,
		AICostUSD:      res.Metrics.AI.CostUSD,
		OutputPath:     outputPath,
	}
	if res.Ledger != nil {
		for _, cp := range res.Ledger.Checkpoints {
			r.Checkpoints = append(r.Checkpoints, fmt.Sprintf("%s: %s", cp.Type, cp.Result))
		}
	}
	for _, w := range res.Warnings() {
		r.Warnings = append(r.Warnings, formatWarning(w))
	}
	for _, ev := range res.Recoveries() {
		r.Recoveries = append(r.Recoveries, formatRecovery(ev))
	}
	return r
}

func formatWarning(w ledger.Warning) string {
	if w.Phase != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Phase, w.Code, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

func formatRecovery(ev ledger.RecoveryEvent) string {
	step := ev.Step
	if step == "" {
		step = string(ev.Phase)
	} else {
		step = fmt.Sprintf("%s/%s", ev.Phase, ev.Step)
	}
	return fmt.Sprintf("%s: %s -> %s", step, ev.Kind, ev.Action)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
