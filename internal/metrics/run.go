// Package metrics tracks what a cleaning run did to a document: word
// and line counts per phase, removals, durations, AI usage, and the
// final preservation figures reported at assembly.
package metrics

import (
	"time"

	"github.com/sluice-dev/sluice/internal/aicall"
	"github.com/sluice-dev/sluice/internal/phase"
)

// RunStatus is the lifecycle state of a cleaning run.
type RunStatus string

const (
	StatusRunning          RunStatus = "running"
	StatusAwaitingDecision RunStatus = "awaiting_decision"
	StatusCompleted        RunStatus = "completed"
	StatusHalted           RunStatus = "halted"
	StatusDeclined         RunStatus = "declined"
	StatusFailed           RunStatus = "failed"
	StatusCancelled        RunStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusHalted, StatusDeclined, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// RunMetrics is the append-only record of one cleaning run.
type RunMetrics struct {
	RunID      string    `json:"run_id"`
	DocumentID string    `json:"document_id"`
	InputPath  string    `json:"input_path,omitempty"`
	Status     RunStatus `json:"status"`

	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	TotalSeconds float64   `json:"total_seconds,omitempty"`

	WordsBefore int `json:"words_before"`
	WordsAfter  int `json:"words_after,omitempty"`
	LinesBefore int `json:"lines_before"`
	LinesAfter  int `json:"lines_after,omitempty"`

	FinalConfidence float64 `json:"final_confidence,omitempty"`
	ConfidenceBand  string  `json:"confidence_band,omitempty"`

	AI aicall.Totals `json:"ai"`

	Phases []PhaseMetrics `json:"phases,omitempty"`
}

// PreservationRatio is words kept over words in, in [0,1].
func (m *RunMetrics) PreservationRatio() float64 {
	if m.WordsBefore == 0 {
		return 0
	}
	return float64(m.WordsAfter) / float64(m.WordsBefore)
}

// ReductionPct is the percentage of words removed across the run.
func (m *RunMetrics) ReductionPct() float64 {
	if m.WordsBefore == 0 {
		return 0
	}
	return 100 * float64(m.WordsBefore-m.WordsAfter) / float64(m.WordsBefore)
}

// PhaseMetrics records what one phase did.
type PhaseMetrics struct {
	Phase   phase.Phase `json:"phase"`
	Seconds float64     `json:"seconds"`

	WordsIn  int `json:"words_in"`
	WordsOut int `json:"words_out"`
	LinesIn  int `json:"lines_in"`
	LinesOut int `json:"lines_out"`

	RegionsRemoved  int `json:"regions_removed,omitempty"`
	PatternsApplied int `json:"patterns_applied,omitempty"`
	Recoveries      int `json:"recoveries,omitempty"`

	// CheckpointStatus is empty for phases without a checkpoint.
	CheckpointStatus string  `json:"checkpoint_status,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// WordReductionPct is the percentage of words this phase removed.
func (p *PhaseMetrics) WordReductionPct() float64 {
	if p.WordsIn == 0 {
		return 0
	}
	return 100 * float64(p.WordsIn-p.WordsOut) / float64(p.WordsIn)
}
