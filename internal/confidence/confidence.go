// Package confidence maintains the pipeline's running trust in its own
// output. The score starts at the reconnaissance confidence and can only
// hold or fall from there; no later phase may raise it.
package confidence

import (
	"fmt"
	"math"

	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Weights are per-component exponents in the combined score. 1.0 means
// the component counts at full strength, 0 removes it.
type Weights struct {
	Reconnaissance float64 `mapstructure:"reconnaissance" yaml:"reconnaissance"`
	Execution      float64 `mapstructure:"execution" yaml:"execution"`
	ContentType    float64 `mapstructure:"content_type" yaml:"content_type"`
	Patterns       float64 `mapstructure:"patterns" yaml:"patterns"`
	Validation     float64 `mapstructure:"validation" yaml:"validation"`
}

// DefaultWeights counts every component at full strength.
func DefaultWeights() Weights {
	return Weights{Reconnaissance: 1, Execution: 1, ContentType: 1, Patterns: 1, Validation: 1}
}

// Penalty is one recorded deduction, kept for the audit trail.
type Penalty struct {
	Phase    phase.Phase     `json:"phase"`
	Severity ledger.Severity `json:"severity"`
	Reason   string          `json:"reason"`
}

// Tracker combines five components into a single monotonically
// non-increasing scalar. A tracker belongs to exactly one run and is
// only touched by that run's orchestrator goroutine.
type Tracker struct {
	weights Weights

	recon       float64
	execution   float64
	contentType float64
	patterns    float64
	validation  float64

	penalties []Penalty
	current   float64
	seeded    bool
}

// NewTracker returns a tracker with all components at full confidence.
func NewTracker(w Weights) *Tracker {
	return &Tracker{
		weights:     w,
		recon:       1,
		execution:   1,
		contentType: 1,
		patterns:    1,
		validation:  1,
		current:     1,
	}
}

// Seed sets the reconnaissance component and pins the starting score to
// it. Must be called once, after reconnaissance, before any other
// update.
func (t *Tracker) Seed(reconConfidence float64) {
	t.recon = clamp01(reconConfidence)
	t.seeded = true
	t.current = t.recon
}

// Seeded reports whether reconnaissance has set the starting value.
func (t *Tracker) Seeded() bool { return t.seeded }

// RecordOutcome folds a checkpoint outcome into the execution and
// validation components. The reconnaissance checkpoint is excluded:
// its quality is already the seed.
func (t *Tracker) RecordOutcome(o ledger.CheckpointOutcome) {
	if o.Type == ledger.CheckpointRecon {
		return
	}
	t.execution *= clamp01(o.Confidence)
	t.recompute()
}

// AddPenalty records a deduction outside the checkpoint system, such as
// a failed word-count cross-check or a rejected AI response.
func (t *Tracker) AddPenalty(p phase.Phase, sev ledger.Severity, reason string) {
	t.penalties = append(t.penalties, Penalty{Phase: p, Severity: sev, Reason: reason})
	t.validation *= 1 - sev.Penalty()
	t.recompute()
}

// SetContentTypeMatch scores how well the detected content type agreed
// with the hint or user selection.
func (t *Tracker) SetContentTypeMatch(v float64) {
	t.contentType = clamp01(v)
	t.recompute()
}

// SetPatternConsistency scores how well applied pattern counts agreed
// with the reconnaissance estimates.
func (t *Tracker) SetPatternConsistency(v float64) {
	t.patterns = clamp01(v)
	t.recompute()
}

// Penalties returns the recorded deductions in order.
func (t *Tracker) Penalties() []Penalty {
	out := make([]Penalty, len(t.penalties))
	copy(out, t.penalties)
	return out
}

// Current returns the running score in [0,1].
func (t *Tracker) Current() float64 { return t.current }

// recompute rebuilds the candidate score and clamps it so the published
// value never rises.
func (t *Tracker) recompute() {
	candidate := weigh(t.recon, t.weights.Reconnaissance) *
		weigh(t.execution, t.weights.Execution) *
		weigh(t.contentType, t.weights.ContentType) *
		weigh(t.patterns, t.weights.Patterns) *
		weigh(t.validation, t.weights.Validation)
	if candidate < t.current {
		t.current = candidate
	}
}

func weigh(component, weight float64) float64 {
	if weight == 1 {
		return component
	}
	if weight == 0 {
		return 1
	}
	return math.Pow(component, weight)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Level is the banded presentation of a score.
type Level string

const (
	LevelHigh     Level = "high"
	LevelGood     Level = "good"
	LevelModerate Level = "moderate"
	LevelLow      Level = "low"
	LevelVeryLow  Level = "very_low"
)

// Display is the user-facing presentation of the running score.
type Display struct {
	Percentage     int    `json:"percentage" yaml:"percentage"`
	Level          Level  `json:"level" yaml:"level"`
	Recommendation string `json:"recommendation" yaml:"recommendation"`
}

// GetDisplay bands the current score at 90/75/60/40.
func (t *Tracker) GetDisplay() Display {
	return DisplayFor(t.current)
}

// DisplayFor bands an arbitrary score.
func DisplayFor(score float64) Display {
	pctVal := int(math.Round(clamp01(score) * 100))
	var level Level
	var rec string
	switch {
	case pctVal >= 90:
		level = LevelHigh
		rec = "cleaned text is trustworthy as-is"
	case pctVal >= 75:
		level = LevelGood
		rec = "spot-check the flagged areas before use"
	case pctVal >= 60:
		level = LevelModerate
		rec = "review the warnings before trusting the output"
	case pctVal >= 40:
		level = LevelLow
		rec = "manual review of the full output is recommended"
	default:
		level = LevelVeryLow
		rec = "treat the output as untrusted and inspect it end to end"
	}
	return Display{
		Percentage:     pctVal,
		Level:          level,
		Recommendation: rec,
	}
}

// String renders the display compactly for logs.
func (d Display) String() string {
	return fmt.Sprintf("%d%% (%s)", d.Percentage, d.Level)
}
