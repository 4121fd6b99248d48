package ledger

import (
	"time"

	"github.com/sluice-dev/sluice/internal/phase"
)

// CheckpointType names one of the six validation gates in a run.
type CheckpointType string

const (
	CheckpointRecon        CheckpointType = "post_reconnaissance"
	CheckpointSemantic     CheckpointType = "post_semantic"
	CheckpointStructural   CheckpointType = "post_structural"
	CheckpointReference    CheckpointType = "post_reference"
	CheckpointOptimization CheckpointType = "post_optimization"
	CheckpointFinal        CheckpointType = "final"
)

// Sequence of checkpoints in run order, keyed by the phase they follow.
var checkpointAfter = map[phase.Phase]CheckpointType{
	phase.Reconnaissance: CheckpointRecon,
	phase.Semantic:       CheckpointSemantic,
	phase.Structural:     CheckpointStructural,
	phase.Reference:      CheckpointReference,
	phase.Optimization:   CheckpointOptimization,
	phase.FinalReview:    CheckpointFinal,
}

// CheckpointFor returns the checkpoint that follows p, if any.
func CheckpointFor(p phase.Phase) (CheckpointType, bool) {
	cp, ok := checkpointAfter[p]
	return cp, ok
}

// Result grades a checkpoint evaluation.
type Result string

const (
	ResultPassed             Result = "passed"
	ResultPassedWithWarnings Result = "passed_with_warnings"
	ResultMarginal           Result = "marginal"
	ResultFailed             Result = "failed"
	ResultSkipped            Result = "skipped"
)

// RecommendedAction is what the orchestrator should do after a checkpoint.
type RecommendedAction string

const (
	ActionContinue            RecommendedAction = "continue"
	ActionContinueWithCaution RecommendedAction = "continue_with_caution"
	ActionRequestUserDecision RecommendedAction = "request_user_decision"
	ActionRollbackPhase       RecommendedAction = "rollback_phase"
	ActionHaltPipeline        RecommendedAction = "halt_pipeline"
)

// CriterionResult is one criterion's verdict within a checkpoint.
type CriterionResult struct {
	Name        string   `json:"name"`
	Passed      bool     `json:"passed"`
	Severity    Severity `json:"severity"`
	Actual      string   `json:"actual"`
	Expected    string   `json:"expected"`
	Explanation string   `json:"explanation,omitempty"`
}

// CheckpointOutcome is the full record of one checkpoint evaluation.
type CheckpointOutcome struct {
	Type       CheckpointType    `json:"type"`
	Phase      phase.Phase       `json:"phase"`
	Result     Result            `json:"result"`
	Action     RecommendedAction `json:"action"`
	Criteria   []CriterionResult `json:"criteria"`
	Confidence float64           `json:"confidence"`
	Summary    string            `json:"summary,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// FailedCriteria returns the criteria that did not pass.
func (o CheckpointOutcome) FailedCriteria() []CriterionResult {
	var out []CriterionResult
	for _, c := range o.Criteria {
		if !c.Passed {
			out = append(out, c)
		}
	}
	return out
}
