// Package recovery maps operation failures to bounded actions. The
// coordinator only recommends: it never touches the document or the
// ledger, and every decision is returned alongside an audit event for
// the orchestrator to record.
package recovery

import (
	"fmt"
	"log/slog"

	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
)

// FailureKind classifies what went wrong inside a phase operation.
type FailureKind string

const (
	AIResponseInvalid FailureKind = "ai_response_invalid"
	AITimeout         FailureKind = "ai_timeout"
	AIError           FailureKind = "ai_error"
	ValidationFailed  FailureKind = "validation_failed"
	ContentLoss       FailureKind = "content_loss"
)

// StepKind tells the coordinator what a degraded fallback looks like:
// detection steps have a heuristic substitute, transformation steps are
// skipped with the content preserved.
type StepKind string

const (
	StepDetection      StepKind = "detection"
	StepTransformation StepKind = "transformation"
)

// Action is the coordinator's recommendation.
type Action string

const (
	ActionContinue            Action = "continue"
	ActionContinueWithWarning Action = "continue_with_warning"
	ActionRetryOnce           Action = "retry_once"
	ActionFallbackHeuristic   Action = "fallback_heuristic"
	ActionSkipStep            Action = "skip_step"
	ActionSkipRemaining       Action = "skip_remaining_steps"
	ActionRollbackPhase       Action = "rollback_phase"
	ActionHaltPipeline        Action = "halt_pipeline"
)

// Failure describes one operation failure.
type Failure struct {
	Kind      FailureKind
	Phase     phase.Phase
	Step      string
	StepKind  StepKind
	Attempt   int
	LossRatio float64
	Err       error
}

// LossPolicy holds the content-loss bands.
type LossPolicy struct {
	// RollbackAbove: losing more than this fraction of the phase input
	// rolls the phase back.
	RollbackAbove float64 `mapstructure:"rollback_above" yaml:"rollback_above"`
	// SkipAbove: losing at least this fraction skips the phase's
	// remaining steps.
	SkipAbove float64 `mapstructure:"skip_above" yaml:"skip_above"`
}

// DefaultLossPolicy returns the stock bands.
func DefaultLossPolicy() LossPolicy {
	return LossPolicy{RollbackAbove: 0.50, SkipAbove: 0.25}
}

// Coordinator applies the decision table.
type Coordinator struct {
	policy LossPolicy
	logger *slog.Logger
}

// New returns a coordinator with the given loss bands.
func New(policy LossPolicy, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{policy: policy, logger: logger}
}

// Decide maps a failure to an action and the audit event describing it.
// The caller records the event; the coordinator keeps no state.
func (c *Coordinator) Decide(f Failure) (Action, ledger.RecoveryEvent) {
	action := c.decide(f)
	event := ledger.RecoveryEvent{
		Phase:  f.Phase,
		Step:   f.Step,
		Kind:   string(f.Kind),
		Action: string(action),
		Detail: detail(f),
	}
	c.logger.Warn("recovering from operation failure",
		"phase", f.Phase,
		"step", f.Step,
		"kind", f.Kind,
		"attempt", f.Attempt,
		"action", action)
	return action, event
}

func (c *Coordinator) decide(f Failure) Action {
	switch f.Kind {
	case ContentLoss:
		switch {
		case f.LossRatio > c.policy.RollbackAbove:
			return ActionRollbackPhase
		case f.LossRatio >= c.policy.SkipAbove:
			return ActionSkipRemaining
		default:
			return ActionContinueWithWarning
		}
	case AITimeout, AIError:
		if f.Attempt == 0 {
			return ActionRetryOnce
		}
		return degrade(f.StepKind)
	case AIResponseInvalid, ValidationFailed:
		return degrade(f.StepKind)
	}
	return ActionContinueWithWarning
}

// degrade picks the non-AI substitute for a step that cannot be trusted.
func degrade(kind StepKind) Action {
	if kind == StepTransformation {
		return ActionSkipStep
	}
	return ActionFallbackHeuristic
}

func detail(f Failure) string {
	switch f.Kind {
	case ContentLoss:
		return fmt.Sprintf("lost %.1f%% of phase input", f.LossRatio*100)
	default:
		msg := fmt.Sprintf("attempt %d", f.Attempt+1)
		if f.Err != nil {
			msg += ": " + f.Err.Error()
		}
		return msg
	}
}
