// Package phases implements the nine cleaning phases. A phase is a
// step over run state: it receives the current document, the frozen
// structure hints, and a read-only ledger view, and hands back a new
// document plus the records to append. Phases never touch the
// canonical ledger; the orchestrator owns it.
package phases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sluice-dev/sluice/internal/analysis"
	"github.com/sluice-dev/sluice/internal/checkpoint"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Env is the fixed equipment a run hands to every phase.
type Env struct {
	// AI is the analysis client. nil runs every step on heuristics.
	AI        *analysis.Client
	Heuristic *analysis.Heuristic
	Coord     *recovery.Coordinator
	Logger    *slog.Logger

	// Thresholds supplies the per-phase reduction budgets the loss
	// guard consults.
	Thresholds checkpoint.Thresholds

	// RetryBudget is the deadline for the single coordinated retry of
	// a failed AI call.
	RetryBudget time.Duration

	// ReflowChunkLines and ReflowWorkers shape the optimization
	// fan-out.
	ReflowChunkLines int
	ReflowWorkers    int
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// State is the slice of run state a phase works on.
type State struct {
	RunID      string
	DocumentID string

	Doc      *document.Document
	Original *document.Document
	Hints    *hints.StructureHints

	// Origin maps current line numbers back to the original document.
	// The orchestrator maintains it through the structural phase, the
	// last one that records coordinates.
	Origin LineOrigin

	// Ledger is a read-only clone of the run ledger.
	Ledger *ledger.Ledger
}

// Outcome is everything one phase hands back to the orchestrator.
type Outcome struct {
	// Doc is the document after the phase. Never nil on success.
	Doc *document.Document

	// Hints is set by reconnaissance only.
	Hints *hints.StructureHints

	// Contribution holds the records to append to the ledger.
	Contribution ledger.Contribution

	// Recoveries are failures handled inside the phase.
	Recoveries []ledger.RecoveryEvent

	// Rollback is set when content loss crossed the rollback band. The
	// orchestrator discards Doc and re-runs the phase degraded.
	Rollback bool

	Summary string
}

// Phase is one pipeline stage.
type Phase interface {
	Name() phase.Phase
	Run(ctx context.Context, env *Env, st *State) (*Outcome, error)
}

// All returns the nine phases in execution order.
func All() []Phase {
	return []Phase{
		Reconnaissance{},
		Metadata{},
		Semantic{},
		Structural{},
		Reference{},
		Finishing{},
		Optimization{},
		Assembly{},
		FinalReview{},
	}
}

// runAIStep executes one AI-backed step under the recovery policy: a
// failed call is retried once on a fresh budget when the coordinator
// says so, and any further failure reports ok=false so the caller runs
// the degraded substitute. Cancellation is never recovered; it comes
// back as the error.
func runAIStep(ctx context.Context, env *Env, p phase.Phase, step string, kind recovery.StepKind,
	call func(context.Context) error) (events []ledger.RecoveryEvent, ok bool, err error) {

	callErr := call(ctx)
	if callErr == nil {
		return nil, true, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	action, ev := env.Coord.Decide(recovery.Failure{
		Kind:     analysis.Classify(callErr),
		Phase:    p,
		Step:     step,
		StepKind: kind,
		Attempt:  0,
		Err:      callErr,
	})
	events = append(events, ev)

	if action == recovery.ActionRetryOnce {
		retryCtx := ctx
		cancel := func() {}
		if env.RetryBudget > 0 {
			retryCtx, cancel = context.WithTimeout(ctx, env.RetryBudget)
		}
		callErr = call(retryCtx)
		cancel()
		if callErr == nil {
			return events, true, nil
		}
		if ctx.Err() != nil {
			return events, false, ctx.Err()
		}
		_, ev = env.Coord.Decide(recovery.Failure{
			Kind:     analysis.Classify(callErr),
			Phase:    p,
			Step:     step,
			StepKind: kind,
			Attempt:  1,
			Err:      callErr,
		})
		events = append(events, ev)
	}

	return events, false, nil
}

// lossConsultFloor is the default cumulative loss ratio below which a
// destructive step counts as routine cleaning. Phases with a configured
// reduction budget use that instead.
const lossConsultFloor = 0.05

// lossFloor returns the reduction a phase may take before the loss
// guard consults the coordinator.
func (e *Env) lossFloor(p phase.Phase) float64 {
	var f float64
	switch p {
	case phase.Semantic:
		f = e.Thresholds.MaxSemanticReduction
	case phase.Structural:
		f = e.Thresholds.MaxStructuralReduction
	case phase.Reference:
		f = e.Thresholds.MaxReferenceReduction
	case phase.Optimization:
		f = e.Thresholds.ReflowWordTolerance
	}
	if f <= 0 {
		f = lossConsultFloor
	}
	return f
}

// guardLoss measures cumulative phase loss after a destructive step and
// asks the coordinator what to do once it exceeds the phase's budget.
func guardLoss(env *Env, p phase.Phase, step string, phaseInWords, nowWords int) (recovery.Action, []ledger.RecoveryEvent) {
	if phaseInWords <= 0 {
		return recovery.ActionContinue, nil
	}
	loss := 1 - float64(nowWords)/float64(phaseInWords)
	if loss <= env.lossFloor(p) {
		return recovery.ActionContinue, nil
	}
	action, ev := env.Coord.Decide(recovery.Failure{
		Kind:      recovery.ContentLoss,
		Phase:     p,
		Step:      step,
		LossRatio: loss,
	})
	return action, []ledger.RecoveryEvent{ev}
}

// lossWarning is the ledger record for a continue-with-warning loss
// decision.
func lossWarning(step string, phaseInWords, nowWords int) ledger.Warning {
	loss := 0.0
	if phaseInWords > 0 {
		loss = 1 - float64(nowWords)/float64(phaseInWords)
	}
	return ledger.Warning{
		Code:    "content_loss",
		Message: fmt.Sprintf("%s removed %.1f%% of the phase input", step, loss*100),
	}
}

// wordTotal counts words across a line slice.
func wordTotal(lines []string) int {
	n := 0
	for _, l := range lines {
		n += textutil.WordCount(l)
	}
	return n
}

// patternQuality grades how well an applied pattern's matches agreed
// with its reconnaissance estimate, anchored on the pattern's own
// confidence. Full agreement keeps the confidence; finding nothing
// where matches were promised halves it.
func patternQuality(confidence float64, matches, estimated int) float64 {
	agreement := 1.0
	if estimated > 0 {
		if matches >= estimated {
			agreement = float64(estimated) / float64(matches)
		} else {
			agreement = float64(matches) / float64(estimated)
		}
	}
	q := confidence * (0.5 + 0.5*agreement)
	if q > 1 {
		q = 1
	}
	if q < 0 {
		q = 0
	}
	return q
}
