package pipeline

import (
	"context"

	"github.com/sluice-dev/sluice/internal/confidence"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
)

// ConfirmRequest is everything the user sees before approving a plan:
// the frozen-to-be structure hints, the reconnaissance checkpoint, and
// the confidence so far.
type ConfirmRequest struct {
	RunID      string
	DocumentID string
	Hints      *hints.StructureHints
	Checkpoint ledger.CheckpointOutcome
	Display    confidence.Display
}

// Decision is the user's verdict on the reconnaissance plan.
type Decision struct {
	Approved bool
	// ContentType corrects the detected content type when set.
	ContentType hints.ContentType
	Note        string
}

// DecisionGate is consulted after reconnaissance, before any content
// changes. Confirm blocks until the caller decides; there is no
// timeout, only context cancellation. Implementations that serve
// several documents at once must not let one pending decision stall
// the rest.
type DecisionGate interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Decision, error)
}

// AutoApprove accepts every plan. Batch runs use it so no document
// waits on a terminal.
type AutoApprove struct{}

func (AutoApprove) Confirm(ctx context.Context, req ConfirmRequest) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return Decision{Approved: true}, nil
}

// GateFunc adapts a function to the DecisionGate interface.
type GateFunc func(ctx context.Context, req ConfirmRequest) (Decision, error)

func (f GateFunc) Confirm(ctx context.Context, req ConfirmRequest) (Decision, error) {
	return f(ctx, req)
}
