package pipeline

import (
	"github.com/sluice-dev/sluice/internal/confidence"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/metrics"
)

// Result is what a run hands back, terminal or not: the document as it
// stands, the full ledger, and the graded confidence. A cancelled or
// halted run still returns everything committed up to that point.
type Result struct {
	RunID      string             `json:"run_id" yaml:"run_id"`
	DocumentID string             `json:"document_id" yaml:"document_id"`
	Status     metrics.RunStatus  `json:"status" yaml:"status"`
	Confidence float64            `json:"confidence" yaml:"confidence"`
	Display    confidence.Display `json:"display" yaml:"display"`
	Metrics    metrics.RunMetrics `json:"metrics" yaml:"metrics"`

	Doc    *document.Document    `json:"-" yaml:"-"`
	Hints  *hints.StructureHints `json:"-" yaml:"-"`
	Ledger *ledger.Ledger        `json:"-" yaml:"-"`
}

// Text returns the document text, empty when the run produced none.
func (r *Result) Text() string {
	if r.Doc == nil {
		return ""
	}
	return r.Doc.Text()
}

// Warnings returns the ledger's warning list.
func (r *Result) Warnings() []ledger.Warning {
	if r.Ledger == nil {
		return nil
	}
	return r.Ledger.Warnings
}

// Recoveries returns every failure the run absorbed.
func (r *Result) Recoveries() []ledger.RecoveryEvent {
	if r.Ledger == nil {
		return nil
	}
	return r.Ledger.Recoveries
}

// Completed reports whether the run finished the whole sequence.
func (r *Result) Completed() bool {
	return r.Status == metrics.StatusCompleted
}
