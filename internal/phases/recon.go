package phases

import (
	"context"
	"fmt"

	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
)

// Reconnaissance maps the document before anything changes it. The AI
// structure analysis produces the frozen hints every later phase works
// from; when the call cannot be recovered the heuristic analyzer takes
// over.
type Reconnaissance struct{}

func (Reconnaissance) Name() phase.Phase { return phase.Reconnaissance }

func (Reconnaissance) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}

	var h *hints.StructureHints
	if env.AI != nil {
		events, ok, err := runAIStep(ctx, env, phase.Reconnaissance, "structure_analysis", recovery.StepDetection,
			func(c context.Context) error {
				got, err := env.AI.AnalyzeStructure(c, st.Doc, st.DocumentID)
				if err != nil {
					return err
				}
				h = got
				return nil
			})
		out.Recoveries = append(out.Recoveries, events...)
		if err != nil {
			return nil, err
		}
		if !ok {
			h = nil
		}
	}
	if h == nil {
		h = env.Heuristic.AnalyzeStructure(st.Doc, st.DocumentID)
	}
	out.Hints = h

	if h.Characteristics.OCRQuality > 0 && h.Characteristics.OCRQuality < 0.7 {
		out.Contribution.Warnings = append(out.Contribution.Warnings, ledger.Warning{
			Code:    "ocr_quality",
			Message: fmt.Sprintf("estimated OCR quality %.2f, expect artifact-heavy text", h.Characteristics.OCRQuality),
		})
	}

	core := "none"
	if h.CoreContent != nil {
		core = h.CoreContent.String()
	}
	out.Summary = fmt.Sprintf("mapped %d regions and %d patterns, core content %s, confidence %.2f",
		len(h.Regions), len(h.Patterns), core, h.OverallConfidence)
	env.logger().Debug("reconnaissance complete",
		"document", st.DocumentID,
		"method", h.Method,
		"regions", len(h.Regions),
		"patterns", len(h.Patterns),
		"confidence", h.OverallConfidence)
	return out, nil
}
