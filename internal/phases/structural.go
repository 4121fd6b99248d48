package phases

import (
	"context"
	"fmt"

	"github.com/sluice-dev/sluice/internal/analysis"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Structural confirms where the core content starts and ends, then
// trims everything outside it. Boundary detection runs on the current
// document against a hint window translated into current coordinates;
// the ledger records stay in original coordinates.
type Structural struct{}

func (Structural) Name() phase.Phase { return phase.Structural }

func (Structural) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	if st.Hints == nil || st.Hints.CoreContent == nil {
		out.Contribution.Warnings = append(out.Contribution.Warnings, ledger.Warning{
			Code:    "no_core_hint",
			Message: "no core content hint, document left untrimmed",
		})
		out.Summary = "no core content hint, skipped trim"
		return out, nil
	}

	hintCur, ok := st.Origin.Window(*st.Hints.CoreContent)
	if !ok {
		out.Contribution.Warnings = append(out.Contribution.Warnings, ledger.Warning{
			Code:    "core_hint_gone",
			Message: "hinted core content no longer present, skipped trim",
		})
		out.Summary = "hinted core content gone, skipped trim"
		return out, nil
	}

	localHints := st.Hints.Clone()
	localHints.CoreContent = &hintCur

	var boundary *analysis.BoundaryResult
	if env.AI != nil {
		events, ok, err := runAIStep(ctx, env, phase.Structural, "boundary_detection", recovery.StepDetection,
			func(c context.Context) error {
				got, err := env.AI.DetectBoundary(c, st.Doc, localHints)
				if err != nil {
					return err
				}
				boundary = got
				return nil
			})
		out.Recoveries = append(out.Recoveries, events...)
		if err != nil {
			return nil, err
		}
		if !ok {
			boundary = nil
		}
	}
	if boundary == nil {
		boundary = env.Heuristic.ConfirmBoundary(st.Doc, localHints)
	}

	total := st.Doc.LineCount()
	coreCur := document.LineRange{Start: boundary.CoreStart, End: boundary.CoreEnd}
	if coreCur.Start < 1 {
		coreCur.Start = 1
	}
	if coreCur.End < coreCur.Start || coreCur.End > total {
		coreCur.End = total
	}

	out.Contribution.Boundaries = []ledger.ConfirmedBoundary{
		{
			Kind:       ledger.BoundaryCoreStart,
			Line:       st.Origin.ToOriginal(coreCur.Start),
			Method:     boundary.Method,
			Confidence: boundary.Confidence,
		},
		{
			Kind:       ledger.BoundaryCoreEnd,
			Line:       st.Origin.ToOriginal(coreCur.End),
			Method:     boundary.Method,
			Confidence: boundary.Confidence,
		},
	}
	if boundary.BackMatterStart > 0 && boundary.BackMatterStart <= total {
		out.Contribution.Boundaries = append(out.Contribution.Boundaries, ledger.ConfirmedBoundary{
			Kind:       ledger.BoundaryBackMatterStart,
			Line:       st.Origin.ToOriginal(boundary.BackMatterStart),
			Method:     boundary.Method,
			Confidence: boundary.Confidence,
		})
	}

	if coreCur.Start == 1 && coreCur.End == total {
		out.Summary = fmt.Sprintf("core confirmed as whole document, confidence %.2f", boundary.Confidence)
		return out, nil
	}

	inWords := st.Doc.WordCount()
	if coreCur.Start > 1 {
		out.Contribution.RemovedRegions = append(out.Contribution.RemovedRegions,
			trimRecords(st, document.LineRange{Start: 1, End: coreCur.Start - 1})...)
	}
	if coreCur.End < total {
		out.Contribution.RemovedRegions = append(out.Contribution.RemovedRegions,
			trimRecords(st, document.LineRange{Start: coreCur.End + 1, End: total})...)
	}

	doc := st.Doc.Keep(coreCur)
	out.Doc = doc

	action, evs := guardLoss(env, phase.Structural, "trim_to_core", inWords, doc.WordCount())
	out.Recoveries = append(out.Recoveries, evs...)
	switch action {
	case recovery.ActionRollbackPhase:
		out.Rollback = true
		return out, nil
	case recovery.ActionContinueWithWarning, recovery.ActionSkipRemaining:
		out.Contribution.Warnings = append(out.Contribution.Warnings,
			lossWarning("trim_to_core", inWords, doc.WordCount()))
	}

	out.Summary = fmt.Sprintf("trimmed to core %s, removed %d lines, confidence %.2f",
		coreCur.String(), total-doc.LineCount(), boundary.Confidence)
	env.logger().Debug("structural trim complete",
		"document", st.DocumentID,
		"method", boundary.Method,
		"core", coreCur.String(),
		"lines_removed", total-doc.LineCount())
	return out, nil
}

// trimRecords explains one trimmed stretch of the current document as
// ledger records: a record per hinted region the stretch crosses, with
// the uncovered remainder attributed to unknown regions. Ranges come
// back in original coordinates.
func trimRecords(st *State, envCur document.LineRange) []ledger.RemovedRegion {
	owners := make([]*hints.Region, envCur.Len())
	for i := 0; i < envCur.Len(); i++ {
		orig := st.Origin.ToOriginal(envCur.Start + i)
		for ri := range st.Hints.Regions {
			r := &st.Hints.Regions[ri]
			if r.Type == hints.RegionBodyText {
				continue
			}
			if r.Lines.Contains(orig) {
				owners[i] = r
				break
			}
		}
	}

	var out []ledger.RemovedRegion
	segStart := 0
	flush := func(end int) {
		curSeg := document.LineRange{Start: envCur.Start + segStart, End: envCur.Start + end}
		rec := ledger.RemovedRegion{
			Type: hints.RegionUnknown,
			Lines: document.LineRange{
				Start: st.Origin.ToOriginal(curSeg.Start),
				End:   st.Origin.ToOriginal(curSeg.End),
			},
			LineCount: curSeg.Len(),
			WordCount: textutil.WordCount(st.Doc.SliceText(curSeg)),
			Reason:    "outside confirmed core content",
		}
		if r := owners[segStart]; r != nil {
			rec.RegionID = r.ID
			rec.Type = r.Type
		}
		out = append(out, rec)
	}
	for i := 1; i < len(owners); i++ {
		if owners[i] != owners[segStart] {
			flush(i - 1)
			segStart = i
		}
	}
	if len(owners) > 0 {
		flush(len(owners) - 1)
	}
	return out
}
