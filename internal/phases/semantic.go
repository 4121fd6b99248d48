package phases

import (
	"context"
	"fmt"

	"github.com/sluice-dev/sluice/internal/clean"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
)

// Semantic strips the page-level recurring artifacts reconnaissance
// identified: standalone page numbers and running headers and footers.
// It applies only hinted patterns, so a document mapped without any
// passes through untouched.
type Semantic struct{}

func (Semantic) Name() phase.Phase { return phase.Semantic }

func (Semantic) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	if st.Hints == nil {
		out.Summary = "no structure hints, nothing to strip"
		return out, nil
	}

	inWords := st.Doc.WordCount()
	lines := st.Doc.Lines()
	matched := 0

	apply := func(pat hints.Pattern, step string) (stop bool) {
		var rep clean.Report
		if pat.Kind == hints.PatternPageNumber {
			lines, rep = clean.StripPageNumbers(lines, &pat)
		} else {
			lines, rep = clean.StripMatchingLines(lines, pat)
		}
		matched += rep.MatchCount
		out.Contribution.AppliedPatterns = append(out.Contribution.AppliedPatterns, ledger.AppliedPattern{
			Kind:           pat.Kind,
			Matcher:        pat.Matcher,
			MatchCount:     rep.MatchCount,
			EstimatedCount: pat.EstimatedCount,
			Quality:        patternQuality(pat.Confidence, rep.MatchCount, pat.EstimatedCount),
		})

		action, evs := guardLoss(env, phase.Semantic, step, inWords, wordTotal(lines))
		out.Recoveries = append(out.Recoveries, evs...)
		switch action {
		case recovery.ActionRollbackPhase:
			out.Rollback = true
			return true
		case recovery.ActionSkipRemaining:
			out.Contribution.Warnings = append(out.Contribution.Warnings,
				lossWarning(step, inWords, wordTotal(lines)))
			return true
		case recovery.ActionContinueWithWarning:
			out.Contribution.Warnings = append(out.Contribution.Warnings,
				lossWarning(step, inWords, wordTotal(lines)))
		}
		return false
	}

	done := false
	for _, pat := range st.Hints.PatternsOfKind(hints.PatternPageNumber) {
		if done = apply(pat, "strip_page_numbers"); done {
			break
		}
	}
	if !done {
		for _, kind := range []hints.PatternKind{hints.PatternPageHeader, hints.PatternPageFooter} {
			for _, pat := range st.Hints.PatternsOfKind(kind) {
				if done = apply(pat, "strip_"+string(kind)+"s"); done {
					break
				}
			}
			if done {
				break
			}
		}
	}

	if out.Rollback {
		return out, nil
	}
	if len(out.Contribution.AppliedPatterns) == 0 {
		out.Summary = "no page-artifact patterns hinted"
		return out, nil
	}

	out.Doc = st.Doc.WithLines(lines)
	out.Summary = fmt.Sprintf("applied %d patterns, stripped %d lines",
		len(out.Contribution.AppliedPatterns), matched)
	env.logger().Debug("semantic pass complete",
		"document", st.DocumentID,
		"patterns", len(out.Contribution.AppliedPatterns),
		"lines_stripped", matched)
	return out, nil
}
