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

// Reference strips citation and notation artifacts: inline footnote
// markers, OCR artifact lines, and decorative separators. Inline
// markers come out of the middle of lines; the other kinds drop whole
// matching lines.
type Reference struct{}

func (Reference) Name() phase.Phase { return phase.Reference }

func (Reference) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	if st.Hints == nil {
		out.Summary = "no structure hints, nothing to strip"
		return out, nil
	}

	inWords := st.Doc.WordCount()
	lines := st.Doc.Lines()
	matched := 0

	kinds := []hints.PatternKind{hints.PatternFootnoteMarker, hints.PatternOCRArtifact, hints.PatternSeparator}
	done := false
	for _, kind := range kinds {
		for _, pat := range st.Hints.PatternsOfKind(kind) {
			var rep clean.Report
			if kind == hints.PatternFootnoteMarker && pat.Regex {
				re, err := pat.Compile()
				if err != nil {
					out.Contribution.Warnings = append(out.Contribution.Warnings, ledger.Warning{
						Code:    "bad_pattern",
						Message: fmt.Sprintf("footnote marker pattern skipped: %v", err),
					})
					continue
				}
				lines, rep = clean.StripInlineMarkers(lines, re)
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

			step := "strip_" + string(kind)
			action, evs := guardLoss(env, phase.Reference, step, inWords, wordTotal(lines))
			out.Recoveries = append(out.Recoveries, evs...)
			switch action {
			case recovery.ActionRollbackPhase:
				out.Rollback = true
				return out, nil
			case recovery.ActionSkipRemaining:
				out.Contribution.Warnings = append(out.Contribution.Warnings,
					lossWarning(step, inWords, wordTotal(lines)))
				done = true
			case recovery.ActionContinueWithWarning:
				out.Contribution.Warnings = append(out.Contribution.Warnings,
					lossWarning(step, inWords, wordTotal(lines)))
			}
			if done {
				break
			}
		}
		if done {
			break
		}
	}

	if len(out.Contribution.AppliedPatterns) == 0 {
		out.Summary = "no reference patterns hinted"
		return out, nil
	}

	out.Doc = st.Doc.WithLines(lines)
	out.Summary = fmt.Sprintf("applied %d patterns, %d matches",
		len(out.Contribution.AppliedPatterns), matched)
	env.logger().Debug("reference pass complete",
		"document", st.DocumentID,
		"patterns", len(out.Contribution.AppliedPatterns),
		"matches", matched)
	return out, nil
}
