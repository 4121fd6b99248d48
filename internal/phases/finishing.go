package phases

import (
	"context"
	"fmt"

	"github.com/sluice-dev/sluice/internal/clean"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
)

// Finishing normalizes what OCR mangled: typographic quotes and
// ligatures, trailing whitespace, blank-line runs, and words split
// across line breaks. Every step is mechanical and word-accounted.
type Finishing struct{}

func (Finishing) Name() phase.Phase { return phase.Finishing }

func (Finishing) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	inWords := st.Doc.WordCount()
	lines := st.Doc.Lines()

	record := func(op ledger.TransformOp, rep clean.Report, detail string) {
		if rep.MatchCount == 0 && rep.LinesRemoved == 0 && rep.WordsBefore == rep.WordsAfter {
			return
		}
		out.Contribution.Transformations = append(out.Contribution.Transformations, ledger.TransformationRecord{
			Op:          op,
			WordsBefore: rep.WordsBefore,
			WordsAfter:  rep.WordsAfter,
			Detail:      detail,
		})
	}

	var rep clean.Report
	lines, rep = clean.NormalizePunctuation(lines)
	record(ledger.OpNormalizePunctuation, rep, fmt.Sprintf("%d lines touched", rep.MatchCount))

	lines, rep = clean.NormalizeWhitespace(lines)
	record(ledger.OpNormalizeWhitespace, rep, fmt.Sprintf("%d blank lines collapsed", rep.LinesRemoved))

	lines, rep = clean.Dehyphenate(lines)
	record(ledger.OpDehyphenate, rep, fmt.Sprintf("%d hyphenated words joined", rep.MatchCount))
	joins := rep.MatchCount

	doc := st.Doc.WithLines(lines)
	out.Doc = doc

	action, evs := guardLoss(env, phase.Finishing, "normalize_text", inWords, doc.WordCount())
	out.Recoveries = append(out.Recoveries, evs...)
	switch action {
	case recovery.ActionRollbackPhase:
		out.Rollback = true
		return out, nil
	case recovery.ActionContinueWithWarning, recovery.ActionSkipRemaining:
		out.Contribution.Warnings = append(out.Contribution.Warnings,
			lossWarning("normalize_text", inWords, doc.WordCount()))
	}

	out.Summary = fmt.Sprintf("normalized text, %d transformations, %d words joined",
		len(out.Contribution.Transformations), joins)
	env.logger().Debug("finishing pass complete",
		"document", st.DocumentID,
		"transformations", len(out.Contribution.Transformations),
		"joins", joins)
	return out, nil
}
