package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Assembly squares the cleaned text away: blank lines at either edge
// go, interior blank runs collapse to single separators, and trailing
// space is stripped. No step moves a word.
type Assembly struct{}

func (Assembly) Name() phase.Phase { return phase.Assembly }

func (Assembly) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	lines := st.Doc.Lines()
	before := len(lines)

	lines = textutil.TrimTrailingSpace(lines)
	lines = trimEdgeBlanks(lines)
	lines = textutil.CollapseBlankLines(lines, 1)

	if len(lines) != before {
		out.Contribution.Transformations = append(out.Contribution.Transformations, ledger.TransformationRecord{
			Op:          ledger.OpCollapseBlanks,
			WordsBefore: st.Doc.WordCount(),
			WordsAfter:  st.Doc.WordCount(),
			Detail:      fmt.Sprintf("%d blank lines dropped", before-len(lines)),
		})
	}

	doc := st.Doc.WithLines(lines)
	out.Doc = doc
	out.Summary = fmt.Sprintf("assembled final text, %d lines, %d words", doc.LineCount(), doc.WordCount())
	env.logger().Debug("assembly complete",
		"document", st.DocumentID,
		"lines", doc.LineCount(),
		"words", doc.WordCount())
	return out, nil
}

func trimEdgeBlanks(lines []string) []string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}
