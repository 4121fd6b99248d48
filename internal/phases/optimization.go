package phases

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sluice-dev/sluice/internal/clean"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/prompts/reflow"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Optimization reflows hard-wrapped lines into full paragraphs. The
// document is split into paragraph-aligned chunks that a worker pool
// reflows concurrently; a chunk whose reflow cannot be trusted keeps
// its original lines. Reflow moves words between lines but never
// invents or drops one beyond the hyphen joins it reports.
type Optimization struct{}

func (Optimization) Name() phase.Phase { return phase.Optimization }

type chunkResult struct {
	lines   []string
	rec     *ledger.TransformationRecord
	events  []ledger.RecoveryEvent
	skipped bool
}

func (Optimization) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	inWords := st.Doc.WordCount()

	chunkLines := env.ReflowChunkLines
	if chunkLines < 1 {
		chunkLines = 120
	}
	chunks := chunkParagraphs(st.Doc.Lines(), chunkLines)
	if len(chunks) == 0 {
		out.Summary = "empty document, nothing to reflow"
		return out, nil
	}

	workers := env.ReflowWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(chunks) {
		workers = len(chunks)
	}

	jobs := make(chan int)
	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = reflowChunk(ctx, env, chunks[i], i, len(chunks))
			}
		}()
	}
feed:
	for i := range chunks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var lines []string
	skipped := 0
	for i, r := range results {
		out.Recoveries = append(out.Recoveries, r.events...)
		if r.skipped {
			skipped++
		}
		if r.rec != nil {
			out.Contribution.Transformations = append(out.Contribution.Transformations, *r.rec)
		}
		chunk := r.lines
		if chunk == nil {
			chunk = chunks[i]
		}
		if len(lines) > 0 && lines[len(lines)-1] != "" && len(chunk) > 0 && chunk[0] != "" {
			lines = append(lines, "")
		}
		lines = append(lines, chunk...)
	}
	if skipped > 0 {
		out.Contribution.Warnings = append(out.Contribution.Warnings, ledger.Warning{
			Code:    "reflow_skipped",
			Message: fmt.Sprintf("%d of %d chunks kept their original line breaks", skipped, len(chunks)),
		})
	}

	doc := st.Doc.WithLines(lines)
	out.Doc = doc

	action, evs := guardLoss(env, phase.Optimization, "reflow_paragraphs", inWords, doc.WordCount())
	out.Recoveries = append(out.Recoveries, evs...)
	switch action {
	case recovery.ActionRollbackPhase:
		out.Rollback = true
		return out, nil
	case recovery.ActionContinueWithWarning, recovery.ActionSkipRemaining:
		out.Contribution.Warnings = append(out.Contribution.Warnings,
			lossWarning("reflow_paragraphs", inWords, doc.WordCount()))
	}

	out.Summary = fmt.Sprintf("reflowed %d chunks, %d skipped, %d lines now %d",
		len(chunks)-skipped, skipped, st.Doc.LineCount(), doc.LineCount())
	env.logger().Debug("reflow complete",
		"document", st.DocumentID,
		"chunks", len(chunks),
		"skipped", skipped,
		"workers", workers)
	return out, nil
}

// reflowChunk reflows one chunk: through the AI when available, with
// the skip-and-keep fallback when its answer cannot be trusted, or
// mechanically when the run has no AI at all.
func reflowChunk(ctx context.Context, env *Env, chunk []string, idx, total int) chunkResult {
	detail := fmt.Sprintf("chunk %d/%d", idx+1, total)

	if env.AI == nil {
		lines, rep := clean.ReflowParagraphs(chunk)
		return chunkResult{
			lines: lines,
			rec: &ledger.TransformationRecord{
				Op:          ledger.OpReflow,
				WordsBefore: rep.WordsBefore,
				WordsAfter:  rep.WordsAfter,
				Detail:      detail + ", mechanical",
			},
		}
	}

	words := wordTotal(chunk)
	var res *reflow.Result
	events, ok, err := runAIStep(ctx, env, phase.Optimization, "reflow_"+fmt.Sprint(idx+1), recovery.StepTransformation,
		func(c context.Context) error {
			got, err := env.AI.Reflow(c, strings.Join(chunk, "\n"), idx, total)
			if err != nil {
				return err
			}
			res = got
			return nil
		})
	if err != nil || !ok {
		return chunkResult{lines: chunk, events: events, skipped: true}
	}

	return chunkResult{
		lines: textutil.SplitLines(res.ReflowedText),
		rec: &ledger.TransformationRecord{
			Op:          ledger.OpReflow,
			WordsBefore: words,
			WordsAfter:  words - res.JoinedHyphens,
			Detail:      fmt.Sprintf("%s, %d paragraphs, %d hyphen joins", detail, res.ParagraphCount, res.JoinedHyphens),
		},
		events: events,
	}
}

// chunkParagraphs splits lines into chunks of at most maxLines, cutting
// only at blank lines so no paragraph spans two chunks. A single
// paragraph longer than maxLines is cut hard.
func chunkParagraphs(lines []string, maxLines int) [][]string {
	if len(lines) == 0 {
		return nil
	}
	var chunks [][]string
	start := 0
	lastBlank := -1
	for i := range lines {
		if strings.TrimSpace(lines[i]) == "" {
			lastBlank = i
		}
		if i-start+1 < maxLines {
			continue
		}
		cut := lastBlank
		if cut < start {
			cut = i
		}
		chunks = append(chunks, lines[start:cut+1])
		start = cut + 1
		lastBlank = -1
	}
	if start < len(lines) {
		chunks = append(chunks, lines[start:])
	}
	return chunks
}
