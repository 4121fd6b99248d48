package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/prompts/review"
	"github.com/sluice-dev/sluice/internal/recovery"
)

// FinalReview grades the finished document before results go back to
// the caller: an AI read-through of three samples plus the run metrics
// when a client is available, a mechanical inspection otherwise. Review
// findings land as flags for the final checkpoint to weigh.
type FinalReview struct{}

// reviewSampleLines is how much of the document each review sample
// shows.
const reviewSampleLines = 25

func (FinalReview) Name() phase.Phase { return phase.FinalReview }

func (FinalReview) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}

	var res *review.Result
	if env.AI != nil {
		input := reviewInput(st)
		events, ok, err := runAIStep(ctx, env, phase.FinalReview, "final_review", recovery.StepDetection,
			func(c context.Context) error {
				got, err := env.AI.Review(c, input)
				if err != nil {
					return err
				}
				res = got
				return nil
			})
		out.Recoveries = append(out.Recoveries, events...)
		if err != nil {
			return nil, err
		}
		if !ok {
			res = nil
		}
	}
	if res == nil {
		res = heuristicReview(env, st)
	}

	if !res.Complete {
		out.Contribution.Flags = append(out.Contribution.Flags, ledger.Flag{
			Code:     "incomplete",
			Severity: ledger.SeverityCritical,
			Message:  "review judged the cleaned document incomplete",
		})
	}
	if !res.Readable {
		out.Contribution.Flags = append(out.Contribution.Flags, ledger.Flag{
			Code:     "unreadable",
			Severity: ledger.SeverityError,
			Message:  "review judged the cleaned document hard to read",
		})
	}
	for _, issue := range res.Issues {
		sev := ledger.Severity(issue.Severity)
		if sev.Rank() < 0 {
			sev = ledger.SeverityWarning
		}
		msg := issue.Description
		if issue.Location != "" {
			msg = fmt.Sprintf("%s (%s)", issue.Description, issue.Location)
		}
		out.Contribution.Flags = append(out.Contribution.Flags, ledger.Flag{
			Code:     "review_issue",
			Severity: sev,
			Message:  msg,
		})
	}

	out.Summary = res.Summary
	if out.Summary == "" {
		out.Summary = fmt.Sprintf("review complete, %d issues", len(res.Issues))
	}
	env.logger().Debug("final review complete",
		"document", st.DocumentID,
		"complete", res.Complete,
		"readable", res.Readable,
		"issues", len(res.Issues),
		"confidence", res.Confidence)
	return out, nil
}

// reviewInput assembles the metrics and samples the reviewer sees.
func reviewInput(st *State) review.Input {
	in := review.Input{
		DocumentID:    st.DocumentID,
		OriginalLines: st.Original.LineCount(),
		OriginalWords: st.Original.WordCount(),
		CleanedLines:  st.Doc.LineCount(),
		CleanedWords:  st.Doc.WordCount(),
		StartSample:   sampleAt(st.Doc, 1),
		MiddleSample:  sampleAt(st.Doc, st.Doc.LineCount()/2-reviewSampleLines/2),
		EndSample:     sampleAt(st.Doc, st.Doc.LineCount()-reviewSampleLines+1),
	}
	if st.Ledger != nil {
		in.RegionsRemoved = len(st.Ledger.RemovedRegions)
		in.PatternsApplied = len(st.Ledger.AppliedPatterns)
		in.WarningCount = len(st.Ledger.Warnings)
	}
	return in
}

func sampleAt(doc *document.Document, start int) string {
	total := doc.LineCount()
	if total == 0 {
		return ""
	}
	if start < 1 {
		start = 1
	}
	end := start + reviewSampleLines - 1
	if end > total {
		end = total
	}
	return doc.SliceText(document.LineRange{Start: start, End: end})
}

// heuristicReview is the mechanical stand-in for the AI reviewer: it
// checks the preservation ratio and scans for leftover OCR wreckage.
func heuristicReview(env *Env, st *State) *review.Result {
	res := &review.Result{
		Complete:   true,
		Readable:   true,
		Confidence: 0.5,
		Summary:    "mechanical review without AI assistance",
	}

	words := st.Doc.WordCount()
	if words == 0 {
		res.Complete = false
		res.Readable = false
		res.Issues = append(res.Issues, review.Issue{
			Severity:    "critical",
			Description: "cleaned document is empty",
			Location:    "metrics",
		})
		return res
	}

	minPreservation := env.Thresholds.MinOverallPreservation
	if minPreservation <= 0 {
		minPreservation = 0.5
	}
	if orig := st.Original.WordCount(); orig > 0 {
		preservation := float64(words) / float64(orig)
		if preservation < minPreservation {
			res.Complete = false
			res.Issues = append(res.Issues, review.Issue{
				Severity:    "critical",
				Description: fmt.Sprintf("only %.0f%% of the original words survived cleaning", preservation*100),
				Location:    "metrics",
			})
		}
	}

	text := st.Doc.Text()
	if n := strings.Count(text, "�"); n > 0 {
		res.Issues = append(res.Issues, review.Issue{
			Severity:    "warning",
			Description: fmt.Sprintf("%d replacement characters remain in the text", n),
		})
	}
	return res
}
