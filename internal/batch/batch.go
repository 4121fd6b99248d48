// Package batch fans the cleaning pipeline out over many documents
// with a bounded pool. A document waiting at the decision gate hands
// its slot back, so one pending question never stalls the rest of the
// batch.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/pipeline"
)

// Config shapes a batch run.
type Config struct {
	// Workers bounds how many documents run their phases at once.
	// Defaults to the CPU count, capped at 4.
	Workers int

	// StopOnError cancels the remaining documents after the first
	// failed run. Declined and halted runs are verdicts, not errors,
	// and never stop the batch.
	StopOnError bool
}

// Item is one document in a batch.
type Item struct {
	DocumentID  string
	InputPath   string
	Text        string
	ContentType hints.ContentType
}

// ItemResult pairs a document with how its run ended. Result is set
// whenever the pipeline got far enough to produce one.
type ItemResult struct {
	Item   Item
	Result *pipeline.Result
	Err    error
}

// Runner executes batches against one pipeline configuration.
type Runner struct {
	pipe   *pipeline.Pipeline
	sem    chan struct{}
	cfg    Config
	logger *slog.Logger
}

// New builds a runner. The gate in opts is wrapped so a pending
// decision releases its pool slot; everything else passes through to
// the pipeline unchanged.
func New(opts pipeline.Options, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 4)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sem := make(chan struct{}, cfg.Workers)
	inner := opts.Gate
	if inner == nil {
		inner = pipeline.AutoApprove{}
	}
	opts.Gate = &yieldingGate{sem: sem, inner: inner}

	return &Runner{
		pipe:   pipeline.New(opts),
		sem:    sem,
		cfg:    cfg,
		logger: logger,
	}
}

// Run cleans every item and returns per-document results in input
// order. The returned error is the failure that stopped the batch
// early, nil when every document reached a verdict.
func (r *Runner) Run(ctx context.Context, items []Item) ([]ItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	bctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ItemResult, len(items))
	var (
		wg       sync.WaitGroup
		stopOnce sync.Once
		stopErr  error
	)
	stop := func(err error) {
		stopOnce.Do(func() {
			stopErr = err
			cancel()
		})
	}

	r.logger.Info("batch starting", "documents", len(items), "workers", r.cfg.Workers)

	for i := range items {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := items[i]

			select {
			case r.sem <- struct{}{}:
			case <-bctx.Done():
				results[i] = ItemResult{Item: item, Err: bctx.Err()}
				return
			}
			defer func() { <-r.sem }()

			res, err := r.pipe.Run(bctx, pipeline.Request{
				DocumentID:  item.DocumentID,
				InputPath:   item.InputPath,
				Text:        item.Text,
				ContentType: item.ContentType,
			})
			results[i] = ItemResult{Item: item, Result: res, Err: err}
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("document failed",
					"document", item.DocumentID, "error", err)
				if r.cfg.StopOnError {
					stop(err)
				}
			}
		}(i)
	}
	wg.Wait()

	if stopErr != nil {
		return results, stopErr
	}
	return results, ctx.Err()
}

// yieldingGate frees the caller's pool slot for the life of the
// question and takes one back before the run continues. Slots carry no
// identity, so give-back and re-take need no bookkeeping.
type yieldingGate struct {
	sem   chan struct{}
	inner pipeline.DecisionGate
}

func (g *yieldingGate) Confirm(ctx context.Context, req pipeline.ConfirmRequest) (pipeline.Decision, error) {
	<-g.sem
	dec, err := g.inner.Confirm(ctx, req)
	g.sem <- struct{}{}
	return dec, err
}

// Tally counts batch verdicts.
type Tally struct {
	Completed int
	Declined  int
	Halted    int
	Failed    int
	Cancelled int
}

// TallyOf folds per-document results into verdict counts.
func TallyOf(results []ItemResult) Tally {
	var t Tally
	for _, r := range results {
		if r.Result == nil {
			if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
				t.Cancelled++
			} else {
				t.Failed++
			}
			continue
		}
		switch r.Result.Status {
		case metrics.StatusCompleted:
			t.Completed++
		case metrics.StatusDeclined:
			t.Declined++
		case metrics.StatusHalted:
			t.Halted++
		case metrics.StatusCancelled:
			t.Cancelled++
		default:
			t.Failed++
		}
	}
	return t
}
