// Package pipeline drives a cleaning run from raw text to graded
// output: the nine phases in order, a checkpoint after each phase that
// carries one, rollback and a degraded re-run when a checkpoint fails,
// the decision gate after reconnaissance, and enough persistence that
// an interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sluice-dev/sluice/internal/aicall"
	"github.com/sluice-dev/sluice/internal/analysis"
	"github.com/sluice-dev/sluice/internal/checkpoint"
	"github.com/sluice-dev/sluice/internal/confidence"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/phases"
	"github.com/sluice-dev/sluice/internal/prompts"
	"github.com/sluice-dev/sluice/internal/providers"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/store"
)

// Options configure a Pipeline. Zero values fall back to defaults; a
// nil LLM runs every phase on heuristics and a nil Store disables
// persistence and resume.
type Options struct {
	LLM      providers.LLMClient
	Resolver *prompts.Resolver
	Store    *store.Store
	Gate     DecisionGate
	Logger   *slog.Logger

	Thresholds checkpoint.Thresholds
	Weights    confidence.Weights
	LossPolicy recovery.LossPolicy

	// RetryBudget bounds the single retry of a failed AI call.
	RetryBudget time.Duration

	ReflowChunkLines int
	ReflowWorkers    int
}

// Pipeline executes cleaning runs. Safe for concurrent use; every run
// carries its own state.
type Pipeline struct {
	opts Options
}

// New builds a pipeline, filling unset options with defaults.
func New(opts Options) *Pipeline {
	if opts.Gate == nil {
		opts.Gate = AutoApprove{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Thresholds == (checkpoint.Thresholds{}) {
		opts.Thresholds = checkpoint.DefaultThresholds()
	}
	if opts.Weights == (confidence.Weights{}) {
		opts.Weights = confidence.DefaultWeights()
	}
	if opts.LossPolicy == (recovery.LossPolicy{}) {
		opts.LossPolicy = recovery.DefaultLossPolicy()
	}
	if opts.RetryBudget <= 0 {
		opts.RetryBudget = 2 * time.Minute
	}
	if opts.ReflowChunkLines <= 0 {
		opts.ReflowChunkLines = 150
	}
	if opts.ReflowWorkers <= 0 {
		opts.ReflowWorkers = 4
	}
	return &Pipeline{opts: opts}
}

// Request describes one document to clean.
type Request struct {
	// RunID is assigned when empty.
	RunID      string
	DocumentID string
	InputPath  string
	Text       string

	// ContentType is the caller's declared type, graded against what
	// reconnaissance detects. Optional.
	ContentType hints.ContentType
}

// runState is the mutable state of one run.
type runState struct {
	req      Request
	doc      *document.Document
	original *document.Document
	hints    *hints.StructureHints
	origin   phases.LineOrigin
	led      *ledger.Ledger

	tracker   *confidence.Tracker
	collector *metrics.Collector
	rec       *aicall.Recorder

	env      *phases.Env
	degraded *phases.Env

	todo []phases.Phase
}

// Run cleans one document end to end. On cancellation the partial
// result comes back along with the error; committed phases are never
// rolled back.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("empty document")
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.DocumentID == "" {
		req.DocumentID = req.RunID
	}

	doc := document.New(req.Text)
	rs := &runState{
		req:       req,
		doc:       doc,
		original:  doc,
		origin:    phases.IdentityOrigin(doc.LineCount()),
		led:       ledger.New(req.RunID, req.DocumentID, doc.Metrics()),
		tracker:   confidence.NewTracker(p.opts.Weights),
		collector: metrics.NewCollector(req.RunID, req.DocumentID, req.InputPath, doc.WordCount(), doc.LineCount()),
		todo:      phases.All(),
	}
	p.equip(ctx, rs)

	if s := p.opts.Store; s != nil {
		if err := s.CreateRun(ctx, &store.Run{
			RunID:      req.RunID,
			DocumentID: req.DocumentID,
			InputPath:  req.InputPath,
			Status:     metrics.StatusRunning,
		}); err != nil {
			rs.rec.Stop()
			return nil, fmt.Errorf("creating run: %w", err)
		}
		if err := s.SaveText(ctx, req.RunID, store.LabelOriginal, doc.Text(), doc.WordCount(), doc.LineCount()); err != nil {
			rs.rec.Stop()
			return nil, fmt.Errorf("saving original snapshot: %w", err)
		}
	}

	p.opts.Logger.Info("run starting",
		"run", req.RunID,
		"document", req.DocumentID,
		"words", doc.WordCount(),
		"lines", doc.LineCount(),
		"ai", p.opts.LLM != nil)

	return p.run(ctx, rs)
}

// Resume continues a stored run from its last completed phase. A run
// stopped at the decision gate keeps its reconnaissance results and
// asks again instead of re-detecting.
func (p *Pipeline) Resume(ctx context.Context, runID string) (*Result, error) {
	s := p.opts.Store
	if s == nil {
		return nil, errors.New("resume requires a store")
	}
	state, err := s.LoadRunState(ctx, runID)
	if err != nil {
		return nil, err
	}
	run := state.Run
	switch run.Status {
	case metrics.StatusCompleted, metrics.StatusDeclined, metrics.StatusHalted:
		return nil, fmt.Errorf("run %s is %s, nothing to resume", runID, run.Status)
	}
	next, ok := run.NextPhase()
	if !ok {
		return nil, fmt.Errorf("run %s has no phases left", runID)
	}

	origText, err := s.LoadText(ctx, runID, store.LabelOriginal)
	if err != nil {
		return nil, fmt.Errorf("loading original snapshot: %w", err)
	}
	original := document.New(origText)
	doc := original
	if state.Text != "" {
		doc = document.New(state.Text)
	}
	led := state.Ledger
	if led == nil {
		led = ledger.New(runID, run.DocumentID, original.Metrics())
	}

	rs := &runState{
		req: Request{
			RunID:      runID,
			DocumentID: run.DocumentID,
			InputPath:  run.InputPath,
		},
		doc:       doc,
		original:  original,
		hints:     state.Hints,
		origin:    phases.IdentityOrigin(original.LineCount()).Remap(original.Lines(), doc.Lines()),
		led:       led,
		tracker:   confidence.NewTracker(p.opts.Weights),
		collector: metrics.NewCollector(runID, run.DocumentID, run.InputPath, original.WordCount(), original.LineCount()),
		todo:      todoFrom(next),
	}
	if rs.hints != nil {
		rs.tracker.Seed(rs.hints.OverallConfidence)
	}
	// Replaying checkpoint history restores the confidence the run had
	// when it stopped.
	for _, cp := range led.Checkpoints {
		rs.tracker.RecordOutcome(cp)
	}
	p.equip(ctx, rs)

	p.opts.Logger.Info("run resuming",
		"run", runID, "from", next, "was", run.Status)

	if next == phase.Reconnaissance && rs.hints != nil {
		var reconCP ledger.CheckpointOutcome
		for _, cp := range led.Checkpoints {
			if cp.Type == ledger.CheckpointRecon {
				reconCP = cp
			}
		}
		v, err := p.reconGate(ctx, rs, reconCP)
		if err != nil {
			return p.finalize(ctx, rs, statusForErr(err), err)
		}
		if v == verdictDeclined {
			return p.finalize(ctx, rs, metrics.StatusDeclined, nil)
		}
		rs.todo = todoFrom(phase.Metadata)
	}

	return p.run(ctx, rs)
}

// equip builds the per-run recorder and phase environments.
func (p *Pipeline) equip(ctx context.Context, rs *runState) {
	logger := p.opts.Logger.With("run", rs.req.RunID)

	var sink aicall.Sink
	if p.opts.Store != nil {
		sink = p.opts.Store
	}
	rs.rec = aicall.NewRecorder(aicall.Config{
		Sink:       sink,
		RunID:      rs.req.RunID,
		DocumentID: rs.req.DocumentID,
		Logger:     logger,
	})
	rs.rec.Start(ctx)

	env := phases.Env{
		Heuristic:        analysis.NewHeuristic(logger),
		Coord:            recovery.New(p.opts.LossPolicy, logger),
		Logger:           logger,
		Thresholds:       p.opts.Thresholds,
		RetryBudget:      p.opts.RetryBudget,
		ReflowChunkLines: p.opts.ReflowChunkLines,
		ReflowWorkers:    p.opts.ReflowWorkers,
	}
	if p.opts.LLM != nil {
		aiOpts := []analysis.Option{
			analysis.WithAuditor(rs.rec),
			analysis.WithLogger(logger),
		}
		if p.opts.Resolver != nil {
			aiOpts = append(aiOpts, analysis.WithResolver(p.opts.Resolver))
		}
		env.AI = analysis.NewClient(p.opts.LLM, aiOpts...)
	}
	rs.env = &env

	deg := env
	deg.AI = nil
	rs.degraded = &deg
}

func (p *Pipeline) run(ctx context.Context, rs *runState) (*Result, error) {
	status := metrics.StatusRunning
	var runErr error

	for _, ph := range rs.todo {
		if err := ctx.Err(); err != nil {
			status, runErr = metrics.StatusCancelled, err
			break
		}
		v, err := p.execPhase(ctx, rs, ph)
		if err != nil {
			status, runErr = statusForErr(err), err
			break
		}
		if v == verdictHalt {
			status = metrics.StatusHalted
			break
		}
		if v == verdictDeclined {
			status = metrics.StatusDeclined
			break
		}
	}
	if status == metrics.StatusRunning {
		status = metrics.StatusCompleted
	}
	return p.finalize(ctx, rs, status, runErr)
}

type verdict int

const (
	verdictContinue verdict = iota
	verdictHalt
	verdictDeclined
)

func (p *Pipeline) execPhase(ctx context.Context, rs *runState, ph phases.Phase) (verdict, error) {
	name := ph.Name()
	rs.rec.SetPhase(string(name))
	rs.collector.BeginPhase(name, rs.doc.WordCount(), rs.doc.LineCount())

	var phOut metrics.PhaseOutcome
	defer func() {
		phOut.Confidence = rs.tracker.Current()
		rs.collector.EndPhase(rs.doc.WordCount(), rs.doc.LineCount(), phOut)
	}()

	start := time.Now()
	snapDoc, snapOrigin := rs.doc, rs.origin

	out, err := p.attempt(ctx, rs, ph, rs.env)
	if err != nil {
		return 0, err
	}
	phOut.Recoveries = len(out.Recoveries)

	degraded := false
	if out.Rollback {
		p.rollbackPhase(rs, name, snapDoc, snapOrigin, "content loss crossed the rollback band")
		if out, err = p.attempt(ctx, rs, ph, rs.degraded); err != nil {
			return 0, err
		}
		degraded = true
		phOut.Recoveries += len(out.Recoveries)
		if out.Rollback {
			phOut.CheckpointStatus = "halted"
			return verdictHalt, nil
		}
	}

	p.commit(rs, name, out, start)
	phOut.RegionsRemoved = len(out.Contribution.RemovedRegions)
	phOut.PatternsApplied = len(out.Contribution.AppliedPatterns)

	// Pattern work ends with the reference phase; grade how well the
	// applied counts agreed with the reconnaissance estimates.
	if name == phase.Reference {
		rs.tracker.SetPatternConsistency(patternConsistency(rs.led))
	}

	cp, hasCheckpoint := ledger.CheckpointFor(name)
	if !hasCheckpoint {
		rs.led.MarkCompleted(name)
		p.persist(ctx, rs, metrics.StatusRunning)
		return verdictContinue, nil
	}

	outc := p.evaluate(cp, name, rs, snapDoc)
	rs.led.RecordCheckpoint(outc)
	rs.tracker.RecordOutcome(outc)
	phOut.CheckpointStatus = string(outc.Result)

	if name == phase.Reconnaissance {
		return p.reconGate(ctx, rs, outc)
	}

	switch outc.Action {
	case ledger.ActionRollbackPhase:
		if degraded {
			p.rollbackPhase(rs, name, snapDoc, snapOrigin, "degraded re-run failed its checkpoint")
			phOut.CheckpointStatus = "halted"
			return verdictHalt, nil
		}
		p.rollbackPhase(rs, name, snapDoc, snapOrigin, checkpointReason(outc))
		if out, err = p.attempt(ctx, rs, ph, rs.degraded); err != nil {
			return 0, err
		}
		phOut.Recoveries += len(out.Recoveries)
		if out.Rollback {
			phOut.CheckpointStatus = "halted"
			return verdictHalt, nil
		}
		p.commit(rs, name, out, start)
		phOut.RegionsRemoved = len(out.Contribution.RemovedRegions)
		phOut.PatternsApplied = len(out.Contribution.AppliedPatterns)

		outc = p.evaluate(cp, name, rs, snapDoc)
		rs.led.RecordCheckpoint(outc)
		rs.tracker.RecordOutcome(outc)
		phOut.CheckpointStatus = string(outc.Result)
		if outc.Action == ledger.ActionRollbackPhase || outc.Action == ledger.ActionHaltPipeline {
			p.rollbackPhase(rs, name, snapDoc, snapOrigin, "degraded re-run failed its checkpoint")
			phOut.CheckpointStatus = "halted"
			return verdictHalt, nil
		}
	case ledger.ActionHaltPipeline:
		return verdictHalt, nil
	}

	rs.led.MarkCompleted(name)
	p.persist(ctx, rs, metrics.StatusRunning)
	p.saveCheckpointText(ctx, rs, name)
	return verdictContinue, nil
}

// attempt runs one phase against a snapshot view of the run state.
// Recovery events are recorded even when the outcome is discarded:
// they are history, not content.
func (p *Pipeline) attempt(ctx context.Context, rs *runState, ph phases.Phase, env *phases.Env) (*phases.Outcome, error) {
	st := &phases.State{
		RunID:      rs.req.RunID,
		DocumentID: rs.req.DocumentID,
		Doc:        rs.doc,
		Original:   rs.original,
		Hints:      rs.hints,
		Origin:     rs.origin,
		Ledger:     rs.led.Clone(),
	}
	out, err := ph.Run(ctx, env, st)
	if out != nil {
		for _, ev := range out.Recoveries {
			rs.led.RecordRecovery(ev)
		}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// commit folds a successful phase outcome into the run state.
func (p *Pipeline) commit(rs *runState, name phase.Phase, out *phases.Outcome, start time.Time) {
	contrib := out.Contribution
	contrib.Phase = name
	rs.led.Apply(contrib)

	if name == phase.Reconnaissance && out.Hints != nil {
		rs.hints = out.Hints
	}

	prev := rs.doc
	if out.Doc != nil {
		rs.doc = out.Doc
	}
	rs.led.SetCurrent(rs.doc.Metrics())

	// Coordinate bookkeeping ends after the structural phase, the last
	// one that records original line numbers.
	if name.Index() <= phase.Structural.Index() {
		rs.origin = rs.origin.Remap(prev.Lines(), rs.doc.Lines())
	}

	rs.led.RecordContribution(ledger.PhaseContribution{
		Phase:    name,
		Summary:  out.Summary,
		Records:  recordCount(out.Contribution),
		Duration: time.Since(start),
	})
}

// rollbackPhase restores the pre-phase snapshot, purges the phase's
// ledger records, and leaves a single warning explaining why.
func (p *Pipeline) rollbackPhase(rs *runState, name phase.Phase, snapDoc *document.Document, snapOrigin phases.LineOrigin, reason string) {
	rs.doc = snapDoc
	rs.origin = snapOrigin
	rs.led.PurgePhase(name)
	rs.led.Apply(ledger.Contribution{
		Phase: name,
		Warnings: []ledger.Warning{{
			Code:    "rollback",
			Message: reason,
		}},
	})
	rs.led.SetCurrent(snapDoc.Metrics())
	p.opts.Logger.Warn("phase rolled back",
		"run", rs.req.RunID, "phase", name, "reason", reason)
}

// reconGate seeds confidence from the structure map and holds the run
// until the plan is approved. The hints freeze once the gate passes.
func (p *Pipeline) reconGate(ctx context.Context, rs *runState, outc ledger.CheckpointOutcome) (verdict, error) {
	if rs.hints != nil {
		rs.tracker.Seed(rs.hints.OverallConfidence)
		rs.tracker.SetContentTypeMatch(contentTypeMatch(rs.req.ContentType, rs.hints.ContentType))
	}
	rs.collector.SetStatus(metrics.StatusAwaitingDecision)
	p.persist(ctx, rs, metrics.StatusAwaitingDecision)
	p.saveHints(ctx, rs)

	dec, err := p.opts.Gate.Confirm(ctx, ConfirmRequest{
		RunID:      rs.req.RunID,
		DocumentID: rs.req.DocumentID,
		Hints:      rs.hints,
		Checkpoint: outc,
		Display:    rs.tracker.GetDisplay(),
	})
	if err != nil {
		return 0, err
	}
	if !dec.Approved {
		p.opts.Logger.Info("cleaning plan declined",
			"run", rs.req.RunID, "note", dec.Note)
		return verdictDeclined, nil
	}
	if dec.ContentType != "" && rs.hints != nil {
		if dec.ContentType != rs.hints.ContentType {
			rs.hints.ContentType = dec.ContentType
			p.saveHints(ctx, rs)
		}
		// The user settled the content type question.
		rs.tracker.SetContentTypeMatch(1)
	}

	rs.collector.SetStatus(metrics.StatusRunning)
	rs.led.MarkCompleted(phase.Reconnaissance)
	p.persist(ctx, rs, metrics.StatusRunning)
	return verdictContinue, nil
}

func (p *Pipeline) evaluate(cp ledger.CheckpointType, name phase.Phase, rs *runState, before *document.Document) ledger.CheckpointOutcome {
	return checkpoint.Evaluate(cp, checkpoint.Input{
		Phase:    name,
		Before:   before.Metrics(),
		After:    rs.doc.Metrics(),
		Doc:      rs.doc,
		Original: rs.original,
		Hints:    rs.hints,
		Led:      rs.led,
	}, p.opts.Thresholds)
}

// persist writes the run's resumable state. Failures are logged, not
// fatal: the run in memory is still the source of truth.
func (p *Pipeline) persist(ctx context.Context, rs *runState, status metrics.RunStatus) {
	s := p.opts.Store
	if s == nil {
		return
	}
	// Interrupted runs must still leave resumable state behind.
	pctx := context.WithoutCancel(ctx)
	if err := s.SaveLedger(pctx, rs.led); err != nil {
		p.opts.Logger.Warn("persisting ledger failed", "run", rs.req.RunID, "error", err)
	}
	if err := s.SaveText(pctx, rs.req.RunID, store.LabelCurrent, rs.doc.Text(), rs.doc.WordCount(), rs.doc.LineCount()); err != nil {
		p.opts.Logger.Warn("persisting text failed", "run", rs.req.RunID, "error", err)
	}
	if err := s.UpdateRun(pctx, rs.req.RunID, status, rs.led.Cursor, rs.tracker.Current()); err != nil {
		p.opts.Logger.Warn("persisting run failed", "run", rs.req.RunID, "error", err)
	}
}

func (p *Pipeline) saveHints(ctx context.Context, rs *runState) {
	if p.opts.Store == nil || rs.hints == nil {
		return
	}
	if err := p.opts.Store.SaveHints(context.WithoutCancel(ctx), rs.req.RunID, rs.hints); err != nil {
		p.opts.Logger.Warn("persisting hints failed", "run", rs.req.RunID, "error", err)
	}
}

func (p *Pipeline) saveCheckpointText(ctx context.Context, rs *runState, name phase.Phase) {
	if p.opts.Store == nil {
		return
	}
	label := store.CheckpointLabel(name)
	if err := p.opts.Store.SaveText(context.WithoutCancel(ctx), rs.req.RunID, label,
		rs.doc.Text(), rs.doc.WordCount(), rs.doc.LineCount()); err != nil {
		p.opts.Logger.Warn("persisting checkpoint text failed",
			"run", rs.req.RunID, "label", label, "error", err)
	}
}

// finalize closes the run under the given status and assembles the
// result. Cancelled and halted runs return everything committed so far.
func (p *Pipeline) finalize(ctx context.Context, rs *runState, status metrics.RunStatus, runErr error) (*Result, error) {
	rs.rec.Stop()
	totals := rs.rec.Totals()
	disp := rs.tracker.GetDisplay()
	final := rs.collector.Finalize(status, rs.doc.WordCount(), rs.doc.LineCount(), totals, rs.tracker.Current(), string(disp.Level))

	if s := p.opts.Store; s != nil {
		if err := s.SaveMetrics(context.WithoutCancel(ctx), &final); err != nil {
			p.opts.Logger.Warn("persisting metrics failed", "run", rs.req.RunID, "error", err)
		}
	}
	p.persist(ctx, rs, status)

	p.opts.Logger.Info("run finished",
		"run", rs.req.RunID,
		"status", status,
		"confidence", rs.tracker.Current(),
		"words_before", rs.original.WordCount(),
		"words_after", rs.doc.WordCount())

	return &Result{
		RunID:      rs.req.RunID,
		DocumentID: rs.req.DocumentID,
		Status:     status,
		Confidence: rs.tracker.Current(),
		Display:    disp,
		Metrics:    final,
		Doc:        rs.doc,
		Hints:      rs.hints,
		Ledger:     rs.led,
	}, runErr
}

// contentTypeMatch grades agreement between the declared and detected
// content types. An undeclared type is a match.
func contentTypeMatch(declared, detected hints.ContentType) float64 {
	if declared == "" || declared == detected {
		return 1
	}
	return 0.8
}

// patternConsistency is the mean quality of the applied patterns, 1
// when none were applied.
func patternConsistency(led *ledger.Ledger) float64 {
	if len(led.AppliedPatterns) == 0 {
		return 1
	}
	var sum float64
	for _, ap := range led.AppliedPatterns {
		sum += ap.Quality
	}
	return sum / float64(len(led.AppliedPatterns))
}

func checkpointReason(outc ledger.CheckpointOutcome) string {
	failed := outc.FailedCriteria()
	if len(failed) == 0 {
		return "checkpoint failed"
	}
	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = c.Name
	}
	return "checkpoint failed: " + strings.Join(names, ", ")
}

func recordCount(c ledger.Contribution) int {
	return len(c.RemovedRegions) + len(c.AppliedPatterns) + len(c.Boundaries) +
		len(c.Transformations) + len(c.Flags) + len(c.Warnings)
}

func statusForErr(err error) metrics.RunStatus {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.StatusCancelled
	}
	return metrics.StatusFailed
}

func todoFrom(next phase.Phase) []phases.Phase {
	all := phases.All()
	for i, ph := range all {
		if ph.Name() == next {
			return all[i:]
		}
	}
	return nil
}
