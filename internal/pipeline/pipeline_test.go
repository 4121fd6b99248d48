package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sluice-dev/sluice/internal/confidence"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/phases"
	"github.com/sluice-dev/sluice/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sampleBook is a small scanned-book shape: front matter, one chapter
// of body text broken up by standalone scan page numbers, and an index
// at the back.
func sampleBook() string {
	lines := []string{
		"THE RIVER JOURNAL",
		"",
		"CONTENTS",
		"I. Down the Valley ........ 1",
		"",
		"CHAPTER I",
		"",
		"The current carried the small boat past the willow banks",
		"and the water kept its slow unhurried pace toward the sea.",
		"Morning fog lifted from the reeds while herons waded the shallows",
		"and the first light caught the ripples spreading from the oars.",
		"12",
		"Past the mill the channel narrowed between mossy stone walls",
		"where swallows cut quick arcs above the slide of green water.",
		"The villages drifted by with their docks and drying nets",
		"and children ran the towpath calling out to the boatman.",
		"13",
		"By noon the valley widened into pasture and slow bends",
		"where cattle stood knee deep in the cool margin of the stream.",
		"The boatman shipped his oars and let the current steer",
		"while he ate bread and cheese in the shade of the gunwale.",
		"14",
		"Rain came up the valley in the late afternoon light",
		"and stippled the water with rings that spread and crossed.",
		"He rowed through it steadily with his collar turned up",
		"and the drops ran from the brim of his canvas hat.",
		"15",
		"The last stretch opened wide where the gulls turned over the",
		"estuary and the town lights came up along the far shore.",
		"He tied up at the stone quay as the evening bell rang.",
		"16",
		"",
		"INDEX",
		"boat, 3",
		"gull, 12",
	}
	return strings.Join(lines, "\n") + "\n"
}

func TestRunHeuristicCompletes(t *testing.T) {
	p := New(Options{Logger: testLogger()})

	res, err := p.Run(context.Background(), Request{DocumentID: "doc-1", Text: sampleBook()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Completed() {
		t.Fatalf("status = %s, want %s", res.Status, metrics.StatusCompleted)
	}
	if res.RunID == "" {
		t.Error("run id was not assigned")
	}
	if res.Text() == "" {
		t.Error("completed run returned empty text")
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("confidence = %.3f, want in (0, 1]", res.Confidence)
	}
	if res.Display.Level == "" {
		t.Error("display level is empty")
	}

	led := res.Ledger
	if got, want := len(led.CompletedPhases), len(phase.Sequence()); got != want {
		t.Errorf("completed %d phases, want %d", got, want)
	}
	if led.Cursor != phase.FinalReview {
		t.Errorf("cursor = %s, want %s", led.Cursor, phase.FinalReview)
	}
	wantCheckpoints := []ledger.CheckpointType{
		ledger.CheckpointRecon,
		ledger.CheckpointSemantic,
		ledger.CheckpointStructural,
		ledger.CheckpointReference,
		ledger.CheckpointOptimization,
		ledger.CheckpointFinal,
	}
	if len(led.Checkpoints) != len(wantCheckpoints) {
		t.Fatalf("recorded %d checkpoints, want %d", len(led.Checkpoints), len(wantCheckpoints))
	}
	for i, cp := range led.Checkpoints {
		if cp.Type != wantCheckpoints[i] {
			t.Errorf("checkpoint %d = %s, want %s", i, cp.Type, wantCheckpoints[i])
		}
	}
	if led.Current.Words > led.Original.Words {
		t.Errorf("document grew: %d words from %d", led.Current.Words, led.Original.Words)
	}
}

func TestRunConfidenceNeverRises(t *testing.T) {
	p := New(Options{Logger: testLogger()})

	res, err := p.Run(context.Background(), Request{Text: sampleBook()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ph := res.Metrics.Phases
	if len(ph) != len(phase.Sequence()) {
		t.Fatalf("recorded %d phase metrics, want %d", len(ph), len(phase.Sequence()))
	}
	for i := 1; i < len(ph); i++ {
		if ph[i].Confidence > ph[i-1].Confidence+1e-9 {
			t.Errorf("confidence rose at %s: %.4f -> %.4f",
				ph[i].Phase, ph[i-1].Confidence, ph[i].Confidence)
		}
	}
}

func TestRunEmptyInput(t *testing.T) {
	p := New(Options{Logger: testLogger()})
	for _, text := range []string{"", "   \n\t\n  "} {
		if _, err := p.Run(context.Background(), Request{Text: text}); err == nil {
			t.Errorf("Run(%q) accepted an empty document", text)
		}
	}
}

func TestDeclinedGateLeavesDocumentUntouched(t *testing.T) {
	text := sampleBook()
	gate := GateFunc(func(ctx context.Context, req ConfirmRequest) (Decision, error) {
		if req.Hints == nil {
			t.Error("gate saw no hints")
		}
		return Decision{Approved: false, Note: "wrong book"}, nil
	})
	p := New(Options{Logger: testLogger(), Gate: gate})

	res, err := p.Run(context.Background(), Request{Text: text})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != metrics.StatusDeclined {
		t.Fatalf("status = %s, want %s", res.Status, metrics.StatusDeclined)
	}
	if want := document.New(text).Text(); res.Text() != want {
		t.Error("declined run modified the document")
	}
	if res.Ledger.Cursor != "" {
		t.Errorf("cursor = %s, want empty before approval", res.Ledger.Cursor)
	}
}

func TestGateContentTypeOverride(t *testing.T) {
	gate := GateFunc(func(ctx context.Context, req ConfirmRequest) (Decision, error) {
		return Decision{Approved: true, ContentType: hints.ContentPoetry}, nil
	})
	p := New(Options{Logger: testLogger(), Gate: gate})

	res, err := p.Run(context.Background(), Request{Text: sampleBook()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Hints == nil {
		t.Fatal("result carries no hints")
	}
	if res.Hints.ContentType != hints.ContentPoetry {
		t.Errorf("content type = %s, want %s", res.Hints.ContentType, hints.ContentPoetry)
	}
}

func TestRunCancelledReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gate := GateFunc(func(ctx context.Context, req ConfirmRequest) (Decision, error) {
		cancel()
		return Decision{Approved: true}, nil
	})
	p := New(Options{Logger: testLogger(), Gate: gate})

	text := sampleBook()
	res, err := p.Run(ctx, Request{Text: text})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil {
		t.Fatal("cancelled run returned no result")
	}
	if res.Status != metrics.StatusCancelled {
		t.Errorf("status = %s, want %s", res.Status, metrics.StatusCancelled)
	}
	// Reconnaissance committed before the cancellation landed, and
	// nothing after it ran.
	if !res.Ledger.Completed(phase.Reconnaissance) {
		t.Error("reconnaissance was not committed")
	}
	if res.Ledger.Completed(phase.Metadata) {
		t.Error("metadata ran after cancellation")
	}
	if want := document.New(text).Text(); res.Text() != want {
		t.Error("cancelled run modified the document")
	}
}

func TestRunPersistsAndResumes(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "sluice.db"), testLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	gate := GateFunc(func(ctx context.Context, req ConfirmRequest) (Decision, error) {
		cancel()
		return Decision{Approved: true}, nil
	})
	first := New(Options{Logger: testLogger(), Store: s, Gate: gate})

	res, err := first.Run(ctx, Request{RunID: "run-resume", DocumentID: "doc-9", Text: sampleBook()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.Status != metrics.StatusCancelled {
		t.Fatalf("status = %s, want %s", res.Status, metrics.StatusCancelled)
	}

	row, err := s.GetRun(context.Background(), "run-resume")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if row.Status != metrics.StatusCancelled {
		t.Errorf("stored status = %s, want %s", row.Status, metrics.StatusCancelled)
	}
	if row.Cursor != phase.Reconnaissance {
		t.Errorf("stored cursor = %s, want %s", row.Cursor, phase.Reconnaissance)
	}

	second := New(Options{Logger: testLogger(), Store: s})
	resumed, err := second.Resume(context.Background(), "run-resume")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed.Completed() {
		t.Fatalf("resumed status = %s, want %s", resumed.Status, metrics.StatusCompleted)
	}
	if got := len(resumed.Ledger.Checkpoints); got != 6 {
		t.Errorf("resumed ledger has %d checkpoints, want 6", got)
	}

	row, err = s.GetRun(context.Background(), "run-resume")
	if err != nil {
		t.Fatalf("GetRun after resume: %v", err)
	}
	if row.Status != metrics.StatusCompleted {
		t.Errorf("stored status = %s, want %s", row.Status, metrics.StatusCompleted)
	}

	// Terminal runs refuse another resume.
	if _, err := second.Resume(context.Background(), "run-resume"); err == nil {
		t.Error("Resume accepted a completed run")
	}
}

func TestResumeRequiresStore(t *testing.T) {
	p := New(Options{Logger: testLogger()})
	if _, err := p.Resume(context.Background(), "run-1"); err == nil {
		t.Fatal("Resume without a store did not fail")
	}
}

func TestRunDeterministicWithoutAI(t *testing.T) {
	text := sampleBook()
	run := func() *Result {
		t.Helper()
		res, err := New(Options{Logger: testLogger()}).Run(context.Background(), Request{RunID: "run-det", Text: text})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return res
	}

	a, b := run(), run()
	if a.Text() != b.Text() {
		t.Error("identical inputs produced different text")
	}
	if a.Confidence != b.Confidence {
		t.Errorf("identical inputs produced different confidence: %.4f vs %.4f", a.Confidence, b.Confidence)
	}
	if len(a.Ledger.Checkpoints) != len(b.Ledger.Checkpoints) {
		t.Fatalf("checkpoint counts differ: %d vs %d", len(a.Ledger.Checkpoints), len(b.Ledger.Checkpoints))
	}
	for i := range a.Ledger.Checkpoints {
		ca, cb := a.Ledger.Checkpoints[i], b.Ledger.Checkpoints[i]
		if ca.Type != cb.Type || ca.Result != cb.Result || ca.Action != cb.Action {
			t.Errorf("checkpoint %d differs: %s/%s/%s vs %s/%s/%s",
				i, ca.Type, ca.Result, ca.Action, cb.Type, cb.Result, cb.Action)
		}
	}
}

// scriptedPhase lets a test stand in for a pipeline phase.
type scriptedPhase struct {
	name phase.Phase
	runs int
	fn   func(call int, st *phases.State) (*phases.Outcome, error)
}

func (s *scriptedPhase) Name() phase.Phase { return s.name }

func (s *scriptedPhase) Run(_ context.Context, _ *phases.Env, st *phases.State) (*phases.Outcome, error) {
	s.runs++
	return s.fn(s.runs, st)
}

func newTestRun(t *testing.T, p *Pipeline, text string, h *hints.StructureHints) *runState {
	t.Helper()
	doc := document.New(text)
	rs := &runState{
		req:       Request{RunID: "run-1", DocumentID: "doc-1", Text: text},
		doc:       doc,
		original:  doc,
		hints:     h,
		origin:    phases.IdentityOrigin(doc.LineCount()),
		led:       ledger.New("run-1", "doc-1", doc.Metrics()),
		tracker:   confidence.NewTracker(confidence.DefaultWeights()),
		collector: metrics.NewCollector("run-1", "doc-1", "", doc.WordCount(), doc.LineCount()),
	}
	p.equip(context.Background(), rs)
	t.Cleanup(rs.rec.Stop)
	return rs
}

func flatText(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = "alpha beta gamma"
	}
	return strings.Join(lines, "\n") + "\n"
}

// badOutcome trims the last third of the document and admits to a
// removal inside hinted core, which the semantic checkpoint treats as
// a critical failure.
func badOutcome(st *phases.State) *phases.Outcome {
	total := st.Doc.LineCount()
	cut := document.LineRange{Start: total - total/3 + 1, End: total}
	doc := st.Doc.RemoveRanges([]document.LineRange{cut})
	return &phases.Outcome{
		Doc: doc,
		Contribution: ledger.Contribution{
			RemovedRegions: []ledger.RemovedRegion{{
				RegionID:  "bad-1",
				Type:      hints.RegionUnknown,
				Lines:     cut,
				LineCount: cut.Len(),
				WordCount: 3 * cut.Len(),
				Reason:    "misidentified as removable",
			}},
		},
		Summary: "removed a slice of core content",
	}
}

func cleanOutcome(st *phases.State) *phases.Outcome {
	return &phases.Outcome{Doc: st.Doc, Summary: "left the document alone"}
}

func TestExecPhaseRollsBackFailedCheckpoint(t *testing.T) {
	text := flatText(12)
	core := document.LineRange{Start: 1, End: 12}
	h := &hints.StructureHints{
		DocumentID:        "doc-1",
		ContentType:       hints.ContentNovel,
		CoreContent:       &core,
		OverallConfidence: 0.9,
	}
	p := New(Options{Logger: testLogger()})
	rs := newTestRun(t, p, text, h)
	rs.tracker.Seed(0.9)

	fake := &scriptedPhase{name: phase.Semantic, fn: func(call int, st *phases.State) (*phases.Outcome, error) {
		if call == 1 {
			return badOutcome(st), nil
		}
		return cleanOutcome(st), nil
	}}

	v, err := p.execPhase(context.Background(), rs, fake)
	if err != nil {
		t.Fatalf("execPhase: %v", err)
	}
	if v != verdictContinue {
		t.Fatalf("verdict = %d, want continue", v)
	}
	if fake.runs != 2 {
		t.Errorf("phase ran %d times, want 2", fake.runs)
	}

	// Rollback restored the exact pre-phase document.
	if rs.doc.Text() != document.New(text).Text() {
		t.Error("rollback did not restore the snapshot")
	}
	if n := len(rs.led.RemovedRegions); n != 0 {
		t.Errorf("ledger kept %d purged removal records", n)
	}
	var rollbacks int
	for _, w := range rs.led.Warnings {
		if w.Code == "rollback" {
			rollbacks++
		}
	}
	if rollbacks != 1 {
		t.Errorf("recorded %d rollback warnings, want 1", rollbacks)
	}
	if n := len(rs.led.Checkpoints); n != 2 {
		t.Fatalf("recorded %d checkpoints, want 2", n)
	}
	if rs.led.Checkpoints[0].Result != ledger.ResultFailed {
		t.Errorf("first checkpoint = %s, want %s", rs.led.Checkpoints[0].Result, ledger.ResultFailed)
	}
	if rs.led.Checkpoints[1].Result != ledger.ResultPassed {
		t.Errorf("second checkpoint = %s, want %s", rs.led.Checkpoints[1].Result, ledger.ResultPassed)
	}
	if !rs.led.Completed(phase.Semantic) {
		t.Error("phase not marked complete after recovered rollback")
	}
	if rs.tracker.Current() >= 0.9 {
		t.Errorf("confidence = %.3f, want below the 0.9 seed after a failed checkpoint", rs.tracker.Current())
	}
}

func TestExecPhaseHaltsWhenDegradedFails(t *testing.T) {
	text := flatText(12)
	core := document.LineRange{Start: 1, End: 12}
	h := &hints.StructureHints{
		DocumentID:        "doc-1",
		ContentType:       hints.ContentNovel,
		CoreContent:       &core,
		OverallConfidence: 0.9,
	}
	p := New(Options{Logger: testLogger()})
	rs := newTestRun(t, p, text, h)
	rs.tracker.Seed(0.9)

	fake := &scriptedPhase{name: phase.Semantic, fn: func(call int, st *phases.State) (*phases.Outcome, error) {
		return badOutcome(st), nil
	}}

	v, err := p.execPhase(context.Background(), rs, fake)
	if err != nil {
		t.Fatalf("execPhase: %v", err)
	}
	if v != verdictHalt {
		t.Fatalf("verdict = %d, want halt", v)
	}
	if fake.runs != 2 {
		t.Errorf("phase ran %d times, want 2", fake.runs)
	}
	if rs.doc.Text() != document.New(text).Text() {
		t.Error("halt did not restore the snapshot")
	}
	if n := len(rs.led.RemovedRegions); n != 0 {
		t.Errorf("ledger kept %d purged removal records", n)
	}
	var rollback *ledger.Warning
	for i := range rs.led.Warnings {
		if rs.led.Warnings[i].Code == "rollback" {
			rollback = &rs.led.Warnings[i]
		}
	}
	if rollback == nil {
		t.Fatal("no rollback warning recorded")
	} else if !strings.Contains(rollback.Message, "degraded") {
		t.Errorf("rollback warning = %q, want the degraded re-run named", rollback.Message)
	}
	for i, cp := range rs.led.Checkpoints {
		if cp.Result != ledger.ResultFailed {
			t.Errorf("checkpoint %d = %s, want %s", i, cp.Result, ledger.ResultFailed)
		}
	}
	if rs.led.Completed(phase.Semantic) {
		t.Error("halted phase marked complete")
	}
}

func TestContentTypeMatch(t *testing.T) {
	cases := []struct {
		declared, detected hints.ContentType
		want               float64
	}{
		{"", hints.ContentNovel, 1},
		{hints.ContentNovel, hints.ContentNovel, 1},
		{hints.ContentPoetry, hints.ContentNovel, 0.8},
	}
	for _, tc := range cases {
		if got := contentTypeMatch(tc.declared, tc.detected); got != tc.want {
			t.Errorf("contentTypeMatch(%q, %q) = %.2f, want %.2f", tc.declared, tc.detected, got, tc.want)
		}
	}
}

func TestPatternConsistency(t *testing.T) {
	led := ledger.New("run-1", "doc-1", document.Metrics{})
	if got := patternConsistency(led); got != 1 {
		t.Errorf("empty ledger consistency = %.2f, want 1", got)
	}
	led.AppliedPatterns = []ledger.AppliedPattern{
		{Quality: 0.9}, {Quality: 0.5},
	}
	if got := patternConsistency(led); got != 0.7 {
		t.Errorf("consistency = %.2f, want 0.7", got)
	}
}

func TestTodoFrom(t *testing.T) {
	if got := todoFrom(phase.Reconnaissance); len(got) != len(phase.Sequence()) {
		t.Errorf("todoFrom(recon) returned %d phases, want %d", len(got), len(phase.Sequence()))
	}
	got := todoFrom(phase.Optimization)
	if len(got) != 3 {
		t.Fatalf("todoFrom(optimization) returned %d phases, want 3", len(got))
	}
	if got[0].Name() != phase.Optimization {
		t.Errorf("first phase = %s, want %s", got[0].Name(), phase.Optimization)
	}
	if got := todoFrom(phase.Phase("nope")); got != nil {
		t.Errorf("unknown phase returned %d phases, want none", len(got))
	}
}
