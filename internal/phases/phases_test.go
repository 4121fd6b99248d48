package phases

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/sluice-dev/sluice/internal/analysis"
	"github.com/sluice-dev/sluice/internal/checkpoint"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
)

func testEnv() *Env {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Env{
		Heuristic:        analysis.NewHeuristic(logger),
		Coord:            recovery.New(recovery.DefaultLossPolicy(), logger),
		Logger:           logger,
		Thresholds:       checkpoint.DefaultThresholds(),
		ReflowChunkLines: 40,
		ReflowWorkers:    2,
	}
}

func testState(doc *document.Document, h *hints.StructureHints) *State {
	return &State{
		RunID:      "run-1",
		DocumentID: "doc-1",
		Doc:        doc,
		Original:   doc,
		Hints:      h,
		Origin:     IdentityOrigin(doc.LineCount()),
		Ledger:     ledger.New("run-1", "doc-1", doc.Metrics()),
	}
}

func TestAllOrder(t *testing.T) {
	all := All()
	seq := phase.Sequence()
	if len(all) != len(seq) {
		t.Fatalf("All() returned %d phases, want %d", len(all), len(seq))
	}
	for i, p := range all {
		if p.Name() != seq[i] {
			t.Errorf("phase %d = %s, want %s", i, p.Name(), seq[i])
		}
	}
}

func TestLineOrigin(t *testing.T) {
	t.Run("identity round trip", func(t *testing.T) {
		m := IdentityOrigin(5)
		for i := 1; i <= 5; i++ {
			if got := m.ToOriginal(i); got != i {
				t.Errorf("ToOriginal(%d) = %d, want %d", i, got, i)
			}
		}
	})

	t.Run("remap after removal", func(t *testing.T) {
		before := []string{"a", "b", "c", "d", "e"}
		after := []string{"a", "c", "e"}
		m := IdentityOrigin(5).Remap(before, after)
		want := []int{1, 3, 5}
		if len(m) != len(want) {
			t.Fatalf("remapped length = %d, want %d", len(m), len(want))
		}
		for i := range want {
			if m[i] != want[i] {
				t.Errorf("m[%d] = %d, want %d", i, m[i], want[i])
			}
		}
		if got, ok := m.FromOriginal(3); !ok || got != 2 {
			t.Errorf("FromOriginal(3) = %d, %v, want 2, true", got, ok)
		}
		if got, ok := m.FromOriginal(2); !ok || got != 2 {
			t.Errorf("FromOriginal(2) = %d, %v, want 2, true", got, ok)
		}
		if _, ok := m.FromOriginal(6); ok {
			t.Error("FromOriginal(6) reported a surviving line past the end")
		}
	})

	t.Run("window", func(t *testing.T) {
		m := LineOrigin{3, 4, 8, 9, 10}
		got, ok := m.Window(document.LineRange{Start: 4, End: 9})
		if !ok {
			t.Fatal("Window reported the range gone")
		}
		if got.Start != 2 || got.End != 4 {
			t.Errorf("Window = %s, want 2-4", got)
		}
		if _, ok := m.Window(document.LineRange{Start: 5, End: 7}); ok {
			t.Error("Window found lines in a fully removed range")
		}
	})
}

func TestMetadataRemovesHintedRegions(t *testing.T) {
	lines := []string{
		"Copyright 1922 by Example House", // 1
		"All rights reserved.",            // 2
		"",                                // 3
		"CHAPTER I",                       // 4
		"Call me Ishmael.",                // 5
		"Some years ago I went to sea.",   // 6
	}
	doc := document.FromLines(lines)
	h := &hints.StructureHints{
		DocumentID: "doc-1",
		Regions: []hints.Region{
			{ID: "r1", Type: hints.RegionCopyrightPage, Lines: document.LineRange{Start: 1, End: 3}, Confidence: 0.9},
			{ID: "r2", Type: hints.RegionOCRNoise, Lines: document.LineRange{Start: 5, End: 5}, Confidence: 0.9},
			{ID: "r3", Type: hints.RegionCover, Lines: document.LineRange{Start: 6, End: 6}, Confidence: 0.2},
		},
		CoreContent: &document.LineRange{Start: 4, End: 6},
	}

	out, err := (Metadata{}).Run(context.Background(), testEnv(), testState(doc, h))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Rollback {
		t.Fatal("unexpected rollback")
	}
	// r2 overlaps core and r3 is below confidence; only r1 goes.
	if len(out.Contribution.RemovedRegions) != 1 {
		t.Fatalf("removed %d regions, want 1", len(out.Contribution.RemovedRegions))
	}
	rec := out.Contribution.RemovedRegions[0]
	if rec.RegionID != "r1" || rec.Type != hints.RegionCopyrightPage {
		t.Errorf("removed region = %s/%s, want r1/copyright_page", rec.RegionID, rec.Type)
	}
	if rec.Lines != (document.LineRange{Start: 1, End: 3}) {
		t.Errorf("recorded range = %s, want 1-3", rec.Lines)
	}
	if rec.WordCount != 8 {
		t.Errorf("recorded word count = %d, want 8", rec.WordCount)
	}
	if out.Doc.LineCount() != 3 {
		t.Errorf("document has %d lines after removal, want 3", out.Doc.LineCount())
	}
	if out.Doc.Line(1) != "CHAPTER I" {
		t.Errorf("first surviving line = %q", out.Doc.Line(1))
	}
}

func TestSemanticStripsHintedPatterns(t *testing.T) {
	lines := []string{
		"THE SEA VOYAGE",     // running header
		"Call me Ishmael.",   //
		"42",                 // page number
		"THE SEA VOYAGE",     //
		"It was a calm day.", //
	}
	doc := document.FromLines(lines)
	h := &hints.StructureHints{
		DocumentID: "doc-1",
		Patterns: []hints.Pattern{
			{Kind: hints.PatternPageNumber, Style: "bare", Matcher: `^\d{1,4}$`, Regex: true, Confidence: 0.9, EstimatedCount: 1},
			{Kind: hints.PatternPageHeader, Style: "repeated", Matcher: "THE SEA VOYAGE", Confidence: 0.8, EstimatedCount: 2},
		},
	}

	out, err := (Semantic{}).Run(context.Background(), testEnv(), testState(doc, h))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Doc.LineCount(); got != 2 {
		t.Fatalf("document has %d lines, want 2", got)
	}
	if len(out.Contribution.AppliedPatterns) != 2 {
		t.Fatalf("recorded %d applied patterns, want 2", len(out.Contribution.AppliedPatterns))
	}
	for _, ap := range out.Contribution.AppliedPatterns {
		if ap.Quality < 0.6 {
			t.Errorf("%s pattern quality %.2f below 0.6 despite full agreement", ap.Kind, ap.Quality)
		}
	}
}

func TestSemanticNoHintsNoChange(t *testing.T) {
	doc := document.New("one line\n\nanother line\n")
	out, err := (Semantic{}).Run(context.Background(), testEnv(), testState(doc, &hints.StructureHints{}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Doc.Equal(doc) {
		t.Error("document changed with no patterns hinted")
	}
	if len(out.Contribution.AppliedPatterns) != 0 {
		t.Errorf("recorded %d patterns, want 0", len(out.Contribution.AppliedPatterns))
	}
}

func TestStructuralTrimsToCore(t *testing.T) {
	var lines []string
	lines = append(lines,
		"THE GREAT BOOK",    // 1
		"by A. Author",      // 2
		"",                  // 3
		"Contents",          // 4
		"I. The Beginning",  // 5
		"",                  // 6
		"CHAPTER I",         // 7
	)
	for i := 0; i < 30; i++ {
		lines = append(lines, "The story continues with more and more words here.")
	}
	lines = append(lines,
		"",             // 38
		"INDEX",        // 39
		"Ishmael, 42",  // 40
	)
	doc := document.FromLines(lines)
	core := document.LineRange{Start: 7, End: 37}
	h := &hints.StructureHints{
		DocumentID: "doc-1",
		Regions: []hints.Region{
			{ID: "f1", Type: hints.RegionTitlePage, Lines: document.LineRange{Start: 1, End: 3}, Confidence: 0.9},
			{ID: "f2", Type: hints.RegionTableOfContents, Lines: document.LineRange{Start: 4, End: 6}, Confidence: 0.9},
			{ID: "b1", Type: hints.RegionIndex, Lines: document.LineRange{Start: 39, End: 40}, Confidence: 0.9},
		},
		CoreContent:       &core,
		OverallConfidence: 0.8,
	}

	out, err := (Structural{}).Run(context.Background(), testEnv(), testState(doc, h))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Rollback {
		t.Fatal("unexpected rollback")
	}

	start := boundaryLine(t, out.Contribution.Boundaries, ledger.BoundaryCoreStart)
	end := boundaryLine(t, out.Contribution.Boundaries, ledger.BoundaryCoreEnd)
	tolerance := testEnv().Thresholds.BoundaryTolerance
	if start < core.Start-tolerance || start > core.Start+tolerance {
		t.Errorf("core start boundary %d outside %d±%d", start, core.Start, tolerance)
	}
	if end < core.End-tolerance || end > core.End+tolerance {
		t.Errorf("core end boundary %d outside %d±%d", end, core.End, tolerance)
	}

	if out.Doc.LineCount() >= doc.LineCount() {
		t.Errorf("trim kept %d of %d lines", out.Doc.LineCount(), doc.LineCount())
	}
	if !strings.Contains(out.Doc.Text(), "The story continues") {
		t.Error("core content missing after trim")
	}
	if strings.Contains(out.Doc.Text(), "Ishmael, 42") {
		t.Error("index entry survived the trim")
	}

	var sawTitle, sawIndex bool
	for _, r := range out.Contribution.RemovedRegions {
		switch r.RegionID {
		case "f1":
			sawTitle = true
		case "b1":
			sawIndex = true
		}
	}
	if !sawTitle || !sawIndex {
		t.Errorf("trim records missed hinted regions: title=%v index=%v", sawTitle, sawIndex)
	}
}

func TestStructuralNoCoreHint(t *testing.T) {
	doc := document.New("just some text\nwith two lines\n")
	st := testState(doc, &hints.StructureHints{DocumentID: "doc-1"})
	out, err := (Structural{}).Run(context.Background(), testEnv(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Doc.Equal(doc) {
		t.Error("document changed without a core hint")
	}
	if len(out.Contribution.Warnings) == 0 {
		t.Error("skipping the trim recorded no warning")
	}
}

func TestReferenceStripsInlineMarkers(t *testing.T) {
	lines := []string{
		"The whale[1] was enormous.",
		"* * *",
		"Nobody believed the tale[2] at first.",
	}
	doc := document.FromLines(lines)
	h := &hints.StructureHints{
		DocumentID: "doc-1",
		Patterns: []hints.Pattern{
			{Kind: hints.PatternFootnoteMarker, Style: "bracketed", Matcher: `\[\d+\]`, Regex: true, Confidence: 0.9, EstimatedCount: 2},
			{Kind: hints.PatternSeparator, Style: "asterisks", Matcher: `^[\s*]+$`, Regex: true, Confidence: 0.9, EstimatedCount: 1},
		},
	}

	out, err := (Reference{}).Run(context.Background(), testEnv(), testState(doc, h))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.Doc.Text()
	if strings.Contains(text, "[1]") || strings.Contains(text, "[2]") {
		t.Errorf("footnote markers survived: %q", text)
	}
	if strings.Contains(text, "* * *") {
		t.Errorf("separator survived: %q", text)
	}
	if !strings.Contains(text, "The whale was enormous.") {
		t.Errorf("marker removal damaged the sentence: %q", text)
	}
	if len(out.Contribution.AppliedPatterns) != 2 {
		t.Errorf("recorded %d applied patterns, want 2", len(out.Contribution.AppliedPatterns))
	}
}

func TestFinishingAccountsForEveryWord(t *testing.T) {
	lines := []string{
		"The ﬁrst part of the jour-",
		"ney went smoothly.  ",
		"",
		"",
		"“Quite so,” he said.",
	}
	doc := document.FromLines(lines)
	st := testState(doc, &hints.StructureHints{})

	out, err := (Finishing{}).Run(context.Background(), testEnv(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	text := out.Doc.Text()
	if !strings.Contains(text, "first") {
		t.Errorf("ligature not folded: %q", text)
	}
	if !strings.Contains(text, "journey") {
		t.Errorf("hyphenated word not joined: %q", text)
	}
	if strings.Contains(text, "“") {
		t.Errorf("typographic quote survived: %q", text)
	}

	// One word disappears per hyphen join and no other step moves the
	// count.
	if got, want := out.Doc.WordCount(), doc.WordCount()-1; got != want {
		t.Errorf("word count after finishing = %d, want %d", got, want)
	}
	if len(out.Contribution.Transformations) == 0 {
		t.Error("no transformation records for a document that changed")
	}
}

func TestOptimizationMechanicalReflow(t *testing.T) {
	var lines []string
	for p := 0; p < 6; p++ {
		for i := 0; i < 8; i++ {
			lines = append(lines, "a hard wrapped line of prose that keeps going")
		}
		lines = append(lines, "")
	}
	doc := document.FromLines(lines)
	st := testState(doc, &hints.StructureHints{})

	out, err := (Optimization{}).Run(context.Background(), testEnv(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Doc.WordCount(); got != doc.WordCount() {
		t.Errorf("reflow changed the word count: %d, want %d", got, doc.WordCount())
	}
	if out.Doc.LineCount() >= doc.LineCount() {
		t.Errorf("reflow did not join lines: %d lines, started with %d", out.Doc.LineCount(), doc.LineCount())
	}
	if len(out.Contribution.Transformations) == 0 {
		t.Error("no reflow transformation records")
	}
	for _, tr := range out.Contribution.Transformations {
		if tr.Op != ledger.OpReflow {
			t.Errorf("unexpected op %s", tr.Op)
		}
		if tr.WordsAfter != tr.WordsBefore {
			t.Errorf("mechanical reflow moved words: %d -> %d", tr.WordsBefore, tr.WordsAfter)
		}
	}
}

func TestOptimizationCancelled(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "line of text to reflow")
	}
	doc := document.FromLines(lines)
	st := testState(doc, &hints.StructureHints{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (Optimization{}).Run(ctx, testEnv(), st)
	if err == nil {
		t.Fatal("cancelled run returned no error")
	}
}

func TestChunkParagraphs(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		maxLines int
		want     int
	}{
		{"empty", nil, 10, 0},
		{"single short paragraph", []string{"a", "b", "c"}, 10, 1},
		{"splits at blank", []string{"a", "b", "", "c", "d", "", "e", "f"}, 3, 3},
		{"hard cut inside long paragraph", []string{"a", "b", "c", "d", "e"}, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkParagraphs(tt.lines, tt.maxLines)
			if len(chunks) != tt.want {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.want)
			}
			total := 0
			for _, c := range chunks {
				total += len(c)
			}
			if total != len(tt.lines) {
				t.Errorf("chunks cover %d lines, input had %d", total, len(tt.lines))
			}
		})
	}
}

func TestAssemblyTrimsAndCollapses(t *testing.T) {
	doc := document.New("\n\nFirst paragraph here.\n\n\n\nSecond paragraph here.\n\n\n")
	st := testState(doc, &hints.StructureHints{})

	out, err := (Assembly{}).Run(context.Background(), testEnv(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.Doc.Line(1); got != "First paragraph here." {
		t.Errorf("first line = %q", got)
	}
	if got := out.Doc.LineCount(); got != 3 {
		t.Errorf("line count = %d, want 3", got)
	}
	if got := out.Doc.WordCount(); got != doc.WordCount() {
		t.Errorf("assembly moved the word count: %d, want %d", got, doc.WordCount())
	}
}

func TestFinalReviewHeuristic(t *testing.T) {
	t.Run("healthy document passes", func(t *testing.T) {
		doc := document.New("A perfectly reasonable paragraph of cleaned text.\n")
		st := testState(doc, &hints.StructureHints{})
		out, err := (FinalReview{}).Run(context.Background(), testEnv(), st)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		for _, f := range out.Contribution.Flags {
			if f.Severity == ledger.SeverityCritical {
				t.Errorf("healthy document flagged critical: %s", f.Message)
			}
		}
	})

	t.Run("heavy loss flags incomplete", func(t *testing.T) {
		original := document.New(strings.Repeat("ten words of original text on every single line here\n", 100))
		cleaned := document.New("almost nothing left\n")
		st := testState(original, &hints.StructureHints{})
		st.Doc = cleaned
		out, err := (FinalReview{}).Run(context.Background(), testEnv(), st)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		critical := false
		for _, f := range out.Contribution.Flags {
			if f.Severity == ledger.SeverityCritical {
				critical = true
			}
		}
		if !critical {
			t.Error("losing nearly everything raised no critical flag")
		}
	})
}

func TestPatternQuality(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		matches    int
		estimated  int
		min, max   float64
	}{
		{"full agreement", 0.9, 10, 10, 0.89, 0.91},
		{"half the estimate", 0.9, 5, 10, 0.65, 0.70},
		{"nothing found", 0.9, 0, 10, 0.44, 0.46},
		{"no estimate given", 0.8, 7, 0, 0.79, 0.81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := patternQuality(tt.confidence, tt.matches, tt.estimated)
			if q < tt.min || q > tt.max {
				t.Errorf("quality = %.3f, want within [%.2f, %.2f]", q, tt.min, tt.max)
			}
		})
	}
}

func boundaryLine(t *testing.T, bnds []ledger.ConfirmedBoundary, kind ledger.BoundaryKind) int {
	t.Helper()
	for _, b := range bnds {
		if b.Kind == kind {
			return b.Line
		}
	}
	t.Fatalf("no %s boundary recorded", kind)
	return 0
}
