package confidence

import (
	"testing"

	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
)

func TestSeedPinsStartingScore(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	tr.Seed(0.85)
	if tr.Current() != 0.85 {
		t.Fatalf("Current = %v, want seed value", tr.Current())
	}
	if !tr.Seeded() {
		t.Fatal("Seeded should report true")
	}
}

func TestMonotonicNonIncreasing(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	tr.Seed(0.85)
	last := tr.Current()

	steps := []func(){
		func() { tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointSemantic, Confidence: 1.0}) },
		func() { tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointStructural, Confidence: 0.95}) },
		func() { tr.AddPenalty(phase.Structural, ledger.SeverityWarning, "boundary step degraded") },
		func() { tr.SetContentTypeMatch(1.0) },
		func() { tr.SetPatternConsistency(1.0) },
		func() { tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointOptimization, Confidence: 1.0}) },
		func() { tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointFinal, Confidence: 1.0}) },
	}
	for i, step := range steps {
		step()
		if tr.Current() > last {
			t.Fatalf("step %d raised confidence: %v -> %v", i, last, tr.Current())
		}
		last = tr.Current()
	}
}

func TestPerfectRunHoldsSeed(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	tr.Seed(0.9)
	for _, cp := range []ledger.CheckpointType{
		ledger.CheckpointSemantic, ledger.CheckpointStructural,
		ledger.CheckpointReference, ledger.CheckpointOptimization,
		ledger.CheckpointFinal,
	} {
		tr.RecordOutcome(ledger.CheckpointOutcome{Type: cp, Confidence: 1.0})
	}
	if tr.Current() != 0.9 {
		t.Fatalf("clean run should hold the seed, got %v", tr.Current())
	}
}

func TestReconOutcomeDoesNotDoubleCount(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	tr.Seed(0.45)
	tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointRecon, Confidence: 0.70})
	if tr.Current() != 0.45 {
		t.Fatalf("recon outcome must not fold into the score, got %v", tr.Current())
	}
}

func TestDegradedRunLandsNearExpected(t *testing.T) {
	// A structural fallback: checkpoint passed with one warning
	// criterion (outcome confidence 0.95) plus a validation penalty for
	// the rejected AI response.
	tr := NewTracker(DefaultWeights())
	tr.Seed(0.85)
	tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointSemantic, Confidence: 1.0})
	tr.AddPenalty(phase.Structural, ledger.SeverityWarning, "ai boundary response invalid")
	tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointStructural, Confidence: 0.95})

	got := tr.Current()
	if got > 0.83 || got < 0.72 {
		t.Fatalf("degraded run should land near 0.78, got %v", got)
	}

	// Remaining clean checkpoints leave it untouched.
	tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointOptimization, Confidence: 1.0})
	tr.RecordOutcome(ledger.CheckpointOutcome{Type: ledger.CheckpointFinal, Confidence: 1.0})
	if tr.Current() != got {
		t.Fatalf("clean tail changed the score: %v -> %v", got, tr.Current())
	}
}

func TestPenaltyScale(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	tr.Seed(1.0)
	tr.AddPenalty(phase.Semantic, ledger.SeverityInfo, "note")
	if tr.Current() != 1.0 {
		t.Fatalf("info penalty should cost nothing, got %v", tr.Current())
	}
	tr.AddPenalty(phase.Semantic, ledger.SeverityError, "bad ratio")
	want := 1 - 0.15
	if diff := tr.Current() - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("error penalty: got %v, want %v", tr.Current(), want)
	}
	if len(tr.Penalties()) != 2 {
		t.Fatalf("penalties = %d, want 2", len(tr.Penalties()))
	}
}

func TestWeightsCanMuteComponent(t *testing.T) {
	w := DefaultWeights()
	w.Validation = 0
	tr := NewTracker(w)
	tr.Seed(0.9)
	tr.AddPenalty(phase.Reference, ledger.SeverityCritical, "ignored")
	if tr.Current() != 0.9 {
		t.Fatalf("muted component still applied: %v", tr.Current())
	}
}

func TestDisplayBands(t *testing.T) {
	cases := []struct {
		score float64
		level Level
	}{
		{0.95, LevelHigh},
		{0.90, LevelHigh},
		{0.80, LevelGood},
		{0.75, LevelGood},
		{0.65, LevelModerate},
		{0.60, LevelModerate},
		{0.45, LevelLow},
		{0.40, LevelLow},
		{0.30, LevelVeryLow},
		{0.0, LevelVeryLow},
	}
	for _, tt := range cases {
		d := DisplayFor(tt.score)
		if d.Level != tt.level {
			t.Fatalf("DisplayFor(%v).Level = %s, want %s", tt.score, d.Level, tt.level)
		}
		if d.Recommendation == "" {
			t.Fatalf("DisplayFor(%v) has no recommendation", tt.score)
		}
	}
	if got := DisplayFor(0.78).Percentage; got != 78 {
		t.Fatalf("percentage = %d", got)
	}
}
