package metrics

import (
	"sync"
	"time"

	"github.com/sluice-dev/sluice/internal/aicall"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Collector accumulates a run's metrics as phases execute. Safe for
// concurrent reads via Snapshot while a phase is running.
type Collector struct {
	mu      sync.Mutex
	run     RunMetrics
	started time.Time
	open    bool
}

// NewCollector starts metric collection for a run.
func NewCollector(runID, documentID, inputPath string, wordsBefore, linesBefore int) *Collector {
	return &Collector{
		run: RunMetrics{
			RunID:       runID,
			DocumentID:  documentID,
			InputPath:   inputPath,
			Status:      StatusRunning,
			StartedAt:   time.Now().UTC(),
			WordsBefore: wordsBefore,
			LinesBefore: linesBefore,
		},
	}
}

// BeginPhase opens a phase record. A phase left open is closed with its
// input counts unchanged when the next one begins.
func (c *Collector) BeginPhase(p phase.Phase, wordsIn, linesIn int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		c.closeLocked(wordsIn, linesIn, PhaseOutcome{})
	}
	c.run.Phases = append(c.run.Phases, PhaseMetrics{
		Phase:    p,
		WordsIn:  wordsIn,
		LinesIn:  linesIn,
		WordsOut: wordsIn,
		LinesOut: linesIn,
	})
	c.started = time.Now()
	c.open = true
}

// PhaseOutcome carries what a finished phase reports back.
type PhaseOutcome struct {
	RegionsRemoved   int
	PatternsApplied  int
	Recoveries       int
	CheckpointStatus string
	Confidence       float64
}

// EndPhase closes the current phase record.
func (c *Collector) EndPhase(wordsOut, linesOut int, outcome PhaseOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return
	}
	c.closeLocked(wordsOut, linesOut, outcome)
}

func (c *Collector) closeLocked(wordsOut, linesOut int, outcome PhaseOutcome) {
	last := &c.run.Phases[len(c.run.Phases)-1]
	last.Seconds = time.Since(c.started).Seconds()
	last.WordsOut = wordsOut
	last.LinesOut = linesOut
	last.RegionsRemoved = outcome.RegionsRemoved
	last.PatternsApplied = outcome.PatternsApplied
	last.Recoveries = outcome.Recoveries
	last.CheckpointStatus = outcome.CheckpointStatus
	last.Confidence = outcome.Confidence
	c.open = false
}

// SetStatus updates the run's lifecycle state.
func (c *Collector) SetStatus(s RunStatus) {
	c.mu.Lock()
	c.run.Status = s
	c.mu.Unlock()
}

// Finalize closes the run record.
func (c *Collector) Finalize(status RunStatus, wordsAfter, linesAfter int, ai aicall.Totals, confidence float64, band string) RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		c.closeLocked(wordsAfter, linesAfter, PhaseOutcome{Confidence: confidence})
	}
	c.run.Status = status
	c.run.FinishedAt = time.Now().UTC()
	c.run.TotalSeconds = c.run.FinishedAt.Sub(c.run.StartedAt).Seconds()
	c.run.WordsAfter = wordsAfter
	c.run.LinesAfter = linesAfter
	c.run.AI = ai
	c.run.FinalConfidence = confidence
	c.run.ConfidenceBand = band
	return c.snapshotLocked()
}

// Snapshot returns a copy of the run record as collected so far.
func (c *Collector) Snapshot() RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Collector) snapshotLocked() RunMetrics {
	out := c.run
	out.Phases = append([]PhaseMetrics(nil), c.run.Phases...)
	return out
}
