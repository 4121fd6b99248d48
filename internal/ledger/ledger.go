// Package ledger accumulates everything a run learns about a document.
// Records are append-only: phases hand back contributions, the ledger
// appends them, and nothing is edited in place. The single exception is
// PurgePhase, which rollback uses to drop one phase's contributions
// wholesale.
package ledger

import (
	"time"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Contribution is the set of records one phase adds to the ledger.
type Contribution struct {
	Phase           phase.Phase
	RemovedRegions  []RemovedRegion
	AppliedPatterns []AppliedPattern
	Boundaries      []ConfirmedBoundary
	Transformations []TransformationRecord
	Flags           []Flag
	Warnings        []Warning
}

// Ledger is the accumulated context of one cleaning run.
type Ledger struct {
	RunID      string      `json:"run_id"`
	DocumentID string      `json:"document_id"`
	Cursor     phase.Phase `json:"cursor,omitempty"`

	Original document.Metrics `json:"original"`
	Current  document.Metrics `json:"current"`

	CompletedPhases []phase.Phase          `json:"completed_phases,omitempty"`
	Contributions   []PhaseContribution    `json:"contributions,omitempty"`
	RemovedRegions  []RemovedRegion        `json:"removed_regions,omitempty"`
	AppliedPatterns []AppliedPattern       `json:"applied_patterns,omitempty"`
	Boundaries      []ConfirmedBoundary    `json:"boundaries,omitempty"`
	Transformations []TransformationRecord `json:"transformations,omitempty"`
	Flags           []Flag                 `json:"flags,omitempty"`
	Warnings        []Warning              `json:"warnings,omitempty"`
	Checkpoints     []CheckpointOutcome    `json:"checkpoints,omitempty"`
	Recoveries      []RecoveryEvent        `json:"recoveries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts a ledger for a document with the given original metrics.
func New(runID, documentID string, original document.Metrics) *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		RunID:      runID,
		DocumentID: documentID,
		Original:   original,
		Current:    original,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Apply appends every record in the contribution, tagging each with the
// contributing phase and a shared timestamp.
func (l *Ledger) Apply(c Contribution) {
	now := time.Now().UTC()
	for _, r := range c.RemovedRegions {
		r.Phase = c.Phase
		r.Timestamp = now
		l.RemovedRegions = append(l.RemovedRegions, r)
	}
	for _, p := range c.AppliedPatterns {
		p.Phase = c.Phase
		p.Timestamp = now
		l.AppliedPatterns = append(l.AppliedPatterns, p)
	}
	for _, b := range c.Boundaries {
		b.Phase = c.Phase
		b.Timestamp = now
		l.Boundaries = append(l.Boundaries, b)
	}
	for _, t := range c.Transformations {
		t.Phase = c.Phase
		t.Timestamp = now
		l.Transformations = append(l.Transformations, t)
	}
	for _, f := range c.Flags {
		f.Phase = c.Phase
		f.Timestamp = now
		l.Flags = append(l.Flags, f)
	}
	for _, w := range c.Warnings {
		w.Phase = c.Phase
		w.Timestamp = now
		l.Warnings = append(l.Warnings, w)
	}
	l.UpdatedAt = now
}

// RecordCheckpoint appends a checkpoint outcome. Outcomes are run
// history and survive rollback of the phase they grade.
func (l *Ledger) RecordCheckpoint(o CheckpointOutcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	l.Checkpoints = append(l.Checkpoints, o)
	l.UpdatedAt = time.Now().UTC()
}

// RecordRecovery appends a recovery event. Like checkpoint outcomes,
// recovery events survive rollback.
func (l *Ledger) RecordRecovery(e RecoveryEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.Recoveries = append(l.Recoveries, e)
	l.UpdatedAt = time.Now().UTC()
}

// RecordContribution appends a per-phase summary line.
func (l *Ledger) RecordContribution(c PhaseContribution) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	l.Contributions = append(l.Contributions, c)
	l.UpdatedAt = time.Now().UTC()
}

// SetCurrent updates the running size snapshot after a phase commits.
func (l *Ledger) SetCurrent(m document.Metrics) {
	l.Current = m
	l.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records p as done and advances the resume cursor.
func (l *Ledger) MarkCompleted(p phase.Phase) {
	l.CompletedPhases = append(l.CompletedPhases, p)
	l.Cursor = p
	l.UpdatedAt = time.Now().UTC()
}

// Completed reports whether p has been marked done.
func (l *Ledger) Completed(p phase.Phase) bool {
	for _, done := range l.CompletedPhases {
		if done == p {
			return true
		}
	}
	return false
}

// PurgePhase removes every contribution made by p. Checkpoint outcomes
// and recovery events are kept: they are the history that explains why
// the purge happened.
func (l *Ledger) PurgePhase(p phase.Phase) {
	l.Contributions = filterContributions(l.Contributions, p)
	l.RemovedRegions = filterRemoved(l.RemovedRegions, p)
	l.AppliedPatterns = filterPatterns(l.AppliedPatterns, p)
	l.Boundaries = filterBoundaries(l.Boundaries, p)
	l.Transformations = filterTransformations(l.Transformations, p)
	l.Flags = filterFlags(l.Flags, p)
	l.Warnings = filterWarnings(l.Warnings, p)
	l.UpdatedAt = time.Now().UTC()
}

func filterContributions(in []PhaseContribution, p phase.Phase) []PhaseContribution {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterRemoved(in []RemovedRegion, p phase.Phase) []RemovedRegion {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterPatterns(in []AppliedPattern, p phase.Phase) []AppliedPattern {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterBoundaries(in []ConfirmedBoundary, p phase.Phase) []ConfirmedBoundary {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterTransformations(in []TransformationRecord, p phase.Phase) []TransformationRecord {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterFlags(in []Flag, p phase.Phase) []Flag {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func filterWarnings(in []Warning, p phase.Phase) []Warning {
	out := in[:0]
	for _, r := range in {
		if r.Phase != p {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// HasContributions reports whether any record from p remains.
func (l *Ledger) HasContributions(p phase.Phase) bool {
	for _, r := range l.RemovedRegions {
		if r.Phase == p {
			return true
		}
	}
	for _, r := range l.AppliedPatterns {
		if r.Phase == p {
			return true
		}
	}
	for _, r := range l.Boundaries {
		if r.Phase == p {
			return true
		}
	}
	for _, r := range l.Transformations {
		if r.Phase == p {
			return true
		}
	}
	for _, r := range l.Flags {
		if r.Phase == p {
			return true
		}
	}
	for _, r := range l.Warnings {
		if r.Phase == p {
			return true
		}
	}
	return false
}

// BoundaryOf returns the most recently confirmed boundary of the kind.
func (l *Ledger) BoundaryOf(kind BoundaryKind) (ConfirmedBoundary, bool) {
	for i := len(l.Boundaries) - 1; i >= 0; i-- {
		if l.Boundaries[i].Kind == kind {
			return l.Boundaries[i], true
		}
	}
	return ConfirmedBoundary{}, false
}

// WordsRemoved is the net word loss since the run started.
func (l *Ledger) WordsRemoved() int {
	return l.Original.Words - l.Current.Words
}

// LossRatio is the fraction of original words no longer present.
// Returns 0 for an empty original.
func (l *Ledger) LossRatio() float64 {
	if l.Original.Words == 0 {
		return 0
	}
	return float64(l.WordsRemoved()) / float64(l.Original.Words)
}

// Clone returns a deep copy. Phases receive clones so the canonical
// ledger only changes through Apply and the orchestrator.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	out := *l
	out.CompletedPhases = append([]phase.Phase(nil), l.CompletedPhases...)
	out.Contributions = append([]PhaseContribution(nil), l.Contributions...)
	out.RemovedRegions = append([]RemovedRegion(nil), l.RemovedRegions...)
	out.AppliedPatterns = append([]AppliedPattern(nil), l.AppliedPatterns...)
	out.Boundaries = append([]ConfirmedBoundary(nil), l.Boundaries...)
	out.Transformations = cloneTransformations(l.Transformations)
	out.Flags = append([]Flag(nil), l.Flags...)
	out.Warnings = append([]Warning(nil), l.Warnings...)
	out.Checkpoints = cloneCheckpoints(l.Checkpoints)
	out.Recoveries = append([]RecoveryEvent(nil), l.Recoveries...)
	return &out
}

func cloneTransformations(in []TransformationRecord) []TransformationRecord {
	if in == nil {
		return nil
	}
	out := make([]TransformationRecord, len(in))
	for i, t := range in {
		out[i] = t
		if t.Lines != nil {
			lines := *t.Lines
			out[i].Lines = &lines
		}
	}
	return out
}

func cloneCheckpoints(in []CheckpointOutcome) []CheckpointOutcome {
	if in == nil {
		return nil
	}
	out := make([]CheckpointOutcome, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Criteria = append([]CriterionResult(nil), c.Criteria...)
	}
	return out
}
