package ledger

import (
	"time"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/phase"
)

// Severity grades findings recorded during a run.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from info (0) to critical (3). Unknown values
// rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	}
	return -1
}

// Worse returns the higher-ranked of the two severities.
func Worse(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Penalty is the confidence deduction one unmet criterion of this
// severity costs. Applied multiplicatively as (1 - penalty).
func (s Severity) Penalty() float64 {
	switch s {
	case SeverityWarning:
		return 0.05
	case SeverityError:
		return 0.15
	case SeverityCritical:
		return 0.30
	}
	return 0
}

// RemovedRegion records a span of lines dropped from the document.
type RemovedRegion struct {
	RegionID  string             `json:"region_id,omitempty"`
	Type      hints.RegionType   `json:"type"`
	Lines     document.LineRange `json:"lines"`
	LineCount int                `json:"line_count"`
	WordCount int                `json:"word_count"`
	Reason    string             `json:"reason"`
	Phase     phase.Phase        `json:"phase"`
	Timestamp time.Time          `json:"timestamp"`
}

// AppliedPattern records one recurring artifact being cleaned out.
// Quality grades how well the matches agreed with the pattern's samples
// and estimate.
type AppliedPattern struct {
	Kind           hints.PatternKind `json:"kind"`
	Matcher        string            `json:"matcher"`
	MatchCount     int               `json:"match_count"`
	EstimatedCount int               `json:"estimated_count"`
	Quality        float64           `json:"quality"`
	Phase          phase.Phase       `json:"phase"`
	Timestamp      time.Time         `json:"timestamp"`
}

// BoundaryKind names a structural boundary confirmed during cleaning.
type BoundaryKind string

const (
	BoundaryCoreStart       BoundaryKind = "core_start"
	BoundaryCoreEnd         BoundaryKind = "core_end"
	BoundaryBackMatterStart BoundaryKind = "back_matter_start"
	BoundaryChapter         BoundaryKind = "chapter"
)

// ConfirmedBoundary records a boundary line settled by a phase.
type ConfirmedBoundary struct {
	Kind       BoundaryKind          `json:"kind"`
	Line       int                   `json:"line"`
	Method     hints.DetectionMethod `json:"method"`
	Confidence float64               `json:"confidence"`
	Phase      phase.Phase           `json:"phase"`
	Timestamp  time.Time             `json:"timestamp"`
}

// TransformOp names a text transformation applied to the document.
type TransformOp string

const (
	OpReflow               TransformOp = "reflow"
	OpDehyphenate          TransformOp = "dehyphenate"
	OpNormalizeWhitespace  TransformOp = "normalize_whitespace"
	OpCollapseBlanks       TransformOp = "collapse_blanks"
	OpStripArtifacts       TransformOp = "strip_artifacts"
	OpNormalizePunctuation TransformOp = "normalize_punctuation"
)

// TransformationRecord records one transformation with its exact word
// counts so content preservation can be cross-checked later.
type TransformationRecord struct {
	Op          TransformOp         `json:"op"`
	Lines       *document.LineRange `json:"lines,omitempty"`
	WordsBefore int                 `json:"words_before"`
	WordsAfter  int                 `json:"words_after"`
	Detail      string              `json:"detail,omitempty"`
	Phase       phase.Phase         `json:"phase"`
	Timestamp   time.Time           `json:"timestamp"`
}

// Flag marks a location that needs human review.
type Flag struct {
	Code      string      `json:"code"`
	Severity  Severity    `json:"severity"`
	Message   string      `json:"message"`
	Line      int         `json:"line,omitempty"`
	Phase     phase.Phase `json:"phase"`
	Timestamp time.Time   `json:"timestamp"`
}

// Warning is a non-blocking finding surfaced in the final report.
type Warning struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Phase     phase.Phase `json:"phase"`
	Timestamp time.Time   `json:"timestamp"`
}

// RecoveryEvent records a failure and the action taken for it. Kind and
// Action use the recovery package's string values.
type RecoveryEvent struct {
	Phase     phase.Phase `json:"phase"`
	Step      string      `json:"step,omitempty"`
	Kind      string      `json:"kind"`
	Action    string      `json:"action"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PhaseContribution summarizes what one phase added to the run.
type PhaseContribution struct {
	Phase     phase.Phase   `json:"phase"`
	Summary   string        `json:"summary"`
	Records   int           `json:"records"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}
