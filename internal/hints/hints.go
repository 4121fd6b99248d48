// Package hints defines the structural map produced by reconnaissance.
// The map is built once, validated, and then treated as read-only by
// every later phase. Later phases may consult it but never mutate it.
package hints

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sluice-dev/sluice/internal/document"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid structure hints")

// ContentType classifies the whole document.
type ContentType string

const (
	ContentNovel      ContentType = "novel"
	ContentNonFiction ContentType = "non_fiction"
	ContentTechnical  ContentType = "technical"
	ContentAcademic   ContentType = "academic"
	ContentReference  ContentType = "reference"
	ContentPoetry     ContentType = "poetry"
	ContentDrama      ContentType = "drama"
	ContentMixed      ContentType = "mixed"
	ContentUnknown    ContentType = "unknown"
)

// RegionType classifies a contiguous span of lines.
type RegionType string

const (
	RegionCover           RegionType = "cover"
	RegionTitlePage       RegionType = "title_page"
	RegionCopyrightPage   RegionType = "copyright_page"
	RegionDedication      RegionType = "dedication"
	RegionEpigraph        RegionType = "epigraph"
	RegionTableOfContents RegionType = "table_of_contents"
	RegionListOfFigures   RegionType = "list_of_figures"
	RegionListOfTables    RegionType = "list_of_tables"
	RegionForeword        RegionType = "foreword"
	RegionPreface         RegionType = "preface"
	RegionAcknowledgments RegionType = "acknowledgments"
	RegionIntroduction    RegionType = "introduction"
	RegionPrologue        RegionType = "prologue"
	RegionPartHeading     RegionType = "part_heading"
	RegionChapterHeading  RegionType = "chapter_heading"
	RegionSectionHeading  RegionType = "section_heading"
	RegionBodyText        RegionType = "body_text"
	RegionFootnoteBlock   RegionType = "footnote_block"
	RegionEpilogue        RegionType = "epilogue"
	RegionAfterword       RegionType = "afterword"
	RegionAppendix        RegionType = "appendix"
	RegionEndnotes        RegionType = "endnotes"
	RegionGlossary        RegionType = "glossary"
	RegionBibliography    RegionType = "bibliography"
	RegionIndex           RegionType = "index"
	RegionAboutAuthor     RegionType = "about_author"
	RegionColophon        RegionType = "colophon"
	RegionAdvertisement   RegionType = "advertisement"
	RegionPageArtifact    RegionType = "page_artifact"
	RegionOCRNoise        RegionType = "ocr_noise"
	RegionUnknown         RegionType = "unknown"
)

var regionTypes = map[RegionType]bool{
	RegionCover: true, RegionTitlePage: true, RegionCopyrightPage: true,
	RegionDedication: true, RegionEpigraph: true, RegionTableOfContents: true,
	RegionListOfFigures: true, RegionListOfTables: true, RegionForeword: true,
	RegionPreface: true, RegionAcknowledgments: true, RegionIntroduction: true,
	RegionPrologue: true, RegionPartHeading: true, RegionChapterHeading: true,
	RegionSectionHeading: true, RegionBodyText: true, RegionFootnoteBlock: true,
	RegionEpilogue: true, RegionAfterword: true, RegionAppendix: true,
	RegionEndnotes: true, RegionGlossary: true, RegionBibliography: true,
	RegionIndex: true, RegionAboutAuthor: true, RegionColophon: true,
	RegionAdvertisement: true, RegionPageArtifact: true, RegionOCRNoise: true,
	RegionUnknown: true,
}

// Valid reports whether t is a known region type.
func (t RegionType) Valid() bool { return regionTypes[t] }

// frontTypes are regions that belong to front matter and are candidates
// for removal during the structural phase.
var frontTypes = map[RegionType]bool{
	RegionCover: true, RegionTitlePage: true, RegionCopyrightPage: true,
	RegionDedication: true, RegionTableOfContents: true, RegionListOfFigures: true,
	RegionListOfTables: true, RegionForeword: true, RegionPreface: true,
	RegionAcknowledgments: true,
}

// backTypes are regions that belong to back matter.
var backTypes = map[RegionType]bool{
	RegionAppendix: true, RegionEndnotes: true, RegionGlossary: true,
	RegionBibliography: true, RegionIndex: true, RegionAboutAuthor: true,
	RegionColophon: true, RegionAdvertisement: true,
}

// IsFrontMatter reports whether the type belongs to front matter.
func (t RegionType) IsFrontMatter() bool { return frontTypes[t] }

// IsBackMatter reports whether the type belongs to back matter.
func (t RegionType) IsBackMatter() bool { return backTypes[t] }

// DetectionMethod records how a region or pattern was identified.
type DetectionMethod string

const (
	MethodHeuristic DetectionMethod = "heuristic"
	MethodAI        DetectionMethod = "ai"
	MethodMerged    DetectionMethod = "merged"
)

// Region is a contiguous span of lines with a structural classification.
type Region struct {
	ID           string             `json:"id" yaml:"id"`
	Type         RegionType         `json:"type" yaml:"type"`
	Lines        document.LineRange `json:"lines" yaml:"lines"`
	Confidence   float64            `json:"confidence" yaml:"confidence"`
	Method       DetectionMethod    `json:"method" yaml:"method"`
	Evidence     string             `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	OverlapsWith []string           `json:"overlaps_with,omitempty" yaml:"overlaps_with,omitempty"`
}

// Validate checks the region against a document of totalLines lines.
func (r Region) Validate(totalLines int) error {
	if r.ID == "" {
		return fmt.Errorf("%w: region missing id", ErrInvalid)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: region %s has unknown type %q", ErrInvalid, r.ID, r.Type)
	}
	if !r.Lines.Valid(totalLines) {
		return fmt.Errorf("%w: region %s has bad range %s (document has %d lines)", ErrInvalid, r.ID, r.Lines, totalLines)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: region %s confidence %.3f outside [0,1]", ErrInvalid, r.ID, r.Confidence)
	}
	return nil
}

// PatternKind classifies a recurring artifact.
type PatternKind string

const (
	PatternPageHeader     PatternKind = "page_header"
	PatternPageFooter     PatternKind = "page_footer"
	PatternPageNumber     PatternKind = "page_number"
	PatternChapterHeading PatternKind = "chapter_heading"
	PatternFootnoteMarker PatternKind = "footnote_marker"
	PatternOCRArtifact    PatternKind = "ocr_artifact"
	PatternSeparator      PatternKind = "separator"
)

var patternKinds = map[PatternKind]bool{
	PatternPageHeader: true, PatternPageFooter: true, PatternPageNumber: true,
	PatternChapterHeading: true, PatternFootnoteMarker: true,
	PatternOCRArtifact: true, PatternSeparator: true,
}

// Valid reports whether k is a known pattern kind.
func (k PatternKind) Valid() bool { return patternKinds[k] }

// Pattern describes a recurring artifact that later phases remove or
// normalize. When Regex is set, Matcher is a regular expression;
// otherwise it is a literal normalized line.
type Pattern struct {
	Kind           PatternKind `json:"kind" yaml:"kind"`
	Style          string      `json:"style,omitempty" yaml:"style,omitempty"`
	Matcher        string      `json:"matcher" yaml:"matcher"`
	Regex          bool        `json:"regex" yaml:"regex"`
	Samples        []string    `json:"samples,omitempty" yaml:"samples,omitempty"`
	Confidence     float64     `json:"confidence" yaml:"confidence"`
	EstimatedCount int         `json:"estimated_count" yaml:"estimated_count"`
}

// Compile returns the pattern's regexp when Regex is set.
func (p Pattern) Compile() (*regexp.Regexp, error) {
	if !p.Regex {
		return nil, fmt.Errorf("pattern %s is not a regex", p.Kind)
	}
	re, err := regexp.Compile(p.Matcher)
	if err != nil {
		return nil, fmt.Errorf("compiling %s pattern: %w", p.Kind, err)
	}
	return re, nil
}

// Validate checks the pattern's fields.
func (p Pattern) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("%w: unknown pattern kind %q", ErrInvalid, p.Kind)
	}
	if p.Matcher == "" {
		return fmt.Errorf("%w: %s pattern has empty matcher", ErrInvalid, p.Kind)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: %s pattern confidence %.3f outside [0,1]", ErrInvalid, p.Kind, p.Confidence)
	}
	if p.Regex {
		if _, err := regexp.Compile(p.Matcher); err != nil {
			return fmt.Errorf("%w: %s pattern does not compile: %v", ErrInvalid, p.Kind, err)
		}
	}
	return nil
}

// Characteristics captures document-level traits measured during
// reconnaissance.
type Characteristics struct {
	Language           string  `json:"language" yaml:"language"`
	LanguageConfidence float64 `json:"language_confidence" yaml:"language_confidence"`
	HasDialogue        bool    `json:"has_dialogue" yaml:"has_dialogue"`
	HasFootnotes       bool    `json:"has_footnotes" yaml:"has_footnotes"`
	AvgLineLength      float64 `json:"avg_line_length" yaml:"avg_line_length"`
	BlankLineRatio     float64 `json:"blank_line_ratio" yaml:"blank_line_ratio"`
	EstimatedPages     int     `json:"estimated_pages" yaml:"estimated_pages"`
	OCRQuality         float64 `json:"ocr_quality" yaml:"ocr_quality"`
}

// StructureHints is the frozen structural map of a document.
type StructureHints struct {
	DocumentID        string              `json:"document_id" yaml:"document_id"`
	ContentType       ContentType         `json:"content_type" yaml:"content_type"`
	Regions           []Region            `json:"regions" yaml:"regions"`
	Patterns          []Pattern           `json:"patterns" yaml:"patterns"`
	Characteristics   Characteristics     `json:"characteristics" yaml:"characteristics"`
	CoreContent       *document.LineRange `json:"core_content,omitempty" yaml:"core_content,omitempty"`
	OverallConfidence float64             `json:"overall_confidence" yaml:"overall_confidence"`
	Warnings          []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Method            DetectionMethod     `json:"method" yaml:"method"`
	CreatedAt         time.Time           `json:"created_at" yaml:"created_at"`
}

// Validate checks every region and pattern against the document size and
// verifies the aggregate fields. Reconnaissance must not hand a map to
// later phases until this passes.
func (h *StructureHints) Validate(totalLines int) error {
	if h.DocumentID == "" {
		return fmt.Errorf("%w: missing document id", ErrInvalid)
	}
	if h.OverallConfidence < 0 || h.OverallConfidence > 1 {
		return fmt.Errorf("%w: overall confidence %.3f outside [0,1]", ErrInvalid, h.OverallConfidence)
	}
	seen := make(map[string]bool, len(h.Regions))
	for _, region := range h.Regions {
		if err := region.Validate(totalLines); err != nil {
			return err
		}
		if seen[region.ID] {
			return fmt.Errorf("%w: duplicate region id %s", ErrInvalid, region.ID)
		}
		seen[region.ID] = true
	}
	for _, region := range h.Regions {
		for _, other := range region.OverlapsWith {
			if !seen[other] {
				return fmt.Errorf("%w: region %s overlaps unknown region %s", ErrInvalid, region.ID, other)
			}
		}
	}
	for _, pattern := range h.Patterns {
		if err := pattern.Validate(); err != nil {
			return err
		}
	}
	if h.CoreContent != nil && !h.CoreContent.Valid(totalLines) {
		return fmt.Errorf("%w: core content range %s invalid (document has %d lines)", ErrInvalid, h.CoreContent, totalLines)
	}
	return nil
}

// RegionsOfType returns the regions matching t in document order.
func (h *StructureHints) RegionsOfType(t RegionType) []Region {
	var out []Region
	for _, region := range h.Regions {
		if region.Type == t {
			out = append(out, region)
		}
	}
	return out
}

// FrontMatterRegions returns every front-matter region in document order.
func (h *StructureHints) FrontMatterRegions() []Region {
	var out []Region
	for _, region := range h.Regions {
		if region.Type.IsFrontMatter() {
			out = append(out, region)
		}
	}
	return out
}

// BackMatterRegions returns every back-matter region in document order.
func (h *StructureHints) BackMatterRegions() []Region {
	var out []Region
	for _, region := range h.Regions {
		if region.Type.IsBackMatter() {
			out = append(out, region)
		}
	}
	return out
}

// PatternsOfKind returns the patterns matching k.
func (h *StructureHints) PatternsOfKind(k PatternKind) []Pattern {
	var out []Pattern
	for _, pattern := range h.Patterns {
		if pattern.Kind == k {
			out = append(out, pattern)
		}
	}
	return out
}

// RegionAt returns the first region containing the line, if any.
func (h *StructureHints) RegionAt(line int) (Region, bool) {
	for _, region := range h.Regions {
		if region.Lines.Contains(line) {
			return region, true
		}
	}
	return Region{}, false
}

// Clone returns a deep copy. The orchestrator hands clones to phases so
// the canonical map stays frozen.
func (h *StructureHints) Clone() *StructureHints {
	if h == nil {
		return nil
	}
	out := *h
	out.Regions = make([]Region, len(h.Regions))
	for i, region := range h.Regions {
		out.Regions[i] = region
		if len(region.OverlapsWith) > 0 {
			out.Regions[i].OverlapsWith = append([]string(nil), region.OverlapsWith...)
		}
	}
	out.Patterns = make([]Pattern, len(h.Patterns))
	for i, pattern := range h.Patterns {
		out.Patterns[i] = pattern
		if len(pattern.Samples) > 0 {
			out.Patterns[i].Samples = append([]string(nil), pattern.Samples...)
		}
	}
	if len(h.Warnings) > 0 {
		out.Warnings = append([]string(nil), h.Warnings...)
	}
	if h.CoreContent != nil {
		core := *h.CoreContent
		out.CoreContent = &core
	}
	return &out
}
