package analysis

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pemistahl/lingua-go"

	"github.com/sluice-dev/sluice/internal/clean"
	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Heuristic is the no-AI structure analyzer. It is the degraded path
// when the AI response is invalid or the service is unreachable, and it
// never fails: uncertain structure comes back with low confidence, not
// an error.
type Heuristic struct {
	detector lingua.LanguageDetector
	logger   *slog.Logger
}

// NewHeuristic creates the heuristic analyzer. The language detector is
// built once; construction is the expensive part.
func NewHeuristic(logger *slog.Logger) *Heuristic {
	if logger == nil {
		logger = slog.Default()
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.Spanish, lingua.French, lingua.German,
			lingua.Italian, lingua.Portuguese, lingua.Dutch, lingua.Russian,
		).
		Build()
	return &Heuristic{detector: detector, logger: logger}
}

type lineMarker struct {
	line int
	typ  hints.RegionType
}

// marker pairs a heading regex with the region type it announces.
type marker struct {
	re  *regexp.Regexp
	typ hints.RegionType
}

var frontMarkers = []marker{
	{regexp.MustCompile(`(?i)^\s*(table of contents|contents|list of chapters)\s*$`), hints.RegionTableOfContents},
	{regexp.MustCompile(`(?i)^\s*(copyright|all rights reserved|isbn[ :]|published by)`), hints.RegionCopyrightPage},
	{regexp.MustCompile(`(?i)^\s*dedicat(ion|ed to)`), hints.RegionDedication},
	{regexp.MustCompile(`(?i)^\s*preface\s*$`), hints.RegionPreface},
	{regexp.MustCompile(`(?i)^\s*foreword\s*$`), hints.RegionForeword},
	{regexp.MustCompile(`(?i)^\s*acknowledge?ments\s*$`), hints.RegionAcknowledgments},
	{regexp.MustCompile(`(?i)^\s*(list of (figures|tables|illustrations))\s*$`), hints.RegionListOfFigures},
}

var backMarkers = []marker{
	{regexp.MustCompile(`(?i)^\s*appendix(\s+[a-z0-9]+)?\s*$`), hints.RegionAppendix},
	{regexp.MustCompile(`(?i)^\s*(bibliography|works cited|references)\s*$`), hints.RegionBibliography},
	{regexp.MustCompile(`(?i)^\s*index\s*$`), hints.RegionIndex},
	{regexp.MustCompile(`(?i)^\s*(endnotes|notes)\s*$`), hints.RegionEndnotes},
	{regexp.MustCompile(`(?i)^\s*glossary\s*$`), hints.RegionGlossary},
	{regexp.MustCompile(`(?i)^\s*about the author\s*$`), hints.RegionAboutAuthor},
}

var chapterHeadingRe = regexp.MustCompile(`(?i)^\s*(chapter|part|book|section)\s+([0-9]+|[ivxlcdm]+)\b`)

// tocLeaderRe matches contents entries ("Chapter 1 ....... 12") so they
// are not mistaken for the headings they point at.
var tocLeaderRe = regexp.MustCompile(`\.{2,}\s*\d*\s*$`)

var pageNumberMatcher = `(?i)^\s*[\[(]?([0-9]{1,4}|[ivxlcdm]{1,7})[\])]?\s*$`

const markerMaxLen = 60

// AnalyzeStructure builds StructureHints from keyword markers, repeated
// line detection, and measured characteristics.
func (h *Heuristic) AnalyzeStructure(doc *document.Document, documentID string) *hints.StructureHints {
	lines := doc.Lines()
	total := len(lines)

	out := &hints.StructureHints{
		DocumentID: documentID,
		Method:     hints.MethodHeuristic,
		CreatedAt:  time.Now().UTC(),
		Warnings:   []string{"structure derived heuristically without AI assistance"},
	}

	if total == 0 {
		out.ContentType = hints.ContentUnknown
		out.OverallConfidence = 0.2
		return out
	}

	frontLimit := total * 20 / 100
	if frontLimit < 1 {
		frontLimit = total
	}
	backFrom := total * 70 / 100

	fronts := scanMarkers(lines, 1, frontLimit, frontMarkers)
	backs := scanMarkers(lines, backFrom+1, total, backMarkers)
	chapters := chapterLines(lines)

	coreStart := h.findCoreStart(lines, fronts, chapters)
	coreEnd, backStart := h.findCoreEnd(lines, backs)
	if coreEnd < coreStart {
		coreStart, coreEnd = 1, total
		backStart = 0
		fronts, backs = nil, nil
		out.Warnings = append(out.Warnings, "contradictory boundary markers, treating whole document as core")
	}
	out.CoreContent = &document.LineRange{Start: coreStart, End: coreEnd}

	out.Regions = buildRegions(total, coreStart, coreEnd, backStart, fronts, backs)
	out.Patterns = h.detectPatterns(lines, chapters)
	out.ContentType = classifyContent(chapters, backs)
	out.Characteristics = h.measureCharacteristics(lines, coreStart, coreEnd)

	conf := 0.50
	if len(fronts) > 0 || len(chapters) > 0 {
		conf += 0.05
	}
	if len(backs) > 0 {
		conf += 0.05
	}
	if len(out.Patterns) > 0 {
		conf += 0.05
	}
	out.OverallConfidence = conf

	if err := out.Validate(total); err != nil {
		h.logger.Error("heuristic hints failed validation, using minimal map",
			"document_id", documentID, "error", err)
		return minimalHints(documentID, total)
	}
	return out
}

// ConfirmBoundary confirms boundary lines against the hinted core by
// scanning for back-matter headings near the hinted end.
func (h *Heuristic) ConfirmBoundary(doc *document.Document, sh *hints.StructureHints) *BoundaryResult {
	lines := doc.Lines()
	total := len(lines)

	core := sh.CoreContent
	if core == nil {
		return &BoundaryResult{
			CoreStart:  1,
			CoreEnd:    total,
			Confidence: 0.4,
			Notes:      "no hinted core, kept whole document",
			Method:     hints.MethodHeuristic,
		}
	}

	coreStart := core.Start
	for coreStart <= core.End && strings.TrimSpace(lines[coreStart-1]) == "" {
		coreStart++
	}

	result := &BoundaryResult{Method: hints.MethodHeuristic}

	// Look for a back-matter heading in a window around the hinted end.
	winStart := max(core.Start, core.End-5)
	winEnd := min(total, core.End+15)
	found := 0
	var foundType hints.RegionType
	for n := winStart; n <= winEnd; n++ {
		if typ, ok := matchMarker(lines[n-1], backMarkers); ok {
			found = n
			foundType = typ
			break
		}
	}

	if found > 0 {
		coreEnd := lastNonBlankBefore(lines, found, coreStart)
		result.CoreStart = coreStart
		result.CoreEnd = coreEnd
		result.BackMatterStart = found
		result.Confidence = 0.9
		result.Notes = fmt.Sprintf("%s heading at line %d", foundType, found)
		return result
	}

	coreEnd := core.End
	for coreEnd > coreStart && strings.TrimSpace(lines[coreEnd-1]) == "" {
		coreEnd--
	}
	result.CoreStart = coreStart
	result.CoreEnd = coreEnd
	if coreEnd < total {
		result.BackMatterStart = coreEnd + 1
	}
	result.Confidence = 0.75
	result.Notes = "no back matter heading near hinted end, kept hinted boundary"
	return result
}

// DetectLanguage identifies the text's language, returning the ISO
// 639-1 code and a confidence.
func (h *Heuristic) DetectLanguage(text string) (string, float64) {
	if strings.TrimSpace(text) == "" {
		return "", 0
	}
	lang, ok := h.detector.DetectLanguageOf(text)
	if !ok {
		return "", 0
	}
	conf := h.detector.ComputeLanguageConfidence(text, lang)
	return strings.ToLower(lang.IsoCode639_1().String()), conf
}

func (h *Heuristic) findCoreStart(lines []string, fronts []lineMarker, chapters []int) int {
	lastFront := 0
	for _, m := range fronts {
		if m.line > lastFront {
			lastFront = m.line
		}
	}

	if lastFront > 0 {
		for _, ch := range chapters {
			if ch > lastFront {
				return ch
			}
		}
		// Skip the marker's own block: first non-blank line after the
		// next blank gap.
		n := lastFront + 1
		for n <= len(lines) && strings.TrimSpace(lines[n-1]) != "" {
			n++
		}
		for n <= len(lines) && strings.TrimSpace(lines[n-1]) == "" {
			n++
		}
		if n <= len(lines) {
			return n
		}
		return lastFront + 1
	}

	if len(chapters) > 0 && chapters[0] <= len(lines)*30/100 {
		return chapters[0]
	}
	return 1
}

func (h *Heuristic) findCoreEnd(lines []string, backs []lineMarker) (coreEnd, backStart int) {
	total := len(lines)
	if len(backs) > 0 {
		first := backs[0].line
		return lastNonBlankBefore(lines, first, 1), first
	}
	return lastNonBlankBefore(lines, total+1, 1), 0
}

func (h *Heuristic) detectPatterns(lines []string, chapters []int) []hints.Pattern {
	var patterns []hints.Pattern

	// Standalone page numbers.
	pageCount := 0
	var pageSamples []string
	for _, line := range lines {
		if clean.IsPageNumberLine(line) {
			pageCount++
			if len(pageSamples) < 2 {
				pageSamples = append(pageSamples, strings.TrimSpace(line))
			}
		}
	}
	if pageCount >= 5 {
		patterns = append(patterns, hints.Pattern{
			Kind:           hints.PatternPageNumber,
			Style:          "standalone line",
			Matcher:        pageNumberMatcher,
			Regex:          true,
			Samples:        pageSamples,
			Confidence:     0.7,
			EstimatedCount: pageCount,
		})
	}

	// Repeated short lines are running headers or footers.
	freq := make(map[string]int)
	first := make(map[string]string)
	for _, line := range lines {
		norm := textutil.NormalizeLine(line)
		if norm == "" || len(norm) > markerMaxLen || chapterHeadingRe.MatchString(line) || clean.IsPageNumberLine(line) {
			continue
		}
		freq[norm]++
		if _, ok := first[norm]; !ok {
			first[norm] = strings.TrimSpace(line)
		}
	}
	var repeated []string
	for norm, count := range freq {
		if count >= 5 {
			repeated = append(repeated, norm)
		}
	}
	sort.Slice(repeated, func(i, j int) bool {
		if freq[repeated[i]] != freq[repeated[j]] {
			return freq[repeated[i]] > freq[repeated[j]]
		}
		return repeated[i] < repeated[j]
	})
	if len(repeated) > 3 {
		repeated = repeated[:3]
	}
	for _, norm := range repeated {
		patterns = append(patterns, hints.Pattern{
			Kind:           hints.PatternPageHeader,
			Style:          "repeated line",
			Matcher:        norm,
			Samples:        []string{first[norm], first[norm]},
			Confidence:     0.65,
			EstimatedCount: freq[norm],
		})
	}

	// Chapter heading style.
	if len(chapters) >= 3 {
		var samples []string
		for _, n := range chapters[:2] {
			samples = append(samples, strings.TrimSpace(lines[n-1]))
		}
		patterns = append(patterns, hints.Pattern{
			Kind:           hints.PatternChapterHeading,
			Style:          "numbered heading",
			Matcher:        chapterHeadingRe.String(),
			Regex:          true,
			Samples:        samples,
			Confidence:     0.8,
			EstimatedCount: len(chapters),
		})
	}

	return patterns
}

func (h *Heuristic) measureCharacteristics(lines []string, coreStart, coreEnd int) hints.Characteristics {
	c := hints.Characteristics{
		AvgLineLength:  textutil.AvgLineLength(lines),
		BlankLineRatio: textutil.BlankRatio(lines),
	}

	nonBlank, dialogue, footnotes := 0, 0, 0
	badRunes, totalRunes := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonBlank++
		switch trimmed[0] {
		case '"', '\'':
			dialogue++
		default:
			if strings.HasPrefix(trimmed, "“") || strings.HasPrefix(trimmed, "‘") {
				dialogue++
			}
		}
		if footnoteRe.MatchString(trimmed) {
			footnotes++
		}
		for _, r := range line {
			totalRunes++
			if r == '�' || (r < ' ' && r != '\t') {
				badRunes++
			}
		}
	}
	if nonBlank > 0 {
		c.HasDialogue = float64(dialogue)/float64(nonBlank) > 0.03
		c.HasFootnotes = footnotes >= 8
	}

	quality := 1.0
	if totalRunes > 0 {
		bad := float64(badRunes) / float64(totalRunes) * 20
		if bad > 0.6 {
			bad = 0.6
		}
		quality -= bad
	}
	c.OCRQuality = quality

	pageCount := 0
	for _, line := range lines {
		if clean.IsPageNumberLine(line) {
			pageCount++
		}
	}
	if pageCount >= 5 {
		c.EstimatedPages = pageCount
	} else {
		c.EstimatedPages = (len(lines) + 39) / 40
	}

	// Language detection over a core sample.
	sampleStart := coreStart + (coreEnd-coreStart)/3
	sampleEnd := min(coreEnd, sampleStart+200)
	if sampleStart >= 1 && sampleStart <= sampleEnd && sampleEnd <= len(lines) {
		sample := strings.Join(lines[sampleStart-1:sampleEnd], "\n")
		c.Language, c.LanguageConfidence = h.DetectLanguage(sample)
	}

	return c
}

var footnoteRe = regexp.MustCompile(`^\[?\d{1,3}[\].]\s`)

func scanMarkers(lines []string, from, to int, markers []marker) []lineMarker {
	var out []lineMarker
	for n := from; n <= to && n <= len(lines); n++ {
		if typ, ok := matchMarker(lines[n-1], markers); ok {
			out = append(out, lineMarker{line: n, typ: typ})
		}
	}
	return out
}

func matchMarker(line string, markers []marker) (hints.RegionType, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > markerMaxLen {
		return "", false
	}
	for _, m := range markers {
		if m.re.MatchString(trimmed) {
			return m.typ, true
		}
	}
	return "", false
}

func chapterLines(lines []string) []int {
	var out []int
	for n, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) > markerMaxLen {
			continue
		}
		if chapterHeadingRe.MatchString(trimmed) && !tocLeaderRe.MatchString(trimmed) {
			out = append(out, n+1)
		}
	}
	return out
}

func lastNonBlankBefore(lines []string, before, atLeast int) int {
	for n := before - 1; n >= atLeast; n-- {
		if strings.TrimSpace(lines[n-1]) != "" {
			return n
		}
	}
	return atLeast
}

func buildRegions(total, coreStart, coreEnd, backStart int, fronts, backs []lineMarker) []hints.Region {
	var regions []hints.Region
	add := func(typ hints.RegionType, start, end int, conf float64, evidence string) {
		if start < 1 || end > total || start > end {
			return
		}
		regions = append(regions, hints.Region{
			ID:         uuid.NewString(),
			Type:       typ,
			Lines:      document.LineRange{Start: start, End: end},
			Confidence: conf,
			Method:     hints.MethodHeuristic,
			Evidence:   evidence,
		})
	}

	if coreStart > 1 {
		if len(fronts) == 0 {
			add(hints.RegionTitlePage, 1, coreStart-1, 0.5, "lines before detected core start")
		} else {
			if fronts[0].line > 1 {
				add(hints.RegionTitlePage, 1, fronts[0].line-1, 0.5, "lines before first front matter marker")
			}
			for i, m := range fronts {
				end := coreStart - 1
				if i+1 < len(fronts) {
					end = fronts[i+1].line - 1
				}
				add(m.typ, m.line, end, 0.6, "keyword heading")
			}
		}
	}

	add(hints.RegionBodyText, coreStart, coreEnd, 0.7, "detected core content")

	if backStart > 0 {
		for i, m := range backs {
			end := total
			if i+1 < len(backs) {
				end = backs[i+1].line - 1
			}
			add(m.typ, m.line, end, 0.6, "keyword heading")
		}
	}

	return regions
}

func classifyContent(chapters []int, backs []lineMarker) hints.ContentType {
	hasBibliography := false
	for _, b := range backs {
		if b.typ == hints.RegionBibliography || b.typ == hints.RegionEndnotes {
			hasBibliography = true
		}
	}
	switch {
	case hasBibliography:
		return hints.ContentAcademic
	case len(chapters) >= 3:
		return hints.ContentNovel
	default:
		return hints.ContentUnknown
	}
}

func minimalHints(documentID string, total int) *hints.StructureHints {
	return &hints.StructureHints{
		DocumentID:        documentID,
		ContentType:       hints.ContentUnknown,
		CoreContent:       &document.LineRange{Start: 1, End: total},
		OverallConfidence: 0.3,
		Warnings:          []string{"minimal structural map, treat results with caution"},
		Method:            hints.MethodHeuristic,
		CreatedAt:         time.Now().UTC(),
	}
}
