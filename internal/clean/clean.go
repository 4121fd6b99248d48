// Package clean holds the text-cleaning operations the phases drive.
// Every operation takes lines in, returns new lines plus a report, and
// never mutates its input. Word counts in reports use the same
// segmenter as document metrics so cross-checks compare like with like.
package clean

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Report describes what one operation did.
type Report struct {
	LinesRemoved int
	MatchCount   int
	WordsBefore  int
	WordsAfter   int
}

func report(before, after []string, removed, matches int) Report {
	return Report{
		LinesRemoved: removed,
		MatchCount:   matches,
		WordsBefore:  countWords(before),
		WordsAfter:   countWords(after),
	}
}

func countWords(lines []string) int {
	n := 0
	for _, line := range lines {
		n += textutil.WordCount(line)
	}
	return n
}

var romanNumeral = regexp.MustCompile(`^[ivxlcdm]{1,7}$`)

// IsPageNumberLine reports whether a line is nothing but a page number:
// a bare arabic number up to four digits or a short roman numeral,
// allowing stray emphasis markers around it.
func IsPageNumberLine(line string) bool {
	stripped := strings.TrimSpace(line)
	if stripped == "" {
		return false
	}
	plain := strings.NewReplacer("**", "", "*", "", "_", "").Replace(stripped)
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return false
	}
	if romanNumeral.MatchString(strings.ToLower(plain)) {
		return true
	}
	if len(plain) >= 5 {
		return false
	}
	for _, r := range plain {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// StripPageNumbers removes standalone page-number lines. When the
// hinted pattern carries a regex it is applied as well.
func StripPageNumbers(lines []string, pattern *hints.Pattern) ([]string, Report) {
	var re *regexp.Regexp
	if pattern != nil && pattern.Regex {
		if compiled, err := pattern.Compile(); err == nil {
			re = compiled
		}
	}
	out := make([]string, 0, len(lines))
	matches := 0
	for _, line := range lines {
		if IsPageNumberLine(line) || (re != nil && re.MatchString(strings.TrimSpace(line))) {
			matches++
			continue
		}
		out = append(out, line)
	}
	return out, report(lines, out, matches, matches)
}

// StripMatchingLines removes every line whose normalized form equals the
// pattern's matcher, or that matches its regex. This is how running
// headers and footers identified during reconnaissance come out.
func StripMatchingLines(lines []string, pattern hints.Pattern) ([]string, Report) {
	var matchFn func(string) bool
	if pattern.Regex {
		re, err := pattern.Compile()
		if err != nil {
			return append([]string(nil), lines...), report(lines, lines, 0, 0)
		}
		matchFn = func(line string) bool { return re.MatchString(strings.TrimSpace(line)) }
	} else {
		want := textutil.NormalizeLine(pattern.Matcher)
		if want == "" {
			return append([]string(nil), lines...), report(lines, lines, 0, 0)
		}
		matchFn = func(line string) bool { return textutil.NormalizeLine(line) == want }
	}

	out := make([]string, 0, len(lines))
	matches := 0
	for _, line := range lines {
		if matchFn(line) {
			matches++
			continue
		}
		out = append(out, line)
	}
	return out, report(lines, out, matches, matches)
}

// StripInlineMarkers removes inline occurrences matched by the regex
// without dropping any line, e.g. footnote markers like [12].
func StripInlineMarkers(lines []string, re *regexp.Regexp) ([]string, Report) {
	out := make([]string, len(lines))
	matches := 0
	for i, line := range lines {
		matches += len(re.FindAllString(line, -1))
		cleaned := re.ReplaceAllString(line, "")
		out[i] = strings.TrimRightFunc(cleaned, unicode.IsSpace)
	}
	return out, report(lines, out, 0, matches)
}

// NormalizeWhitespace trims trailing space and collapses blank runs to
// a single separator line.
func NormalizeWhitespace(lines []string) ([]string, Report) {
	out := textutil.TrimTrailingSpace(lines)
	out = textutil.CollapseBlankLines(out, 1)
	return out, report(lines, out, len(lines)-len(out), 0)
}

var ocrReplacements = strings.NewReplacer(
	"ﬁ", "fi",
	"ﬂ", "fl",
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
	"­", "",
)

// NormalizePunctuation folds typographic quotes and OCR ligatures into
// their plain equivalents. Word counts are unaffected.
func NormalizePunctuation(lines []string) ([]string, Report) {
	out := make([]string, len(lines))
	matches := 0
	for i, line := range lines {
		replaced := ocrReplacements.Replace(line)
		if replaced != line {
			matches++
		}
		out[i] = replaced
	}
	return out, report(lines, out, 0, matches)
}

// Dehyphenate repairs words split across line breaks.
func Dehyphenate(lines []string) ([]string, Report) {
	out, joins := textutil.Dehyphenate(lines)
	return out, report(lines, out, len(lines)-len(out), joins)
}

// ReflowParagraphs joins hard-wrapped lines inside each paragraph into
// a single line. Paragraphs are blank-line separated; short standalone
// lines that look like headings are left alone. The operation moves
// words between lines but never adds or drops one.
func ReflowParagraphs(lines []string) ([]string, Report) {
	var out []string
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		out = append(out, strings.Join(para, " "))
		para = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			out = append(out, "")
			continue
		}
		if looksLikeHeading(trimmed) && len(para) == 0 {
			out = append(out, trimmed)
			continue
		}
		para = append(para, trimmed)
	}
	flush()
	return out, report(lines, out, 0, 0)
}

var headingPattern = regexp.MustCompile(`(?i)^(chapter|part|section|book)\s+([0-9]+|[ivxlcdm]+)\b`)

func looksLikeHeading(line string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	if headingPattern.MatchString(line) {
		return true
	}
	// Short all-caps lines read as headings.
	if len(line) <= 60 && line == strings.ToUpper(line) && strings.IndexFunc(line, unicode.IsLetter) >= 0 {
		return true
	}
	return false
}

// JoinPageBreak glues text that continues across a page boundary:
// a sentence break keeps the paragraph split, a lowercase continuation
// joins with a space, and a hyphenated split joins without one.
func JoinPageBreak(prev, next string) string {
	prevStripped := strings.TrimRightFunc(prev, unicode.IsSpace)
	if prevStripped == "" {
		return next
	}
	if strings.HasSuffix(prevStripped, "-") {
		runes := []rune(prevStripped)
		if len(runes) >= 2 && unicode.IsLower(runes[len(runes)-2]) {
			return strings.TrimSuffix(prevStripped, "-") + strings.TrimLeftFunc(next, unicode.IsSpace)
		}
	}
	last := prevStripped[len(prevStripped)-1]
	if strings.ContainsRune(`.!?"'`, rune(last)) {
		return prevStripped + "\n\n" + next
	}
	return prevStripped + " " + strings.TrimLeftFunc(next, unicode.IsSpace)
}
