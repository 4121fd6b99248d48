package clean

import (
	"regexp"
	"strings"
	"testing"

	"github.com/sluice-dev/sluice/internal/hints"
)

func TestIsPageNumberLine(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"42", true},
		{"  317  ", true},
		{"**12**", true},
		{"xiv", true},
		{"IX", true},
		{"12345", false},
		{"Chapter 42", false},
		{"", false},
		{"4 2", false},
	}
	for _, tt := range cases {
		if got := IsPageNumberLine(tt.line); got != tt.want {
			t.Fatalf("IsPageNumberLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestStripPageNumbers(t *testing.T) {
	lines := []string{"The story begins.", "42", "It continues.", "xliii", "The end."}
	out, rep := StripPageNumbers(lines, nil)
	if len(out) != 3 {
		t.Fatalf("got %d lines: %v", len(out), out)
	}
	if rep.MatchCount != 2 || rep.LinesRemoved != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.WordsBefore-rep.WordsAfter != 2 {
		t.Fatalf("word delta = %d", rep.WordsBefore-rep.WordsAfter)
	}
}

func TestStripPageNumbersWithHintedRegex(t *testing.T) {
	lines := []string{"body", "Page 7 of 300", "more body"}
	p := &hints.Pattern{Kind: hints.PatternPageNumber, Matcher: `^Page \d+ of \d+$`, Regex: true, Confidence: 0.9}
	out, rep := StripPageNumbers(lines, p)
	if len(out) != 2 || rep.MatchCount != 1 {
		t.Fatalf("out = %v, report = %+v", out, rep)
	}
}

func TestStripMatchingLinesLiteral(t *testing.T) {
	lines := []string{"THE GREAT WAR", "Some text.", "The  Great   War", "More text."}
	p := hints.Pattern{Kind: hints.PatternPageHeader, Matcher: "the great war", Confidence: 0.9}
	out, rep := StripMatchingLines(lines, p)
	if len(out) != 2 {
		t.Fatalf("out = %v", out)
	}
	if rep.MatchCount != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestStripMatchingLinesRegex(t *testing.T) {
	lines := []string{"HISTORY * 7", "text", "HISTORY * 99"}
	p := hints.Pattern{Kind: hints.PatternPageHeader, Matcher: `^HISTORY \* \d+$`, Regex: true, Confidence: 0.8}
	out, rep := StripMatchingLines(lines, p)
	if len(out) != 1 || out[0] != "text" {
		t.Fatalf("out = %v", out)
	}
	if rep.MatchCount != 2 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestStripMatchingLinesDoesNotMutateInput(t *testing.T) {
	lines := []string{"header", "body"}
	p := hints.Pattern{Kind: hints.PatternPageHeader, Matcher: "header", Confidence: 0.9}
	_, _ = StripMatchingLines(lines, p)
	if lines[0] != "header" || lines[1] != "body" {
		t.Fatalf("input mutated: %v", lines)
	}
}

func TestStripInlineMarkers(t *testing.T) {
	lines := []string{"The claim[12] was disputed.[13]", "No markers here."}
	out, rep := StripInlineMarkers(lines, regexp.MustCompile(`\[\d+\]`))
	if out[0] != "The claim was disputed." {
		t.Fatalf("line = %q", out[0])
	}
	if rep.MatchCount != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.LinesRemoved != 0 {
		t.Fatal("inline stripping must not drop lines")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	lines := []string{"text  ", "", "", "", "more"}
	out, rep := NormalizeWhitespace(lines)
	if len(out) != 3 {
		t.Fatalf("out = %v", out)
	}
	if out[0] != "text" {
		t.Fatalf("trailing space kept: %q", out[0])
	}
	if rep.WordsBefore != rep.WordsAfter {
		t.Fatalf("whitespace pass changed words: %+v", rep)
	}
}

func TestNormalizePunctuation(t *testing.T) {
	lines := []string{"“Hello,” she said.", "the ﬁre ﬂared"}
	out, rep := NormalizePunctuation(lines)
	if out[0] != `"Hello," she said.` {
		t.Fatalf("line = %q", out[0])
	}
	if out[1] != "the fire flared" {
		t.Fatalf("line = %q", out[1])
	}
	if rep.WordsBefore != rep.WordsAfter {
		t.Fatalf("punctuation pass changed words: %+v", rep)
	}
}

func TestReflowPreservesWordCount(t *testing.T) {
	lines := []string{
		"CHAPTER ONE",
		"",
		"The morning sun rose slowly",
		"over the distant hills and",
		"touched the valley floor.",
		"",
		"A new paragraph starts here",
		"and continues on this line.",
	}
	out, rep := ReflowParagraphs(lines)
	if rep.WordsBefore != rep.WordsAfter {
		t.Fatalf("reflow changed word count: %+v", rep)
	}
	if out[0] != "CHAPTER ONE" {
		t.Fatalf("heading disturbed: %q", out[0])
	}
	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, "The morning sun rose slowly over the distant hills and touched the valley floor.") {
		t.Fatalf("paragraph not joined: %q", joined)
	}
}

func TestReflowKeepsHeadingsSeparate(t *testing.T) {
	lines := []string{"Chapter 2", "", "Body text follows the heading."}
	out, _ := ReflowParagraphs(lines)
	if out[0] != "Chapter 2" {
		t.Fatalf("out = %v", out)
	}
	if len(out) != 3 {
		t.Fatalf("structure changed: %v", out)
	}
}

func TestDehyphenate(t *testing.T) {
	lines := []string{"a remark-", "able feat"}
	out, rep := Dehyphenate(lines)
	if out[0] != "a remarkable" {
		t.Fatalf("out = %v", out)
	}
	if rep.MatchCount != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestJoinPageBreak(t *testing.T) {
	if got := JoinPageBreak("ended with a period.", "Next page."); !strings.Contains(got, "\n\n") {
		t.Fatalf("sentence end should paragraph-break: %q", got)
	}
	if got := JoinPageBreak("continues mid", "sentence here"); got != "continues mid sentence here" {
		t.Fatalf("continuation join = %q", got)
	}
	if got := JoinPageBreak("a transfor-", "mation"); got != "a transformation" {
		t.Fatalf("hyphen join = %q", got)
	}
}
