package textutil

import (
	"strings"
	"unicode"
)

// SplitLines splits text into lines, normalizing CRLF and lone CR endings.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// CollapseBlankLines reduces runs of more than max consecutive blank lines
// down to max. Blank means empty after trimming.
func CollapseBlankLines(lines []string, max int) []string {
	if max < 0 {
		max = 0
	}
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > max {
				continue
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, line)
	}
	return out
}

// TrimTrailingSpace removes trailing whitespace from every line.
func TrimTrailingSpace(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return out
}

// BlankRatio returns the fraction of lines that are blank after trimming.
// Returns 0 for empty input.
func BlankRatio(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
		}
	}
	return float64(blanks) / float64(len(lines))
}

// AvgLineLength returns the mean rune length of non-blank lines.
func AvgLineLength(lines []string) float64 {
	total, n := 0, 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total += len([]rune(trimmed))
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}

// Dehyphenate joins a word split across two lines: when a line ends with a
// hyphen preceded by a lowercase letter and the next line starts with a
// lowercase letter, the hyphen is removed and the fragments are joined.
// Returns the repaired lines and the number of joins performed. The
// input slice is left untouched.
func Dehyphenate(lines []string) ([]string, int) {
	lines = append([]string(nil), lines...)
	out := make([]string, 0, len(lines))
	joins := 0
	i := 0
	for i < len(lines) {
		line := lines[i]
		if i+1 < len(lines) && endsWithSoftHyphen(line) && startsLower(lines[i+1]) {
			next := strings.TrimLeftFunc(lines[i+1], unicode.IsSpace)
			firstWord, rest := splitFirstWord(next)
			joined := strings.TrimSuffix(strings.TrimRightFunc(line, unicode.IsSpace), "-") + firstWord
			if rest == "" {
				out = append(out, joined)
			} else {
				out = append(out, joined)
				lines[i+1] = rest
				i++
				joins++
				continue
			}
			joins++
			i += 2
			continue
		}
		out = append(out, line)
		i++
	}
	return out, joins
}

func endsWithSoftHyphen(line string) bool {
	trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
	if !strings.HasSuffix(trimmed, "-") {
		return false
	}
	runes := []rune(trimmed)
	return len(runes) >= 2 && unicode.IsLower(runes[len(runes)-2])
}

func startsLower(line string) bool {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if trimmed == "" {
		return false
	}
	return unicode.IsLower([]rune(trimmed)[0])
}

func splitFirstWord(s string) (first, rest string) {
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
}
