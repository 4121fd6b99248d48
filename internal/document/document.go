// Package document holds the text being cleaned as an immutable value.
// Every mutation returns a new Document, so a phase snapshot is just a
// retained pointer and restoring one is exact by construction.
package document

import (
	"fmt"

	"github.com/sluice-dev/sluice/internal/textutil"
)

// LineRange is a 1-based inclusive span of lines.
type LineRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Valid reports whether the range is well formed and fits a document of
// totalLines lines. Pass 0 to skip the upper-bound check.
func (r LineRange) Valid(totalLines int) bool {
	if r.Start < 1 || r.End < r.Start {
		return false
	}
	if totalLines > 0 && r.End > totalLines {
		return false
	}
	return true
}

// Len returns the number of lines covered.
func (r LineRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Contains reports whether line (1-based) falls inside the range.
func (r LineRange) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// Overlaps reports whether the two ranges share any line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

func (r LineRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Metrics is a size snapshot used for before/after comparisons.
type Metrics struct {
	Lines int `json:"lines" yaml:"lines"`
	Words int `json:"words" yaml:"words"`
	Chars int `json:"chars" yaml:"chars"`
}

// Document is an immutable snapshot of the text under cleaning.
type Document struct {
	lines []string
	words int
	chars int
}

// New builds a Document from raw text, normalizing line endings.
func New(text string) *Document {
	return FromLines(textutil.SplitLines(text))
}

// FromLines builds a Document from pre-split lines. The slice is copied.
func FromLines(lines []string) *Document {
	d := &Document{lines: make([]string, len(lines))}
	copy(d.lines, lines)
	for _, line := range d.lines {
		d.words += textutil.WordCount(line)
		d.chars += len(line)
	}
	// Newline separators count toward chars so Text() round-trips.
	if len(d.lines) > 1 {
		d.chars += len(d.lines) - 1
	}
	return d
}

// Text returns the full text with \n separators.
func (d *Document) Text() string {
	return textutil.JoinLines(d.lines)
}

// Lines returns a copy of the line slice.
func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Line returns the 1-based line, or "" when out of range.
func (d *Document) Line(n int) string {
	if n < 1 || n > len(d.lines) {
		return ""
	}
	return d.lines[n-1]
}

// LineCount returns the number of lines.
func (d *Document) LineCount() int {
	return len(d.lines)
}

// WordCount returns the cached word count.
func (d *Document) WordCount() int {
	return d.words
}

// CharCount returns the cached character count including separators.
func (d *Document) CharCount() int {
	return d.chars
}

// Metrics returns the current size snapshot.
func (d *Document) Metrics() Metrics {
	return Metrics{Lines: len(d.lines), Words: d.words, Chars: d.chars}
}

// Slice returns the lines covered by r. Out-of-range portions are clipped.
func (d *Document) Slice(r LineRange) []string {
	start, end := r.Start, r.End
	if start < 1 {
		start = 1
	}
	if end > len(d.lines) {
		end = len(d.lines)
	}
	if start > end {
		return nil
	}
	out := make([]string, end-start+1)
	copy(out, d.lines[start-1:end])
	return out
}

// SliceText returns the text covered by r joined with newlines.
func (d *Document) SliceText(r LineRange) string {
	return textutil.JoinLines(d.Slice(r))
}

// RemoveRange returns a new Document with the lines in r removed.
func (d *Document) RemoveRange(r LineRange) *Document {
	return d.RemoveRanges([]LineRange{r})
}

// RemoveRanges returns a new Document with every line covered by any of
// the ranges removed. Ranges may overlap.
func (d *Document) RemoveRanges(ranges []LineRange) *Document {
	if len(ranges) == 0 {
		return d
	}
	drop := make(map[int]bool)
	for _, r := range ranges {
		start, end := r.Start, r.End
		if start < 1 {
			start = 1
		}
		if end > len(d.lines) {
			end = len(d.lines)
		}
		for i := start; i <= end; i++ {
			drop[i] = true
		}
	}
	kept := make([]string, 0, len(d.lines)-len(drop))
	for i, line := range d.lines {
		if !drop[i+1] {
			kept = append(kept, line)
		}
	}
	return FromLines(kept)
}

// Keep returns a new Document containing only the lines in r.
func (d *Document) Keep(r LineRange) *Document {
	return FromLines(d.Slice(r))
}

// ReplaceRange returns a new Document with the lines in r replaced by
// replacement. The replacement may have a different line count.
func (d *Document) ReplaceRange(r LineRange, replacement []string) *Document {
	start, end := r.Start, r.End
	if start < 1 {
		start = 1
	}
	if end > len(d.lines) {
		end = len(d.lines)
	}
	if start > end+1 {
		return d
	}
	out := make([]string, 0, len(d.lines)-(end-start+1)+len(replacement))
	out = append(out, d.lines[:start-1]...)
	out = append(out, replacement...)
	if end < len(d.lines) {
		out = append(out, d.lines[end:]...)
	}
	return FromLines(out)
}

// WithLines returns a new Document built from the given lines.
func (d *Document) WithLines(lines []string) *Document {
	return FromLines(lines)
}

// Equal reports whether two documents hold identical text.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.lines) != len(other.lines) {
		return false
	}
	for i := range d.lines {
		if d.lines[i] != other.lines[i] {
			return false
		}
	}
	return true
}
