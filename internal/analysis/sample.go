package analysis

import (
	"fmt"
	"strings"

	"github.com/sluice-dev/sluice/internal/document"
)

// SampleSpec controls how much of the document goes into the
// reconnaissance sample. Head and tail are taken whole; the middle is
// covered by evenly spaced windows.
type SampleSpec struct {
	Head          int
	Tail          int
	MiddleWindows int
	WindowSize    int
}

// DefaultSampleSpec returns the stock sampling layout.
func DefaultSampleSpec() SampleSpec {
	return SampleSpec{Head: 120, Tail: 120, MiddleWindows: 3, WindowSize: 24}
}

// BuildSample renders numbered sample lines from the document. Elided
// spans between segments are marked with "...".
func BuildSample(doc *document.Document, spec SampleSpec) string {
	total := doc.LineCount()
	if total == 0 {
		return ""
	}

	segments := sampleRanges(total, spec)

	var b strings.Builder
	prevEnd := 0
	for _, seg := range segments {
		if prevEnd > 0 && seg.Start > prevEnd+1 {
			b.WriteString("...\n")
		}
		for n := seg.Start; n <= seg.End; n++ {
			writeNumbered(&b, n, doc.Line(n))
		}
		prevEnd = seg.End
	}
	if prevEnd < total {
		b.WriteString("...\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// NumberedExcerpt renders numbered lines around center, radius lines to
// each side, clipped to the document.
func NumberedExcerpt(doc *document.Document, center, radius int) string {
	total := doc.LineCount()
	if total == 0 {
		return ""
	}
	start := max(1, center-radius)
	end := min(total, center+radius)

	var b strings.Builder
	for n := start; n <= end; n++ {
		writeNumbered(&b, n, doc.Line(n))
	}
	return strings.TrimRight(b.String(), "\n")
}

// sampleRanges computes the merged, ordered line ranges the sample
// covers.
func sampleRanges(total int, spec SampleSpec) []document.LineRange {
	if spec.Head <= 0 {
		spec.Head = 1
	}
	if spec.Tail < 0 {
		spec.Tail = 0
	}

	budget := spec.Head + spec.Tail + spec.MiddleWindows*spec.WindowSize
	if total <= budget {
		return []document.LineRange{{Start: 1, End: total}}
	}

	ranges := []document.LineRange{{Start: 1, End: spec.Head}}

	middleStart := spec.Head + 1
	middleEnd := total - spec.Tail
	if spec.MiddleWindows > 0 && spec.WindowSize > 0 && middleEnd > middleStart {
		span := middleEnd - middleStart
		for i := 1; i <= spec.MiddleWindows; i++ {
			center := middleStart + span*i/(spec.MiddleWindows+1)
			half := spec.WindowSize / 2
			ranges = append(ranges, document.LineRange{
				Start: max(middleStart, center-half),
				End:   min(middleEnd, center+half),
			})
		}
	}

	if spec.Tail > 0 {
		ranges = append(ranges, document.LineRange{Start: total - spec.Tail + 1, End: total})
	}

	return mergeRanges(ranges)
}

func mergeRanges(ranges []document.LineRange) []document.LineRange {
	if len(ranges) <= 1 {
		return ranges
	}
	merged := []document.LineRange{ranges[0]}
	for _, r := range ranges[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

func writeNumbered(b *strings.Builder, n int, line string) {
	fmt.Fprintf(b, "%6d\t%s\n", n, line)
}
