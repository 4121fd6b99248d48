package phases

import (
	"sort"

	"github.com/sluice-dev/sluice/internal/document"
)

// LineOrigin maps current line numbers back to the original document.
// Index i holds the original line of current line i+1; the values are
// strictly increasing because early phases only remove whole lines.
type LineOrigin []int

// IdentityOrigin returns the mapping for an untouched document of
// total lines.
func IdentityOrigin(total int) LineOrigin {
	m := make(LineOrigin, total)
	for i := range m {
		m[i] = i + 1
	}
	return m
}

// ToOriginal translates a current line number, clamping out-of-range
// input to the nearest end.
func (m LineOrigin) ToOriginal(cur int) int {
	if len(m) == 0 {
		return cur
	}
	if cur < 1 {
		cur = 1
	}
	if cur > len(m) {
		cur = len(m)
	}
	return m[cur-1]
}

// FromOriginal returns the first current line whose origin is at or
// past orig, and whether any such line survives.
func (m LineOrigin) FromOriginal(orig int) (int, bool) {
	i := sort.SearchInts(m, orig)
	if i == len(m) {
		return 0, false
	}
	return i + 1, true
}

// Window translates an original-coordinate range into the current
// document. ok is false when every line of the range is already gone.
func (m LineOrigin) Window(orig document.LineRange) (document.LineRange, bool) {
	if len(m) == 0 {
		return orig, true
	}
	start, ok := m.FromOriginal(orig.Start)
	if !ok {
		return document.LineRange{}, false
	}
	// Count of surviving lines with origin <= orig.End.
	end := sort.SearchInts(m, orig.End+1)
	if start > end {
		return document.LineRange{}, false
	}
	return document.LineRange{Start: start, End: end}, true
}

// Remap rebuilds the mapping after an operation that removed whole
// lines, matching after against before as a subsequence. Lines the
// match cannot account for keep a monotone placeholder so lookups stay
// ordered.
func (m LineOrigin) Remap(before, after []string) LineOrigin {
	out := make(LineOrigin, 0, len(after))
	j := 0
	last := 0
	for i := 0; i < len(before) && j < len(after); i++ {
		if before[i] == after[j] {
			last = m.ToOriginal(i + 1)
			out = append(out, last)
			j++
		}
	}
	for ; j < len(after); j++ {
		last++
		out = append(out, last)
	}
	return out
}
