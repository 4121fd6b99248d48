package document

import "testing"

func TestNewSplitsLines(t *testing.T) {
	d := New("first\nsecond\nthird")
	if d.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", d.LineCount())
	}
	if d.Line(2) != "second" {
		t.Fatalf("Line(2) = %q", d.Line(2))
	}
	if d.Line(0) != "" || d.Line(4) != "" {
		t.Fatal("out-of-range lines should be empty")
	}
}

func TestTextRoundTrip(t *testing.T) {
	text := "alpha\nbeta\n\ngamma"
	d := New(text)
	if d.Text() != text {
		t.Fatalf("round trip mismatch: %q", d.Text())
	}
	if d.CharCount() != len(text) {
		t.Fatalf("CharCount = %d, want %d", d.CharCount(), len(text))
	}
}

func TestRemoveRangeImmutable(t *testing.T) {
	d := New("a\nb\nc\nd\ne")
	before := d.Metrics()
	trimmed := d.RemoveRange(LineRange{Start: 2, End: 3})

	if d.Metrics() != before {
		t.Fatal("original document mutated")
	}
	if trimmed.LineCount() != 3 {
		t.Fatalf("expected 3 lines after removal, got %d", trimmed.LineCount())
	}
	if trimmed.Text() != "a\nd\ne" {
		t.Fatalf("text = %q", trimmed.Text())
	}
}

func TestRemoveRangesOverlapping(t *testing.T) {
	d := New("1\n2\n3\n4\n5\n6")
	out := d.RemoveRanges([]LineRange{
		{Start: 2, End: 4},
		{Start: 3, End: 5},
	})
	if out.Text() != "1\n6" {
		t.Fatalf("text = %q", out.Text())
	}
}

func TestRemoveRangeClipsOutOfBounds(t *testing.T) {
	d := New("a\nb")
	out := d.RemoveRange(LineRange{Start: 1, End: 99})
	if out.LineCount() != 0 {
		t.Fatalf("expected empty document, got %d lines", out.LineCount())
	}
}

func TestKeep(t *testing.T) {
	d := New("front\ncore one\ncore two\nback")
	core := d.Keep(LineRange{Start: 2, End: 3})
	if core.Text() != "core one\ncore two" {
		t.Fatalf("text = %q", core.Text())
	}
}

func TestReplaceRange(t *testing.T) {
	d := New("a\nb\nc\nd")
	out := d.ReplaceRange(LineRange{Start: 2, End: 3}, []string{"x"})
	if out.Text() != "a\nx\nd" {
		t.Fatalf("text = %q", out.Text())
	}
	// Replacement may grow the document.
	out = d.ReplaceRange(LineRange{Start: 4, End: 4}, []string{"d1", "d2"})
	if out.Text() != "a\nb\nc\nd1\nd2" {
		t.Fatalf("text = %q", out.Text())
	}
}

func TestLineRange(t *testing.T) {
	r := LineRange{Start: 3, End: 7}
	if !r.Valid(10) {
		t.Fatal("range should be valid")
	}
	if r.Valid(5) {
		t.Fatal("range exceeding total should be invalid")
	}
	if (LineRange{Start: 0, End: 2}).Valid(10) {
		t.Fatal("zero start should be invalid")
	}
	if (LineRange{Start: 5, End: 3}).Valid(10) {
		t.Fatal("inverted range should be invalid")
	}
	if r.Len() != 5 {
		t.Fatalf("Len = %d", r.Len())
	}
	if !r.Contains(3) || !r.Contains(7) || r.Contains(8) {
		t.Fatal("Contains boundaries wrong")
	}
	if !r.Overlaps(LineRange{Start: 7, End: 9}) {
		t.Fatal("touching ranges overlap")
	}
	if r.Overlaps(LineRange{Start: 8, End: 9}) {
		t.Fatal("disjoint ranges must not overlap")
	}
}

func TestEqual(t *testing.T) {
	a := New("x\ny")
	b := New("x\ny")
	c := New("x\nz")
	if !a.Equal(b) {
		t.Fatal("identical documents should be equal")
	}
	if a.Equal(c) {
		t.Fatal("different documents should not be equal")
	}
}

func TestWordCountAggregates(t *testing.T) {
	d := New("one two\nthree")
	if d.WordCount() != 3 {
		t.Fatalf("WordCount = %d, want 3", d.WordCount())
	}
	m := d.Metrics()
	if m.Lines != 2 || m.Words != 3 {
		t.Fatalf("Metrics = %+v", m)
	}
}
