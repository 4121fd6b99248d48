package source

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadText(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "riverbook-1.txt", "line one\r\nline two\rline three")

	in, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if in.Kind != KindText {
		t.Errorf("kind = %q", in.Kind)
	}
	if in.Text != "line one\nline two\nline three" {
		t.Errorf("text = %q", in.Text)
	}
	if in.Title != "riverbook" {
		t.Errorf("title = %q", in.Title)
	}
	if in.DocumentID == "" {
		t.Error("no document id assigned")
	}
}

func TestLoadMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.md", "# Title\n\nBody")

	in, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if in.Kind != KindMarkdown {
		t.Errorf("kind = %q", in.Kind)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.txt"), nil); err == nil {
		t.Error("missing file should error")
	}

	path := writeFile(t, dir, "image.png", "not text")
	if _, err := Load(path, nil); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("unsupported type err = %v", err)
	}

	// A PDF without its OCR sidecar is unusable.
	pdf := writeFile(t, dir, "scan.pdf", "%PDF-1.4 stub")
	if _, err := Load(pdf, nil); err == nil {
		t.Error("pdf without sidecar should error")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "book-10.txt", "x")
	writeFile(t, dir, "book-2.txt", "x")
	writeFile(t, dir, "alpha.md", "x")
	writeFile(t, dir, "scan.pdf", "%PDF stub")
	writeFile(t, dir, "scan.txt", "ocr text sidecar")
	writeFile(t, dir, "orphan.pdf", "%PDF stub without sidecar")
	writeFile(t, dir, "ignore.png", "x")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := Discover(dir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	// orphan.pdf has no sidecar, scan.txt is scan.pdf's sidecar, and
	// numeric suffixes sort naturally.
	want := []string{"alpha.md", "scan.pdf", "book-2.txt", "book-10.txt"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("discovered = %v, want %v", names, want)
	}
}

func TestSortByNumericSuffix(t *testing.T) {
	in := []string{"b-10.txt", "b-2.txt", "plain.txt", "b-1.txt"}
	got := sortByNumericSuffix(in)
	want := []string{"plain.txt", "b-1.txt", "b-2.txt", "b-10.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted = %v, want %v", got, want)
	}
	// Input slice untouched.
	if in[0] != "b-10.txt" {
		t.Error("input slice mutated")
	}
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/in/riverbook.txt", "riverbook"},
		{"/in/riverbook-3.pdf", "riverbook"},
		{"notes.md", "notes"},
	}
	for _, tt := range tests {
		if got := deriveTitle(tt.path); got != tt.want {
			t.Errorf("deriveTitle(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestWriteCleaned(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "book.cleaned.txt")

	if err := WriteCleaned(out, "cleaned body"); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "cleaned body\n" {
		t.Errorf("written = %q", string(data))
	}
}

func TestCleanedPath(t *testing.T) {
	if got := CleanedPath("/in/book.txt"); got != "/in/book.cleaned.txt" {
		t.Errorf("cleaned path = %q", got)
	}
	if got := CleanedPath("/in/scan.pdf"); got != "/in/scan.cleaned.txt" {
		t.Errorf("cleaned path = %q", got)
	}
}
