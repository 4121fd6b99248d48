// Package source loads input documents for cleaning. Plain text and
// markdown are read directly; PDFs are paired with their OCR text
// sidecar, with the PDF itself contributing the page count.
package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Kind is the input file kind.
type Kind string

const (
	KindText     Kind = "text"
	KindMarkdown Kind = "markdown"
	KindPDF      Kind = "pdf"
)

// Input is a loaded document ready for a cleaning run.
type Input struct {
	DocumentID string
	Path       string
	Title      string
	Kind       Kind
	Text       string

	// PDFPages is the page count of the source PDF, zero otherwise.
	PDFPages int
}

// Load reads the document at path. For PDFs the text comes from the
// OCR sidecar (same name, .txt extension) and the PDF supplies the
// page count.
func Load(path string, logger *slog.Logger) (*Input, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input not found: %s", path)
	}

	in := &Input{
		DocumentID: uuid.NewString(),
		Path:       path,
		Title:      deriveTitle(path),
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		in.Kind = KindText
	case ".md", ".markdown":
		in.Kind = KindMarkdown
	case ".pdf":
		in.Kind = KindPDF
	default:
		return nil, fmt.Errorf("unsupported input type %q (want .txt, .md, or .pdf)", filepath.Ext(path))
	}

	if in.Kind == KindPDF {
		sidecar := sidecarPath(path)
		data, err := os.ReadFile(sidecar)
		if err != nil {
			return nil, fmt.Errorf("PDF input needs an OCR text sidecar at %s: %w", sidecar, err)
		}
		in.Text = normalizeNewlines(string(data))

		pages, err := pdfPageCount(path)
		if err != nil {
			return nil, err
		}
		in.PDFPages = pages

		logger.Info("loaded PDF input",
			"path", path, "pages", pages, "sidecar", filepath.Base(sidecar))
		return in, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	in.Text = normalizeNewlines(string(data))

	logger.Info("loaded text input", "path", path, "bytes", len(data))
	return in, nil
}

// Discover finds eligible input files directly under dir, sorted with
// numeric suffixes in natural order. PDFs without an OCR sidecar are
// skipped.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md", ".markdown":
			paths = append(paths, path)
		case ".pdf":
			if _, err := os.Stat(sidecarPath(path)); err == nil {
				paths = append(paths, path)
			}
		}
	}

	// A PDF and its sidecar are one document, not two.
	paths = dropSidecars(paths)
	return sortByNumericSuffix(paths), nil
}

// dropSidecars removes .txt files that serve as OCR sidecars for a PDF
// in the same set.
func dropSidecars(paths []string) []string {
	pdfs := make(map[string]bool)
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".pdf") {
			pdfs[strings.TrimSuffix(p, filepath.Ext(p))] = true
		}
	}

	out := paths[:0]
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".txt" && pdfs[strings.TrimSuffix(p, filepath.Ext(p))] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func pdfPageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("read PDF page count: %w", err)
	}
	return count, nil
}

func sidecarPath(pdfPath string) string {
	return strings.TrimSuffix(pdfPath, filepath.Ext(pdfPath)) + ".txt"
}

// deriveTitle turns a filename into a display title, dropping the
// extension and any numeric part suffix.
func deriveTitle(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return partSuffixRe.ReplaceAllString(name, "")
}

var (
	partSuffixRe    = regexp.MustCompile(`-\d+$`)
	numericSuffixRe = regexp.MustCompile(`-(\d+)\.[^.]+$`)
)

// sortByNumericSuffix orders paths so book-2 sorts before book-10.
func sortByNumericSuffix(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.Slice(sorted, func(i, j int) bool {
		mi := numericSuffixRe.FindStringSubmatch(sorted[i])
		mj := numericSuffixRe.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			if ni != nj {
				return ni < nj
			}
			return sorted[i] < sorted[j]
		}
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// CleanedPath is the default output path for an input file.
func CleanedPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".cleaned.txt"
}

// WriteCleaned writes the cleaned text to path, ending with a newline.
func WriteCleaned(path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write cleaned output: %w", err)
	}
	return nil
}
