package parser

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"unicode"

	"github.com/dgallion1/manualbot/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser reads PDF manuals one page at a time so chunks can cite page
// numbers. Running headers and footers repeated across pages are dropped.
// With FallbackPdftotext, poppler's pdftotext is tried when the Go reader
// fails or finds no text (scanned or unusual encodings).
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := extractPDFPages(data)
	if (err != nil || !hasText(pages)) && p.FallbackPdftotext {
		if fb, fbErr := extractPdftotext(data); fbErr == nil && hasText(fb) {
			pages, err = fb, nil
		} else if err == nil {
			err = fbErr
		}
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	tree := &doctree.DocTree{Title: titleFromFilename(filename)}
	for i, page := range stripRunningLines(pages) {
		if page == "" {
			continue
		}
		tree.Children = append(tree.Children, &doctree.DocNode{Text: page, Page: i + 1})
	}
	return tree, nil
}

// minRunningPages is the page count below which header/footer detection is
// skipped.
const minRunningPages = 3

// stripRunningLines trims each page and removes its first and last line when
// that line, with digits ignored, recurs on more than half of the pages.
// This drops "Model X100 Owner's Manual" banners and "Page 7 of 40" footers.
func stripRunningLines(pages []string) []string {
	lines := make([][]string, len(pages))
	counts := make(map[string]int)
	nonEmpty := 0
	for i, p := range pages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		nonEmpty++
		lines[i] = strings.Split(p, "\n")
		first, last := runningKey(lines[i][0]), runningKey(lines[i][len(lines[i])-1])
		counts[first]++
		if last != first {
			counts[last]++
		}
	}

	out := make([]string, len(pages))
	for i, ls := range lines {
		if len(ls) == 0 {
			continue
		}
		if nonEmpty >= minRunningPages {
			running := func(l string) bool { return counts[runningKey(l)]*2 > nonEmpty }
			if len(ls) > 1 && running(ls[len(ls)-1]) {
				ls = ls[:len(ls)-1]
			}
			if len(ls) > 1 && running(ls[0]) {
				ls = ls[1:]
			}
		}
		out[i] = strings.TrimSpace(strings.Join(ls, "\n"))
	}
	return out
}

func runningKey(line string) string {
	return strings.Join(strings.Fields(strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return '#'
		}
		return r
	}, line)), " ")
}

// extractPDFPages returns one string per page, in page order. The reader
// panics on some malformed inputs, so panics surface as errors.
func extractPDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	pages = make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}

// extractPdftotext runs poppler's pdftotext, which separates pages with form feeds.
func extractPdftotext(data []byte) ([]string, error) {
	tmp, err := os.CreateTemp("", "manualbot-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	out, err := exec.Command("pdftotext", "-layout", tmpPath, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	return strings.Split(string(out), "\f"), nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}
