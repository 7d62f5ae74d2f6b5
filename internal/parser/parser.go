// Package parser extracts text from uploaded documents into a doctree.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/manualbot/internal/doctree"
	"github.com/dgallion1/manualbot/internal/domain"
)

// Parser converts raw document bytes into a DocTree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.DocTree, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
	".txt":      true,
}

// Extractor selects a parser by file extension and flattens its output.
type Extractor struct {
	// FallbackPdftotext shells out to pdftotext when the Go PDF reader fails
	// or finds no text.
	FallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func (e Extractor) ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{FallbackPdftotext: e.FallbackPdftotext}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".txt":
		return &TextParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// Extract parses data and returns its flattened text with page/section spans.
// Unsupported, malformed, or text-free input yields domain.ErrExtraction.
func (e Extractor) Extract(data []byte, filename string) (*doctree.Document, error) {
	p, err := e.ForFile(filename)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtraction, filename, err)
	}
	tree, err := p.Parse(bytes.NewReader(data), filename)
	if err != nil {
		return nil, domain.Wrap(domain.ErrExtraction, filename, err)
	}
	doc := doctree.Flatten(tree)
	if strings.TrimSpace(doc.Text) == "" {
		return nil, domain.Wrap(domain.ErrExtraction, filename, fmt.Errorf("no extractable text"))
	}
	return doc, nil
}

// ExtractText is Extract without provenance.
func (e Extractor) ExtractText(data []byte, filename string) (string, error) {
	doc, err := e.Extract(data, filename)
	if err != nil {
		return "", err
	}
	return doc.Text, nil
}

// Extract uses an Extractor with the pdftotext fallback enabled.
func Extract(data []byte, filename string) (*doctree.Document, error) {
	return Extractor{FallbackPdftotext: true}.Extract(data, filename)
}

// ExtractText uses an Extractor with the pdftotext fallback enabled.
func ExtractText(data []byte, filename string) (string, error) {
	return Extractor{FallbackPdftotext: true}.ExtractText(data, filename)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ExtensionList returns the supported extensions, sorted, for error messages.
func ExtensionList() []string {
	exts := make([]string, 0, len(SupportedExtensions))
	for ext := range SupportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// titleFromFilename strips directories and the extension.
func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
