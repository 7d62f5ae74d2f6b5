// Package doctree holds the structured form of a parsed document and its
// flattened text, with spans that map text offsets back to pages and sections.
package doctree

import (
	"sort"
	"strings"
)

// DocTree is the root of a parsed document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for untitled text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A, inherited from the nearest ancestor)
	Children []*DocNode // Subsections
}

// Span maps the byte range [Start, End) of Document.Text to its source location.
type Span struct {
	Start   int
	End     int
	Page    int
	Section string
}

// Document is the flattened text of a DocTree.
type Document struct {
	Title string
	Text  string
	Spans []Span
}

// BlockSeparator joins consecutive blocks in the flattened text.
const BlockSeparator = "\n\n"

// Flatten renders the tree depth-first. Each titled node contributes its heading
// as its own paragraph ahead of its text.
func Flatten(tree *DocTree) *Document {
	doc := &Document{}
	if tree == nil {
		return doc
	}
	doc.Title = tree.Title

	var b strings.Builder
	var walk func(nodes []*DocNode, section string, page int)
	walk = func(nodes []*DocNode, section string, page int) {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			title := strings.TrimSpace(n.Title)
			if title != "" {
				section = title
			}
			if n.Page > 0 {
				page = n.Page
			}

			block := strings.TrimSpace(n.Text)
			if title != "" {
				if block != "" {
					block = title + BlockSeparator + block
				} else {
					block = title
				}
			}
			if block != "" {
				if b.Len() > 0 {
					b.WriteString(BlockSeparator)
				}
				start := b.Len()
				b.WriteString(block)
				doc.Spans = append(doc.Spans, Span{Start: start, End: b.Len(), Page: page, Section: section})
			}
			walk(n.Children, section, page)
		}
	}
	walk(tree.Children, "", 0)

	doc.Text = b.String()
	return doc
}

// Locate returns the page and section covering a byte offset in Text.
// Offsets between blocks resolve to the preceding block. Zero values mean unknown.
func (d *Document) Locate(offset int) (page int, section string) {
	if d == nil || len(d.Spans) == 0 {
		return 0, ""
	}
	i := sort.Search(len(d.Spans), func(i int) bool { return d.Spans[i].Start > offset })
	if i == 0 {
		i = 1
	}
	s := d.Spans[i-1]
	return s.Page, s.Section
}

// Pages reports the highest page number seen, or 0 when the source has no pages.
func (d *Document) Pages() int {
	last := 0
	for _, s := range d.Spans {
		if s.Page > last {
			last = s.Page
		}
	}
	return last
}
