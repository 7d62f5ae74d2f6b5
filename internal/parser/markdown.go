package parser

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/dgallion1/manualbot/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown manuals using goldmark with GFM tables.
// Ordered list items keep their step numbers; table rows become
// " | "-separated lines.
type MarkdownParser struct{}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := markdown.Parser().Parse(text.NewReader(src))
	b := newSectionBuilder()

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch n := n.(type) {
		case *ast.Heading:
			b.heading(n.Level, extractText(n, src))
		case *ast.List:
			step := n.Start
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				t := extractText(item, src)
				if n.IsOrdered() && t != "" {
					t = strconv.Itoa(step) + ". " + t
				}
				step++
				b.paragraph(t)
			}
		case *east.Table:
			for row := n.FirstChild(); row != nil; row = row.NextSibling() {
				var cells []string
				for c := row.FirstChild(); c != nil; c = c.NextSibling() {
					cells = append(cells, extractText(c, src))
				}
				b.paragraph(strings.Join(cells, " | "))
			}
		case *ast.ThematicBreak:
			// Horizontal rules carry no text.
		default:
			b.paragraph(extractText(n, src))
		}
	}

	return b.tree(titleFromFilename(filename)), nil
}

// extractText renders a node's text without markup. Block children are
// separated by newlines.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer

	// Literal blocks carry their content as raw lines, not inline children.
	switch n.Kind() {
	case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock:
		lines := n.Lines()
		for i := range lines.Len() {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			buf.Write(c.Segment.Value(src))
			if c.HardLineBreak() || c.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(c.Value)
		default:
			t := extractText(c, src)
			if t == "" {
				continue
			}
			if c.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(t)
		}
	}
	return strings.TrimSpace(buf.String())
}
