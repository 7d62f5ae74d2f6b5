package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/manualbot/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML manuals. Headings open sections; table rows become
// one line each with cells separated by " | ".
type HTMLParser struct{}

// blockTags are elements whose presence makes a container more than a paragraph.
var blockTags = map[string]bool{
	"p": true, "div": true, "ul": true, "ol": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "blockquote": true, "section": true, "article": true, "dl": true,
}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findElement(doc, "title"); t != nil {
		if s := textContent(t); s != "" {
			title = s
		}
	}

	b := newSectionBuilder()
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type != html.ElementNode {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		}
		if level := headingLevel(n.Data); level > 0 {
			b.heading(level, textContent(n))
			return
		}
		switch n.Data {
		case "script", "style", "nav", "footer", "header", "noscript", "template":
			return
		case "tr":
			b.paragraph(rowText(n))
			return
		case "p", "li", "blockquote", "pre", "dt", "dd", "figcaption", "caption":
			b.paragraph(textContent(n))
			return
		case "div", "section", "aside":
			if !hasBlockChild(n) {
				b.paragraph(textContent(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findElement(doc, "body"); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return b.tree(title), nil
}

// headingLevel returns 1-6 for h1-h6 and 0 otherwise.
func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent concatenates descendant text with whitespace collapsed.
func textContent(n *html.Node) string {
	var buf strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			buf.WriteString(d.Data)
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

func rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, textContent(c))
		}
	}
	return strings.Join(cells, " | ")
}

func hasBlockChild(n *html.Node) bool {
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && blockTags[d.Data] {
			return true
		}
	}
	return false
}

// findElement returns the first element named tag in document order.
func findElement(n *html.Node, tag string) *html.Node {
	for d := range n.Descendants() {
		if d.Type == html.ElementNode && d.Data == tag {
			return d
		}
	}
	return nil
}
