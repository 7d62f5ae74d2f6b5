package parser

import (
	"bufio"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/manualbot/internal/doctree"
)

// maxHeadingRunes bounds how long an ALL-CAPS line may be and still count as a heading.
const maxHeadingRunes = 60

// TextParser handles plain text manuals. Blank lines separate paragraphs.
// A block whose first line is underlined with === or --- opens a section
// (level 1 or 2), as does a lone ALL-CAPS line.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.DocTree, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, err
	}

	b := newSectionBuilder()
	for _, lines := range blocks {
		if len(lines) >= 2 {
			if level := underlineLevel(lines[1]); level > 0 {
				b.heading(level, strings.TrimSpace(lines[0]))
				b.paragraph(strings.Join(lines[2:], "\n"))
				continue
			}
		}
		if len(lines) == 1 && isCapsHeading(lines[0]) {
			b.heading(1, strings.TrimSpace(lines[0]))
			continue
		}
		b.paragraph(strings.Join(lines, "\n"))
	}
	return b.tree(titleFromFilename(filename)), nil
}

// readBlocks groups consecutive non-blank lines.
func readBlocks(r io.Reader) ([][]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks [][]string
	var current []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks, nil
}

func underlineLevel(line string) int {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return 0
	}
	if strings.Trim(line, line[:1]) != "" {
		return 0
	}
	switch line[0] {
	case '=':
		return 1
	case '-':
		return 2
	}
	return 0
}

func isCapsHeading(line string) bool {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > maxHeadingRunes || strings.HasSuffix(line, ".") {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 3
}
