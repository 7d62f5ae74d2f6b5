package parser

import (
	"strings"
	"testing"

	"github.com/dgallion1/manualbot/internal/doctree"
)

func parseMarkdown(t *testing.T, input, filename string) *doctree.DocTree {
	t.Helper()
	tree, err := (&MarkdownParser{}).Parse(strings.NewReader(input), filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func TestMarkdownParser_SectionNesting(t *testing.T) {
	input := `# Dishwasher DW-40

Read all instructions before use.

## Installation

Level the unit.

### Water supply

Use a 3/4" hose.

## Cleaning

Remove the spray arm.
`
	tree := parseMarkdown(t, input, "dw40.md")
	if tree.Title != "dw40" {
		t.Errorf("title = %q, want %q", tree.Title, "dw40")
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected 1 top-level section, got %d", len(tree.Children))
	}

	top := tree.Children[0]
	if top.Title != "Dishwasher DW-40" || top.Text != "Read all instructions before use." {
		t.Errorf("unexpected top section %+v", top)
	}
	if len(top.Children) != 2 {
		t.Fatalf("expected 2 subsections, got %d", len(top.Children))
	}
	install, cleaning := top.Children[0], top.Children[1]
	if install.Title != "Installation" || install.Text != "Level the unit." {
		t.Errorf("unexpected subsection %+v", install)
	}
	if len(install.Children) != 1 || install.Children[0].Title != "Water supply" {
		t.Fatalf("expected Water supply under Installation, got %+v", install.Children)
	}
	if cleaning.Title != "Cleaning" || len(cleaning.Children) != 0 {
		t.Errorf("unexpected subsection %+v", cleaning)
	}

	doc := doctree.Flatten(tree)
	if _, section := doc.Locate(strings.Index(doc.Text, "3/4")); section != "Water supply" {
		t.Errorf("Locate(hose) section = %q", section)
	}
}

func TestMarkdownParser_Blocks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string // text of the single untitled node
	}{
		{
			name:  "paragraphs without headings",
			input: "Unplug the unit.\n\nWait ten minutes.",
			want:  "Unplug the unit.\n\nWait ten minutes.",
		},
		{
			name:  "inline markup",
			input: "Use **only** the `M4` screws and see [the guide](http://x).\n",
			want:  "Use only the M4 screws and see the guide.",
		},
		{
			name:  "ordered list keeps step numbers",
			input: "3. Open the lid.\n4. Lift the filter.\n",
			want:  "3. Open the lid.\n\n4. Lift the filter.",
		},
		{
			name:  "bullet list",
			input: "- Gloves\n- Goggles\n",
			want:  "Gloves\n\nGoggles",
		},
		{
			name:  "table rows",
			input: "| Code | Meaning |\n|------|---------|\n| E1 | Door open |\n| E2 | No water |\n",
			want:  "Code | Meaning\n\nE1 | Door open\n\nE2 | No water",
		},
		{
			name:  "fenced code and rule",
			input: "Run:\n\n```\nreset --all\n```\n\n---\n\nDone.",
			want:  "Run:\n\nreset --all\n\nDone.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := parseMarkdown(t, tt.input, "x.md")
			if len(tree.Children) != 1 {
				t.Fatalf("expected 1 node, got %d: %+v", len(tree.Children), tree.Children)
			}
			if n := tree.Children[0]; n.Title != "" || n.Text != tt.want {
				t.Errorf("node = {%q, %q}, want untitled %q", n.Title, n.Text, tt.want)
			}
		})
	}
}

func TestMarkdownParser_PreambleBeforeFirstHeading(t *testing.T) {
	tree := parseMarkdown(t, "Read this first.\n\n# Setup\n\nPlug in the unit.\n", "quick.md")
	if len(tree.Children) != 2 {
		t.Fatalf("expected preamble node plus 1 section, got %d", len(tree.Children))
	}
	if tree.Children[0].Title != "" || tree.Children[0].Text != "Read this first." {
		t.Errorf("unexpected preamble node: %+v", tree.Children[0])
	}
	if tree.Children[1].Title != "Setup" || tree.Children[1].Text != "Plug in the unit." {
		t.Errorf("unexpected section %+v", tree.Children[1])
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	tree := parseMarkdown(t, "", "empty.markdown")
	if len(tree.Children) != 0 {
		t.Errorf("expected 0 children for empty input, got %d", len(tree.Children))
	}
	if tree.Title != "empty" {
		t.Errorf("title = %q, want %q", tree.Title, "empty")
	}
}
