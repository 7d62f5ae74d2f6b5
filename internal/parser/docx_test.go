package parser

import (
	"testing"

	"github.com/fumiama/go-docx"
)

func docxPara(style string, children ...any) *docx.Paragraph {
	p := &docx.Paragraph{Children: children}
	if style != "" {
		p.Properties = &docx.ParagraphProperties{Style: &docx.Style{Val: style}}
	}
	return p
}

func docxRun(parts ...any) *docx.Run {
	return &docx.Run{Children: parts}
}

func TestDocxHeadingLevel(t *testing.T) {
	tests := map[string]int{
		"":          0,
		"Normal":    0,
		"Title":     1,
		"Heading1":  1,
		"heading 3": 3,
		"Heading 9": 9,
		"Heading10": 0,
		"HeadingX":  0,
	}
	for style, want := range tests {
		if got := docxHeadingLevel(docxPara(style)); got != want {
			t.Errorf("docxHeadingLevel(%q) = %d, want %d", style, got, want)
		}
	}
}

func TestDocxParagraphText(t *testing.T) {
	p := docxPara("",
		docxRun(&docx.Text{Text: "Press "}, &docx.Text{Text: "RESET"}),
		&docx.Hyperlink{Run: *docxRun(&docx.Text{Text: " (see support)"})},
		docxRun(&docx.Tab{}, &docx.Text{Text: "then"}, &docx.BarterRabbet{}, &docx.Text{Text: "wait."}),
	)
	want := "Press RESET (see support) then\nwait."
	if got := docxParagraphText(p); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDocxTableRows(t *testing.T) {
	cell := func(text string) *docx.WTableCell {
		return &docx.WTableCell{Paragraphs: []*docx.Paragraph{docxPara("", docxRun(&docx.Text{Text: text}))}}
	}
	tbl := &docx.Table{TableRows: []*docx.WTableRow{
		{TableCells: []*docx.WTableCell{cell("Code"), cell("Meaning")}},
		{TableCells: []*docx.WTableCell{cell("E1"), cell("Door open")}},
		{TableCells: []*docx.WTableCell{cell(""), cell("")}},
	}}
	rows := docxTableRows(tbl)
	want := []string{"Code | Meaning", "E1 | Door open"}
	if len(rows) != len(want) {
		t.Fatalf("rows = %q, want %q", rows, want)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, rows[i], want[i])
		}
	}
}
