package doctree

import "testing"

func TestFlatten_HeadingsAndSpans(t *testing.T) {
	tree := &DocTree{
		Title: "Manual",
		Children: []*DocNode{
			{Title: "Safety", Text: "Unplug first.", Page: 1, Children: []*DocNode{
				{Title: "Gloves", Text: "Wear gloves."},
			}},
			{Title: "Maintenance", Text: "  Clean monthly.  ", Page: 2},
		},
	}
	doc := Flatten(tree)

	want := "Safety\n\nUnplug first.\n\nGloves\n\nWear gloves.\n\nMaintenance\n\nClean monthly."
	if doc.Text != want {
		t.Fatalf("Text = %q, want %q", doc.Text, want)
	}
	if len(doc.Spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(doc.Spans))
	}
	if doc.Spans[1].Page != 1 || doc.Spans[1].Section != "Gloves" {
		t.Errorf("child span should inherit page 1 and use its own title, got %+v", doc.Spans[1])
	}
	for _, s := range doc.Spans {
		if s.Start < 0 || s.End > len(doc.Text) || s.Start >= s.End {
			t.Errorf("bad span bounds %+v", s)
		}
	}
	if doc.Pages() != 2 {
		t.Errorf("Pages() = %d, want 2", doc.Pages())
	}
}

func TestLocate(t *testing.T) {
	doc := Flatten(&DocTree{Children: []*DocNode{
		{Text: "page one text", Page: 1},
		{Text: "page two text", Page: 2},
		{Title: "Appendix", Text: "tables", Page: 3},
	}})

	tests := []struct {
		offset      int
		wantPage    int
		wantSection string
	}{
		{0, 1, ""},
		{5, 1, ""},
		{len("page one text") + 1, 1, ""}, // inside separator
		{len("page one text\n\n"), 2, ""},
		{len(doc.Text) - 1, 3, "Appendix"},
		{len(doc.Text) + 10, 3, "Appendix"},
	}
	for _, tt := range tests {
		page, section := doc.Locate(tt.offset)
		if page != tt.wantPage || section != tt.wantSection {
			t.Errorf("Locate(%d) = (%d, %q), want (%d, %q)", tt.offset, page, section, tt.wantPage, tt.wantSection)
		}
	}
}

func TestFlatten_Empty(t *testing.T) {
	doc := Flatten(&DocTree{Title: "blank", Children: []*DocNode{{Text: "   "}}})
	if doc.Text != "" || len(doc.Spans) != 0 {
		t.Errorf("expected empty document, got %+v", doc)
	}
	if page, section := doc.Locate(0); page != 0 || section != "" {
		t.Errorf("Locate on empty document = (%d, %q)", page, section)
	}
	if Flatten(nil).Text != "" {
		t.Error("Flatten(nil) should be empty")
	}
}
