package domain

import "github.com/google/uuid"

// ParentChunk is a coarse span of a document that is handed to the generator as context.
type ParentChunk struct {
	ID           uuid.UUID      `json:"id"`
	DocumentName string         `json:"document_name"`
	Content      string         `json:"content"`
	PageNumber   *int           `json:"page_number"`
	SectionTitle *string        `json:"section_title"`
	Metadata     map[string]any `json:"metadata"`
}

// ChildChunk is a fine span of a parent. Only child chunks are embedded and searched.
type ChildChunk struct {
	ID        uuid.UUID      `json:"id"`
	ParentID  uuid.UUID      `json:"parent_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata"`
}

// SearchResult is one distinct parent together with the similarity of its best child.
type SearchResult struct {
	Parent     ParentChunk `json:"parent"`
	Similarity float64     `json:"similarity"`
}

// Citation is the provenance attached to a generated answer.
type Citation struct {
	DocumentName string  `json:"document_name"`
	PageNumber   *int    `json:"page_number"`
	SectionTitle *string `json:"section_title"`
	Similarity   float64 `json:"similarity"`
}

// Citation returns the provenance of r.
func (r SearchResult) Citation() Citation {
	return Citation{
		DocumentName: r.Parent.DocumentName,
		PageNumber:   r.Parent.PageNumber,
		SectionTitle: r.Parent.SectionTitle,
		Similarity:   r.Similarity,
	}
}
