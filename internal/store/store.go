// Package store defines the parent/child chunk store and helpers shared by
// its backends (postgres with pgvector, sqlite).
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/google/uuid"
)

// ChunkStore persists parent chunks and their embedded children, and answers
// similarity queries with distinct parents.
type ChunkStore interface {
	// EnsureSchema creates tables and indexes if missing. Idempotent.
	EnsureSchema(ctx context.Context) error
	// PutParent inserts a parent, or replaces content and metadata of an existing ID.
	PutParent(ctx context.Context, parent domain.ParentChunk) error
	// PutChildren embeds all children in one call and inserts them in one
	// transaction. Nothing is written if any step fails.
	PutChildren(ctx context.Context, parentID uuid.UUID, children []ChildInput) error
	// Search returns up to k distinct parents ranked by their best child's
	// cosine similarity, ties broken by ascending parent ID.
	Search(ctx context.Context, query []float32, k int) ([]domain.SearchResult, error)
	// DeleteDocument removes every parent with the given name; children cascade.
	DeleteDocument(ctx context.Context, documentName string) error
	ListDocuments(ctx context.Context) ([]DocumentSummary, error)
	Close() error
}

// ChildInput is a child chunk before embedding.
type ChildInput struct {
	Content  string
	Metadata map[string]any
}

// DocumentSummary counts the stored chunks of one document.
type DocumentSummary struct {
	Name        string `json:"document_name"`
	ParentCount int    `json:"parent_chunks"`
	ChildCount  int    `json:"child_chunks"`
}

// ValidateK rejects non-positive result limits.
func ValidateK(k int) error {
	if k <= 0 {
		return domain.Validationf("k must be positive, got %d", k)
	}
	return nil
}

// EmbedChildren embeds the children's content with a single EmbedMany call and
// checks count and dimension.
func EmbedChildren(ctx context.Context, e llm.Embedder, children []ChildInput) ([][]float32, error) {
	texts := make([]string, len(children))
	for i, c := range children {
		texts[i] = c.Content
	}
	vecs, err := e.EmbedMany(ctx, texts)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCapability, "embed children", err)
	}
	if len(vecs) != len(children) {
		return nil, fmt.Errorf("%w: embed children: got %d vectors for %d children", domain.ErrCapability, len(vecs), len(children))
	}
	if err := llm.CheckDimensions(vecs, e.Dimensions()); err != nil {
		return nil, err
	}
	return vecs, nil
}

// CheckQuery verifies the query vector length against the configured dimension.
func CheckQuery(query []float32, dim int) error {
	if len(query) != dim {
		return fmt.Errorf("%w: query has dimension %d, store expects %d", domain.ErrCapability, len(query), dim)
	}
	return nil
}

// MarshalMetadata encodes metadata as a JSON object; nil becomes {}.
func MarshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

// UnmarshalMetadata decodes a JSON object; empty input yields an empty map.
func UnmarshalMetadata(s string) (map[string]any, error) {
	m := map[string]any{}
	if s == "" || s == "null" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// Float32ToBytes encodes a vector as little-endian float32s.
func Float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToFloat32 decodes a little-endian float32 vector. Trailing partial values are ignored.
func BytesToFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// CosineSimilarity returns 1 - cosine distance. Zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
