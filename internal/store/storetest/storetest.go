// Package storetest holds a conformance suite run against every
// store.ChunkStore backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dim is the embedding dimension used by the suite.
const Dim = 4

// Embedder returns fixed vectors for known texts and an axis-aligned unit
// vector (chosen by text length) for anything else.
type Embedder struct {
	Vectors map[string][]float32
	// FailOn makes EmbedMany fail when any input equals it.
	FailOn string
}

var _ llm.Embedder = (*Embedder)(nil)

func (e *Embedder) Dimensions() int   { return Dim }
func (e *Embedder) ModelName() string { return "storetest" }

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOneVia(ctx, e, text)
}

func (e *Embedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.FailOn != "" && t == e.FailOn {
			return nil, fmt.Errorf("%w: embedding backend unavailable", domain.ErrCapability)
		}
		if v, ok := e.Vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, Dim)
		v[len(t)%Dim] = 1
		out[i] = v
	}
	return out, nil
}

// Opener returns a fresh, empty store with its schema ensured.
type Opener func(t *testing.T, e llm.Embedder) store.ChunkStore

var (
	idA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	idB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	idC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func vectors() map[string][]float32 {
	return map[string][]float32{
		"a1":    {1, 0, 0, 0},
		"a2":    {0.9, 0.1, 0, 0},
		"b1":    {0, 1, 0, 0},
		"c1":    {0, 0, 1, 0},
		"tie-1": {0, 0, 0, 1},
		"tie-2": {0, 0, 0, 1},
	}
}

func parent(id uuid.UUID, doc, content string) domain.ParentChunk {
	page := 3
	section := "Maintenance"
	return domain.ParentChunk{
		ID:           id,
		DocumentName: doc,
		Content:      content,
		PageNumber:   &page,
		SectionTitle: &section,
		Metadata:     map[string]any{"chunk_index": 0},
	}
}

func seed(t *testing.T, ctx context.Context, s store.ChunkStore) {
	t.Helper()
	require.NoError(t, s.PutParent(ctx, parent(idA, "manual-a.pdf", "parent A")))
	require.NoError(t, s.PutChildren(ctx, idA, []store.ChildInput{
		{Content: "a1", Metadata: map[string]any{"child_index": 0}},
		{Content: "a2", Metadata: map[string]any{"child_index": 1}},
	}))
	require.NoError(t, s.PutParent(ctx, parent(idB, "manual-b.pdf", "parent B")))
	require.NoError(t, s.PutChildren(ctx, idB, []store.ChildInput{{Content: "b1"}}))
	require.NoError(t, s.PutParent(ctx, parent(idC, "manual-b.pdf", "parent C")))
	require.NoError(t, s.PutChildren(ctx, idC, []store.ChildInput{{Content: "c1"}}))
}

// Run executes the conformance suite.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()

	t.Run("EmptyStoreSearch", func(t *testing.T) {
		s := open(t, &Embedder{})
		res, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("EnsureSchemaIdempotent", func(t *testing.T) {
		s := open(t, &Embedder{})
		require.NoError(t, s.EnsureSchema(ctx))
		require.NoError(t, s.EnsureSchema(ctx))
	})

	t.Run("InvalidK", func(t *testing.T) {
		s := open(t, &Embedder{})
		_, err := s.Search(ctx, []float32{1, 0, 0, 0}, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("QueryDimensionMismatch", func(t *testing.T) {
		s := open(t, &Embedder{})
		_, err := s.Search(ctx, []float32{1, 0}, 3)
		assert.ErrorIs(t, err, domain.ErrCapability)
	})

	t.Run("DistinctParentsRanked", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		seed(t, ctx, s)

		res, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 3)

		seen := map[uuid.UUID]bool{}
		for i, r := range res {
			assert.False(t, seen[r.Parent.ID], "parent %s returned twice", r.Parent.ID)
			seen[r.Parent.ID] = true
			if i > 0 {
				assert.GreaterOrEqual(t, res[i-1].Similarity, r.Similarity)
			}
		}
		assert.Equal(t, idA, res[0].Parent.ID)
		assert.InDelta(t, 1.0, res[0].Similarity, 1e-6)
		assert.Equal(t, "parent A", res[0].Parent.Content)
		assert.Equal(t, "manual-a.pdf", res[0].Parent.DocumentName)
		require.NotNil(t, res[0].Parent.PageNumber)
		assert.Equal(t, 3, *res[0].Parent.PageNumber)
		require.NotNil(t, res[0].Parent.SectionTitle)
		assert.Equal(t, "Maintenance", *res[0].Parent.SectionTitle)
		assert.EqualValues(t, 0, res[0].Parent.Metadata["chunk_index"])

		// B and C are orthogonal to the query: similarity 0, ordered by ID.
		assert.Equal(t, idB, res[1].Parent.ID)
		assert.Equal(t, idC, res[2].Parent.ID)
		assert.InDelta(t, 0.0, res[1].Similarity, 1e-6)
	})

	t.Run("LowSimilarityStillReturnsK", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		seed(t, ctx, s)

		res, err := s.Search(ctx, []float32{0, 0, 0, 1}, 2)
		require.NoError(t, err)
		assert.Len(t, res, 2)
	})

	t.Run("TiesBrokenByParentID", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		require.NoError(t, s.PutParent(ctx, parent(idB, "tie.md", "second")))
		require.NoError(t, s.PutChildren(ctx, idB, []store.ChildInput{{Content: "tie-2"}}))
		require.NoError(t, s.PutParent(ctx, parent(idA, "tie.md", "first")))
		require.NoError(t, s.PutChildren(ctx, idA, []store.ChildInput{{Content: "tie-1"}}))

		res, err := s.Search(ctx, []float32{0, 0, 0, 1}, 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, idA, res[0].Parent.ID)
		assert.Equal(t, idB, res[1].Parent.ID)
	})

	t.Run("UpsertParent", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		require.NoError(t, s.PutParent(ctx, parent(idA, "doc.md", "old")))
		require.NoError(t, s.PutChildren(ctx, idA, []store.ChildInput{{Content: "a1"}}))

		updated := parent(idA, "doc.md", "new")
		updated.Metadata = map[string]any{"chunk_index": 7}
		require.NoError(t, s.PutParent(ctx, updated))

		res, err := s.Search(ctx, []float32{1, 0, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "new", res[0].Parent.Content)
		assert.EqualValues(t, 7, res[0].Parent.Metadata["chunk_index"])
	})

	t.Run("PutChildrenEmptyIsNoop", func(t *testing.T) {
		s := open(t, &Embedder{})
		require.NoError(t, s.PutParent(ctx, parent(idA, "doc.md", "p")))
		require.NoError(t, s.PutChildren(ctx, idA, nil))
	})

	t.Run("PutChildrenEmbedFailureWritesNothing", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors(), FailOn: "boom"})
		require.NoError(t, s.PutParent(ctx, parent(idA, "doc.md", "p")))
		err := s.PutChildren(ctx, idA, []store.ChildInput{{Content: "a1"}, {Content: "boom"}})
		assert.ErrorIs(t, err, domain.ErrCapability)

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 0, docs[0].ChildCount)
	})

	t.Run("PutChildrenUnknownParent", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		err := s.PutChildren(ctx, uuid.New(), []store.ChildInput{{Content: "a1"}})
		assert.ErrorIs(t, err, domain.ErrStore)
	})

	t.Run("DeleteDocument", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		seed(t, ctx, s)

		require.NoError(t, s.DeleteDocument(ctx, "manual-b.pdf"))
		require.NoError(t, s.DeleteDocument(ctx, "manual-b.pdf"))
		require.NoError(t, s.DeleteDocument(ctx, "never-ingested.pdf"))

		res, err := s.Search(ctx, []float32{0, 1, 0, 0}, 5)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, idA, res[0].Parent.ID)

		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []store.DocumentSummary{{Name: "manual-a.pdf", ParentCount: 1, ChildCount: 2}}, docs)
	})

	t.Run("ListDocuments", func(t *testing.T) {
		s := open(t, &Embedder{Vectors: vectors()})
		docs, err := s.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)

		seed(t, ctx, s)
		docs, err = s.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, []store.DocumentSummary{
			{Name: "manual-a.pdf", ParentCount: 1, ChildCount: 2},
			{Name: "manual-b.pdf", ParentCount: 2, ChildCount: 2},
		}, docs)
	})
}

// RunUninitialized checks that a store missing its dependencies refuses every operation.
func RunUninitialized(t *testing.T, s store.ChunkStore) {
	ctx := context.Background()
	check := func(err error) {
		t.Helper()
		assert.True(t, errors.Is(err, domain.ErrNotInitialized), "expected ErrNotInitialized, got %v", err)
	}
	check(s.EnsureSchema(ctx))
	check(s.PutParent(ctx, parent(idA, "doc", "p")))
	check(s.PutChildren(ctx, idA, []store.ChildInput{{Content: "a"}}))
	_, err := s.Search(ctx, make([]float32, Dim), 1)
	check(err)
	check(s.DeleteDocument(ctx, "doc"))
	_, err = s.ListDocuments(ctx)
	check(err)
	assert.NoError(t, s.Close())
}
