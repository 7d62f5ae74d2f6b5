// Package rag retrieves ranked parent chunks for a query and streams a
// grounded, cited answer from a generator.
package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/store"
)

// ContextSeparator joins parent contents in the assembled context.
const ContextSeparator = "\n\n---\n\n"

// Retriever embeds a query and looks up the best distinct parents.
type Retriever struct {
	embedder llm.Embedder
	store    store.ChunkStore
	log      *slog.Logger
}

func NewRetriever(embedder llm.Embedder, st store.ChunkStore, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{embedder: embedder, store: st, log: log.With("component", "retriever")}
}

// Retrieval is the ranked result of one query.
type Retrieval struct {
	Results []domain.SearchResult
}

// Empty reports that nothing relevant was found.
func (r *Retrieval) Empty() bool {
	return r == nil || len(r.Results) == 0
}

// Context renders the results in rank order, each prefixed with its section title.
func (r *Retrieval) Context() string {
	if r.Empty() {
		return ""
	}
	parts := make([]string, len(r.Results))
	for i, res := range r.Results {
		text := res.Parent.Content
		if t := res.Parent.SectionTitle; t != nil && *t != "" {
			text = "[" + *t + "]\n" + text
		}
		parts[i] = text
	}
	return strings.Join(parts, ContextSeparator)
}

// Citations returns one citation per result, in rank order. Never nil.
func (r *Retrieval) Citations() []domain.Citation {
	if r.Empty() {
		return []domain.Citation{}
	}
	out := make([]domain.Citation, len(r.Results))
	for i, res := range r.Results {
		out[i] = res.Citation()
	}
	return out
}

// Retrieve returns up to k parents for query. An empty Retrieval is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) (*Retrieval, error) {
	if r.embedder == nil || r.store == nil {
		return nil, domain.ErrNotInitialized
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.Validationf("query is empty")
	}
	if err := store.ValidateK(k); err != nil {
		return nil, err
	}

	start := time.Now()
	vec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCapability, "embed query", err)
	}
	results, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	r.log.Debug("retrieved", "k", k, "results", len(results), "duration_ms", time.Since(start).Milliseconds())
	return &Retrieval{Results: results}, nil
}
