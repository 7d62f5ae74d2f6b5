// Package llm defines the embedding and generation capabilities the
// retrieval engine depends on, plus shared retry and latency helpers
// for provider adapters.
package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/dgallion1/manualbot/internal/domain"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedMany returns one vector per input, in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// Generator streams a model response as text fragments. Iteration stops at
// the first error; breaking out of the loop cancels the upstream request.
type Generator interface {
	Stream(ctx context.Context, conversation []Message) iter.Seq2[string, error]
	ModelName() string
}

// CheckDimensions verifies that every vector has the expected length.
func CheckDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d", domain.ErrCapability, i, len(v), want)
		}
	}
	return nil
}

// EmbedOneVia implements EmbedOne in terms of EmbedMany.
func EmbedOneVia(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrCapability, len(vecs))
	}
	return vecs[0], nil
}
