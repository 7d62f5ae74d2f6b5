// Package hashembed is a dependency-free embedder based on feature hashing.
// It needs no network access, which makes it the default for tests and
// offline use. Similar texts share tokens and trigrams and so score higher.
package hashembed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/dgallion1/manualbot/internal/domain"
)

// ModelName identifies vectors produced by this embedder.
const ModelName = "hash-v1"

// Embedder hashes word unigrams and character trigrams into a fixed number of buckets.
type Embedder struct {
	dim int
}

// New returns an Embedder producing vectors of length dim.
func New(dim int) (*Embedder, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: hash embedder dimension must be positive, got %d", domain.ErrValidation, dim)
	}
	return &Embedder{dim: dim}, nil
}

func (e *Embedder) Dimensions() int   { return e.dim }
func (e *Embedder) ModelName() string { return ModelName }

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float64, e.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		e.add(vec, "w:"+w, 1)
		padded := []rune("^" + w + "$")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(vec, "t:"+string(padded[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	out := make([]float32, e.dim)
	if norm == 0 {
		// Cosine distance is undefined for the zero vector.
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range vec {
		out[i] = float32(x / norm)
	}
	return out
}

// add applies the signed hashing trick: the bucket comes from the low bits,
// the sign from the top bit.
func (e *Embedder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := int(h % uint64(e.dim))
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}
