package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	oai "github.com/openai/openai-go"
	"golang.org/x/time/rate"
)

var _ llm.Embedder = (*Embedder)(nil)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbedderConfig configures the embedding adapter.
type EmbedderConfig struct {
	ClientConfig
	Model string
	// Dimensions is the expected vector length. Zero uses the model's native size.
	// It is sent to the API only for text-embedding-3-* models.
	Dimensions int
	// BatchSize caps the inputs per request (default 100).
	BatchSize int
	// RequestsPerSecond limits request rate; zero disables limiting.
	RequestsPerSecond float64
}

// Embedder calls the /embeddings endpoint.
type Embedder struct {
	client     oai.Client
	model      string
	dimensions int
	batchSize  int
	limiter    *rate.Limiter
}

// NewEmbedder creates an embedding adapter.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embedder: API key is required", domain.ErrValidation)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	dims := cfg.Dimensions
	if dims == 0 {
		var ok bool
		if dims, ok = modelDimensions[cfg.Model]; !ok {
			return nil, fmt.Errorf("%w: openai embedder: dimension required for model %q", domain.ErrValidation, cfg.Model)
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Embedder{
		client:     newClient(cfg.ClientConfig, DefaultBaseURL),
		model:      cfg.Model,
		dimensions: dims,
		batchSize:  cfg.BatchSize,
		limiter:    limiter,
	}, nil
}

func (e *Embedder) Dimensions() int   { return e.dimensions }
func (e *Embedder) ModelName() string { return e.model }

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return llm.EmbedOneVia(ctx, e, text)
}

// EmbedMany embeds texts in batches of at most BatchSize, preserving input order.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := oai.EmbeddingNewParams{
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: oai.EmbeddingModel(e.model),
	}
	if strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = oai.Int(int64(e.dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: embeddings: %w", domain.ErrCapability, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings: got %d vectors for %d inputs", domain.ErrCapability, len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("%w: embeddings: index %d out of range", domain.ErrCapability, d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		vecs[d.Index] = v
	}
	if err := llm.CheckDimensions(vecs, e.dimensions); err != nil {
		return nil, err
	}
	return vecs, nil
}
