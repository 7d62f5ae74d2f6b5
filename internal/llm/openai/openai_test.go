package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, dim int, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"), r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*calls++

		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		// Return in reverse order to exercise index-based placement.
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(len(req.Input[i]))
			data[len(req.Input)-1-i] = item{Object: "embedding", Index: i, Embedding: vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedder_BatchesAndOrders(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, 8, &calls)
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{
		ClientConfig: ClientConfig{APIKey: "k", BaseURL: srv.URL},
		Model:        "nomic-embed-text",
		Dimensions:   8,
		BatchSize:    2,
	})
	require.NoError(t, err)

	vecs, err := e.EmbedMany(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	assert.Equal(t, 3, calls)
	for i, v := range vecs {
		assert.Len(t, v, 8)
		assert.Equal(t, float32(i+1), v[0])
	}

	one, err := e.EmbedOne(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, float32(3), one[0])
	assert.Equal(t, 8, e.Dimensions())
	assert.Equal(t, "nomic-embed-text", e.ModelName())
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	calls := 0
	srv := embeddingServer(t, 4, &calls)
	defer srv.Close()

	e, err := NewEmbedder(EmbedderConfig{
		ClientConfig: ClientConfig{APIKey: "k", BaseURL: srv.URL},
		Model:        "custom",
		Dimensions:   8,
	})
	require.NoError(t, err)

	_, err = e.EmbedMany(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrCapability)
}

func TestNewEmbedder_Validation(t *testing.T) {
	_, err := NewEmbedder(EmbedderConfig{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = NewEmbedder(EmbedderConfig{ClientConfig: ClientConfig{APIKey: "k"}, Model: "unknown-model"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	e, err := NewEmbedder(EmbedderConfig{ClientConfig: ClientConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, 1536, e.Dimensions())
}

func chatServer(t *testing.T, fragments []string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range fragments {
			chunk := map[string]any{
				"id":      "c1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "m",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": f}}},
			}
			b, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestGenerator_Stream(t *testing.T) {
	srv := chatServer(t, []string{"Hel", "", "lo"}, http.StatusOK)
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{ClientConfig: ClientConfig{APIKey: "k", BaseURL: srv.URL}, Model: "m"})
	require.NoError(t, err)

	var got []string
	for frag, err := range g.Stream(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hi"},
	}) {
		require.NoError(t, err)
		got = append(got, frag)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
}

func TestGenerator_StreamError(t *testing.T) {
	srv := chatServer(t, nil, http.StatusBadRequest)
	defer srv.Close()

	g, err := NewGenerator(GeneratorConfig{ClientConfig: ClientConfig{APIKey: "k", BaseURL: srv.URL}})
	require.NoError(t, err)

	var gotErr error
	for _, err := range g.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}) {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.True(t, errors.Is(gotErr, domain.ErrCapability))
}
