package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEvents(w http.ResponseWriter, texts []string, stop bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n")
	for _, t := range texts {
		b, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]string{"type": "text_delta", "text": t},
		})
		fmt.Fprintf(w, "event: content_block_delta\ndata: %s\n\n", b)
	}
	if stop {
		fmt.Fprint(w, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: "k", BaseURL: url})
	require.NoError(t, err)
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c
}

func collect(c *Client, msgs []llm.Message) ([]string, error) {
	var out []string
	for frag, err := range c.Stream(context.Background(), msgs) {
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
	return out, nil
}

func TestStream_TextDeltas(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeEvents(w, []string{"The ", "answer."}, true)
	}))
	defer srv.Close()

	frags, err := collect(newTestClient(t, srv.URL), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "q"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"The ", "answer."}, frags)
	assert.Equal(t, "sys", got.System)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestStream_RetriesBeforeFirstToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEvents(w, []string{"ok"}, true)
	}))
	defer srv.Close()

	frags, err := collect(newTestClient(t, srv.URL), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, frags)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStream_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"type":"authentication_error"}}`)
	}))
	defer srv.Close()

	_, err := collect(newTestClient(t, srv.URL), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	assert.ErrorIs(t, err, domain.ErrCapability)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStream_TruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, []string{"partial"}, false)
	}))
	defer srv.Close()

	frags, err := collect(newTestClient(t, srv.URL), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	assert.Equal(t, []string{"partial"}, frags)
	assert.ErrorIs(t, err, domain.ErrCapability)
}

func TestStream_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n")
	}))
	defer srv.Close()

	_, err := collect(newTestClient(t, srv.URL), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded_error")
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
