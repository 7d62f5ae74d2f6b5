// Package openai adapts OpenAI-compatible APIs (OpenAI, Groq, local
// gateways) to the llm.Embedder and llm.Generator interfaces.
package openai

import (
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration values.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultGroqBaseURL    = "https://api.groq.com/openai/v1"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "llama-3.1-8b-instant"
	DefaultTimeout        = 120 * time.Second
	DefaultMaxRetries     = 2
)

// ClientConfig holds connection settings shared by the embedder and generator.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

func newClient(cfg ClientConfig, defaultBaseURL string) oai.Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return oai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(base),
		option.WithMaxRetries(retries),
		option.WithHTTPClient(hc),
	)
}
