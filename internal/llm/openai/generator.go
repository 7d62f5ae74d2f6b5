package openai

import (
	"context"
	"fmt"
	"iter"

	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	oai "github.com/openai/openai-go"
)

var _ llm.Generator = (*Generator)(nil)

// GeneratorConfig configures the chat completion adapter.
type GeneratorConfig struct {
	ClientConfig
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator streams /chat/completions responses.
type Generator struct {
	client      oai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewGenerator creates a streaming chat adapter. The base URL defaults to Groq's
// OpenAI-compatible endpoint.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai generator: API key is required", domain.ErrValidation)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &Generator{
		client:      newClient(cfg.ClientConfig, DefaultGroqBaseURL),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

func (g *Generator) ModelName() string { return g.model }

func (g *Generator) Stream(ctx context.Context, conversation []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		params := oai.ChatCompletionNewParams{
			Model:       oai.ChatModel(g.model),
			Messages:    toMessages(conversation),
			Temperature: oai.Float(g.temperature),
		}
		if g.maxTokens > 0 {
			params.MaxTokens = oai.Int(int64(g.maxTokens))
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !yield(content, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("%w: chat completion: %w", domain.ErrCapability, err))
		}
	}
}

func toMessages(conversation []llm.Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(conversation))
	for _, m := range conversation {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, oai.AssistantMessage(m.Content))
		default:
			out = append(out, oai.UserMessage(m.Content))
		}
	}
	return out
}
