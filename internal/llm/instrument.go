package llm

import (
	"context"
	"iter"
	"time"
)

// Observer receives one call per provider operation.
type Observer interface {
	ObserveLLM(op, model string, d time.Duration, err error)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) ObserveLLM(op, model string, d time.Duration, err error) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveLLM(op, model, d, err)
		}
	}
}

// InstrumentEmbedder reports the latency of every embedding call to obs.
func InstrumentEmbedder(e Embedder, obs Observer) Embedder {
	return &instrumentedEmbedder{Embedder: e, obs: obs}
}

type instrumentedEmbedder struct {
	Embedder
	obs Observer
}

func (e *instrumentedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := e.Embedder.EmbedOne(ctx, text)
	e.obs.ObserveLLM(OpEmbed, e.ModelName(), time.Since(start), err)
	return v, err
}

func (e *instrumentedEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := e.Embedder.EmbedMany(ctx, texts)
	e.obs.ObserveLLM(OpEmbed, e.ModelName(), time.Since(start), err)
	return v, err
}

// InstrumentGenerator reports the duration of every completed or failed
// stream to obs. Streams abandoned by the consumer are not reported.
func InstrumentGenerator(g Generator, obs Observer) Generator {
	return &instrumentedGenerator{Generator: g, obs: obs}
}

type instrumentedGenerator struct {
	Generator
	obs Observer
}

func (g *instrumentedGenerator) Stream(ctx context.Context, conversation []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		for frag, err := range g.Generator.Stream(ctx, conversation) {
			if err != nil {
				g.obs.ObserveLLM(OpGenerate, g.ModelName(), time.Since(start), err)
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
		g.obs.ObserveLLM(OpGenerate, g.ModelName(), time.Since(start), nil)
	}
}
