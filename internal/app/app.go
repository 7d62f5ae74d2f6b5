// Package app builds the manualbot components from configuration and exposes
// the operations the HTTP server and CLI call.
package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/manualbot/internal/chunker"
	"github.com/dgallion1/manualbot/internal/config"
	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/llm/anthropic"
	"github.com/dgallion1/manualbot/internal/llm/hashembed"
	"github.com/dgallion1/manualbot/internal/llm/openai"
	"github.com/dgallion1/manualbot/internal/metrics"
	"github.com/dgallion1/manualbot/internal/parser"
	"github.com/dgallion1/manualbot/internal/pipeline"
	"github.com/dgallion1/manualbot/internal/rag"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/dgallion1/manualbot/internal/store/postgres"
	"github.com/dgallion1/manualbot/internal/store/sqlite"
)

// App holds the wired components.
type App struct {
	cfg          config.Config
	store        store.ChunkStore
	embedder     llm.Embedder
	generator    llm.Generator
	pipeline     *pipeline.Pipeline
	orchestrator *pipeline.Orchestrator
	rag          *rag.Service
	stats        *llm.LLMStats
	metrics      *metrics.Metrics
	log          *slog.Logger
	closers      []func()
}

// New opens the configured store, builds provider adapters and ensures the schema.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	stats := llm.NewLLMStats(time.Hour)
	m := metrics.New()
	obs := llm.Observers{stats, m}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	embedder = llm.InstrumentEmbedder(embedder, obs)

	generator, closeGen, err := newGenerator(cfg, log)
	if err != nil {
		return nil, err
	}
	generator = llm.InstrumentGenerator(generator, obs)

	st, err := openStore(ctx, cfg, embedder, log)
	if err != nil {
		closeGen()
		return nil, err
	}

	a, err := build(cfg, st, embedder, generator, stats, m, log)
	if err != nil {
		st.Close()
		closeGen()
		return nil, err
	}
	a.closers = append(a.closers, closeGen)

	if err := a.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewWithComponents wires an already-open store and capabilities. The store
// should embed with the same embedder.
func NewWithComponents(cfg config.Config, st store.ChunkStore, embedder llm.Embedder, generator llm.Generator, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	stats := llm.NewLLMStats(time.Hour)
	m := metrics.New()
	obs := llm.Observers{stats, m}
	if embedder != nil {
		embedder = llm.InstrumentEmbedder(embedder, obs)
	}
	if generator != nil {
		generator = llm.InstrumentGenerator(generator, obs)
	}
	return build(cfg, st, embedder, generator, stats, m, log)
}

func build(cfg config.Config, st store.ChunkStore, embedder llm.Embedder, generator llm.Generator,
	stats *llm.LLMStats, m *metrics.Metrics, log *slog.Logger) (*App, error) {
	p, err := pipeline.New(pipeline.Config{
		Parent:               chunker.Config{ChunkSize: cfg.ParentChunkSize, ChunkOverlap: cfg.ParentChunkOverlap},
		Child:                chunker.Config{ChunkSize: cfg.ChildChunkSize, ChunkOverlap: cfg.ChildChunkOverlap},
		MaxConcurrentParents: cfg.MaxConcurrentParents,
	}, parser.Extractor{FallbackPdftotext: cfg.PDFFallbackPdftotext}, st, m, log)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, p, log)
	m.RegisterQueueDepth(orch.QueueDepth)

	retriever := rag.NewRetriever(embedder, st, log)
	return &App{
		cfg:          cfg,
		store:        st,
		embedder:     embedder,
		generator:    generator,
		pipeline:     p,
		orchestrator: orch,
		rag:          rag.NewService(retriever, generator, cfg.TopK, log),
		stats:        stats,
		metrics:      m,
		log:          log.With("component", "app"),
	}, nil
}

func newEmbedder(cfg config.Config) (llm.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderHash:
		e, err := hashembed.New(cfg.EmbeddingDimension)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			ClientConfig: openai.ClientConfig{
				APIKey:     cfg.EmbeddingAPIKey,
				BaseURL:    cfg.EmbeddingBaseURL,
				MaxRetries: openai.DefaultMaxRetries,
			},
			Model:             cfg.EmbeddingModel,
			Dimensions:        cfg.EmbeddingDimension,
			BatchSize:         cfg.EmbeddingBatchSize,
			RequestsPerSecond: cfg.EmbeddingRPS,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, domain.Validationf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func newGenerator(cfg config.Config, log *slog.Logger) (llm.Generator, func(), error) {
	switch cfg.GenerationProvider {
	case config.ProviderAnthropic:
		c, err := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.GenerationAPIKey,
			BaseURL:     cfg.GenerationBaseURL,
			Model:       cfg.GenerationModel,
			MaxTokens:   cfg.GenerationMaxTokens,
			Temperature: cfg.GenerationTemperature,
			Logger:      log,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.ProviderOpenAI:
		g, err := openai.NewGenerator(openai.GeneratorConfig{
			ClientConfig: openai.ClientConfig{
				APIKey:     cfg.GenerationAPIKey,
				BaseURL:    cfg.GenerationBaseURL,
				MaxRetries: openai.DefaultMaxRetries,
			},
			Model:       cfg.GenerationModel,
			Temperature: cfg.GenerationTemperature,
			MaxTokens:   cfg.GenerationMaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		return g, func() {}, nil
	default:
		return nil, nil, domain.Validationf("unknown generation provider %q", cfg.GenerationProvider)
	}
}

func openStore(ctx context.Context, cfg config.Config, embedder llm.Embedder, log *slog.Logger) (store.ChunkStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{
			DSN:      cfg.DatabaseURL,
			MaxConns: int32(cfg.DBPoolSize),
			Index:    cfg.VectorIndex,
		}, embedder, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath, cfg.DBPoolSize, embedder, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, domain.Validationf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Start launches the background ingestion workers.
func (a *App) Start(ctx context.Context) {
	a.orchestrator.Start(ctx)
}

// Close stops workers and releases the store and provider connections.
func (a *App) Close() {
	a.orchestrator.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", "error", err)
	}
	for _, c := range a.closers {
		c()
	}
}

// EnsureSchema creates the chunk tables and indexes if missing.
func (a *App) EnsureSchema(ctx context.Context) error {
	return a.store.EnsureSchema(ctx)
}

// ProcessDocument ingests data synchronously.
func (a *App) ProcessDocument(ctx context.Context, data []byte, documentName string) (*pipeline.Result, error) {
	return a.pipeline.ProcessDocument(ctx, data, documentName)
}

// SubmitDocument queues data for background ingestion and returns the job.
func (a *App) SubmitDocument(data []byte, documentName string) (*pipeline.Job, error) {
	if strings.TrimSpace(documentName) == "" {
		return nil, domain.Validationf("document name is required")
	}
	job := pipeline.NewJob(documentName, data)
	if err := a.orchestrator.Submit(job); err != nil {
		return job, err
	}
	return job, nil
}

// Job returns a background job by ID, or nil.
func (a *App) Job(id string) *pipeline.Job {
	return a.orchestrator.GetJob(id)
}

// Answer returns the full answer and its citations.
func (a *App) Answer(ctx context.Context, conversation []llm.Message, query string) (string, []domain.Citation, error) {
	return a.rag.Answer(ctx, conversation, query)
}

// AnswerStream returns the answer as a lazy event sequence.
func (a *App) AnswerStream(ctx context.Context, conversation []llm.Message, query string) iter.Seq[rag.Event] {
	return a.rag.AnswerStream(ctx, conversation, query)
}

// DeleteDocument removes a document and all its chunks. Deleting an unknown
// document succeeds.
func (a *App) DeleteDocument(ctx context.Context, documentName string) error {
	if strings.TrimSpace(documentName) == "" {
		return domain.Validationf("document name is required")
	}
	return a.store.DeleteDocument(ctx, documentName)
}

// ListDocuments summarizes the stored documents.
func (a *App) ListDocuments(ctx context.Context) ([]store.DocumentSummary, error) {
	return a.store.ListDocuments(ctx)
}

// Ping checks that the store answers queries.
func (a *App) Ping(ctx context.Context) error {
	_, err := a.store.ListDocuments(ctx)
	return err
}

// Stats returns per-operation provider latency aggregates.
func (a *App) Stats() map[string]llm.StatsSnapshot {
	return a.stats.Snapshot()
}

// Metrics returns the Prometheus metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config {
	return a.cfg
}

// Models names the embedding and generation models in use.
func (a *App) Models() (embedding, generation string) {
	if a.embedder != nil {
		embedding = a.embedder.ModelName()
	}
	if a.generator != nil {
		generation = a.generator.ModelName()
	}
	return embedding, generation
}

// QueueFull reports whether err came from a full ingestion queue.
func QueueFull(err error) bool {
	return errors.Is(err, pipeline.ErrQueueFull)
}

// String describes the wiring for startup logs.
func (a *App) String() string {
	emb, gen := a.Models()
	return fmt.Sprintf("store=%s embedding=%s(%d) generation=%s", a.cfg.StoreDriver, emb, a.cfg.EmbeddingDimension, gen)
}
