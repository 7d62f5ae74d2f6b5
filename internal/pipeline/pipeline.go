// Package pipeline turns uploaded documents into stored parent/child chunks,
// either synchronously or through a background job queue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgallion1/manualbot/internal/chunker"
	"github.com/dgallion1/manualbot/internal/doctree"
	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrentParents bounds parallel parent writes per document.
const DefaultMaxConcurrentParents = 4

// Extractor converts raw upload bytes into flattened text with provenance.
type Extractor interface {
	Extract(data []byte, filename string) (*doctree.Document, error)
}

// Observer receives one call per processed document.
type Observer interface {
	ObserveIngest(status JobStatus, parents, children int, d time.Duration)
}

type Config struct {
	Parent               chunker.Config
	Child                chunker.Config
	MaxConcurrentParents int
}

// Result summarizes a successful ingestion.
type Result struct {
	DocumentName string `json:"document_name"`
	ParentChunks int    `json:"parent_chunks"`
	ChildChunks  int    `json:"child_chunks"`
	Status       string `json:"status"`
}

// Pipeline splits documents into parents and children and persists them.
type Pipeline struct {
	extractor  Extractor
	store      store.ChunkStore
	parents    *chunker.Splitter
	children   *chunker.Splitter
	maxParents int
	obs        Observer
	log        *slog.Logger
}

// New validates cfg and builds a pipeline. obs may be nil.
func New(cfg Config, extractor Extractor, st store.ChunkStore, obs Observer, log *slog.Logger) (*Pipeline, error) {
	if extractor == nil || st == nil {
		return nil, fmt.Errorf("%w: pipeline needs an extractor and a store", domain.ErrNotInitialized)
	}
	if cfg.Child.ChunkSize >= cfg.Parent.ChunkSize {
		return nil, domain.Validationf("child chunk size %d must be smaller than parent chunk size %d",
			cfg.Child.ChunkSize, cfg.Parent.ChunkSize)
	}
	parents, err := chunker.New(cfg.Parent)
	if err != nil {
		return nil, fmt.Errorf("parent splitter: %w", err)
	}
	children, err := chunker.New(cfg.Child)
	if err != nil {
		return nil, fmt.Errorf("child splitter: %w", err)
	}
	if cfg.MaxConcurrentParents <= 0 {
		cfg.MaxConcurrentParents = DefaultMaxConcurrentParents
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		extractor:  extractor,
		store:      st,
		parents:    parents,
		children:   children,
		maxParents: cfg.MaxConcurrentParents,
		obs:        obs,
		log:        log.With("component", "pipeline"),
	}, nil
}

// ProcessDocument ingests one document and waits for it to finish.
func (p *Pipeline) ProcessDocument(ctx context.Context, data []byte, documentName string) (*Result, error) {
	job := NewJob(documentName, data)
	return p.run(ctx, job)
}

// Process runs a queued job to completion, recording the outcome on the job.
func (p *Pipeline) Process(ctx context.Context, job *Job) {
	if _, err := p.run(ctx, job); err != nil {
		p.log.Error("ingestion failed", "job_id", job.ID, "document", job.DocumentName, "error", err)
	}
}

func (p *Pipeline) run(ctx context.Context, job *Job) (res *Result, err error) {
	start := time.Now()
	name := job.DocumentName
	log := p.log.With("job_id", job.ID, "document", name)

	var parentCount int
	var childCount atomic.Int64
	defer func() {
		if p.obs == nil {
			return
		}
		status := StatusCompleted
		if err != nil {
			status = StatusFailed
		}
		p.obs.ObserveIngest(status, parentCount, int(childCount.Load()), time.Since(start))
	}()

	job.SetStatus(StatusReceived, "extracting")
	if strings.TrimSpace(name) == "" {
		err = domain.Validationf("document name is required")
		job.Fail("extracting", err)
		return nil, err
	}

	doc, err := p.extractor.Extract(job.FileData(), name)
	if err != nil {
		err = domain.Wrap(domain.ErrExtraction, "extract "+name, err)
		job.Fail("extracting", err)
		return nil, err
	}
	job.SetStatus(StatusTextExtracted, "splitting")

	parents := p.parents.Split(doc.Text)
	if len(parents) == 0 {
		err = fmt.Errorf("%w: %s: no usable text", domain.ErrExtraction, name)
		job.Fail("splitting", err)
		return nil, err
	}
	parentCount = len(parents)
	job.SetTotalParents(len(parents))
	log.Info("split document", "parents", len(parents), "pages", doc.Pages())

	offsets := locate(doc.Text, parents)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParents)
	for i, content := range parents {
		g.Go(func() error {
			n, err := p.storeParent(gctx, job, doc, i, len(parents), content, offsets[i])
			childCount.Add(int64(n))
			if err != nil {
				return fmt.Errorf("parent %d: %w", i, err)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		job.Fail("storing", err)
		return nil, err
	}

	res = &Result{
		DocumentName: name,
		ParentChunks: len(parents),
		ChildChunks:  int(childCount.Load()),
		Status:       "success",
	}
	job.Complete(res)
	log.Info("document ingested",
		"parents", res.ParentChunks,
		"children", res.ChildChunks,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// storeParent writes one parent and then its children. It returns the number
// of children persisted.
func (p *Pipeline) storeParent(ctx context.Context, job *Job, doc *doctree.Document, index, total int, content string, offset int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	parent := domain.ParentChunk{
		ID:           uuid.New(),
		DocumentName: job.DocumentName,
		Content:      content,
		Metadata: map[string]any{
			"chunk_index":   index,
			"total_chunks":  total,
			"approx_tokens": chunker.EstimateTokens(content),
		},
	}
	if offset >= 0 {
		page, section := doc.Locate(offset)
		if page > 0 {
			parent.PageNumber = &page
		}
		if section != "" {
			parent.SectionTitle = &section
		}
	}
	if err := p.store.PutParent(ctx, parent); err != nil {
		return 0, err
	}
	job.ParentStored()

	pieces := p.children.Split(content)
	children := make([]store.ChildInput, len(pieces))
	for i, c := range pieces {
		children[i] = store.ChildInput{
			Content: c,
			Metadata: map[string]any{
				"parent_index": index,
				"child_index":  i,
			},
		}
	}
	if err := p.store.PutChildren(ctx, parent.ID, children); err != nil {
		return 0, err
	}
	job.ChildrenStored(len(children))
	return len(children), nil
}

// locate returns the byte offset of each parent in text, searching forward from
// the previous parent's start since consecutive parents may overlap. -1 means not found.
func locate(text string, parents []string) []int {
	offsets := make([]int, len(parents))
	from := 0
	for i, pc := range parents {
		idx := strings.Index(text[from:], pc)
		if idx < 0 {
			offsets[i] = -1
			continue
		}
		offsets[i] = from + idx
		from = offsets[i] + 1
	}
	return offsets
}
