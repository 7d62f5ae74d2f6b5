package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("ingestion queue stopped")
)

// OrchestratorConfig sizes the background worker pool. Zero values take
// defaults: 1 worker, 100 queued jobs, 1h job TTL, 5m cleanup interval.
type OrchestratorConfig struct {
	WorkerCount     int
	MaxQueueSize    int
	JobTTL          time.Duration
	CleanupInterval time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	return c
}

// Orchestrator feeds uploaded documents from a bounded queue to a fixed pool
// of workers and keeps their jobs around for status polling until JobTTL.
type Orchestrator struct {
	cfg      OrchestratorConfig
	jobs     *JobStore
	queue    chan *Job
	pipeline *Pipeline
	log      *slog.Logger

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the queue. Jobs wait until Start launches workers.
func NewOrchestrator(cfg OrchestratorConfig, p *Pipeline, log *slog.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		jobs:     NewJobStore(cfg.JobTTL),
		queue:    make(chan *Job, cfg.MaxQueueSize),
		pipeline: p,
		log:      log.With("component", "orchestrator"),
	}
}

// Start launches the workers and the expired-job sweeper. They run until ctx
// is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	for i := range o.cfg.WorkerCount {
		w := newWorker(i, o.pipeline, o.log)
		o.wg.Go(func() { w.run(ctx, o.queue) })
	}
	o.wg.Go(func() { o.sweep(ctx) })
	o.log.Info("ingestion workers started", "workers", o.cfg.WorkerCount, "queue_size", o.cfg.MaxQueueSize)
}

func (o *Orchestrator) sweep(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.jobs.Cleanup(); n > 0 {
				o.log.Debug("expired jobs removed", "count", n)
			}
		}
	}
}

// Stop cancels in-flight jobs, waits for the workers, and fails whatever is
// still queued so pollers see a terminal status.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.wg.Wait()

	for job := range o.queue {
		job.Fail("queued", ErrStopped)
	}
}

// Submit registers job and queues it. A full queue fails the job immediately.
func (o *Orchestrator) Submit(job *Job) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	o.jobs.Put(job)
	select {
	case o.queue <- job:
		o.log.Info("job queued", "job_id", job.ID, "document", job.DocumentName, "depth", len(o.queue))
		return nil
	default:
		job.Fail("queued", ErrQueueFull)
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetJob returns a job by ID, or nil if unknown or expired.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
