package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// worker takes jobs off the queue one at a time until the queue is closed
// or ctx ends.
type worker struct {
	pipeline *Pipeline
	log      *slog.Logger
}

func newWorker(id int, p *Pipeline, log *slog.Logger) *worker {
	return &worker{pipeline: p, log: log.With("worker", id)}
}

func (w *worker) run(ctx context.Context, queue <-chan *Job) {
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case job, ok := <-queue:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// process runs one job. A panicking parser fails that job and the worker
// moves on.
func (w *worker) process(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job panicked", "job_id", job.ID, "document", job.DocumentName,
				"panic", r, "stack", string(debug.Stack()))
			job.Fail("panic", fmt.Errorf("internal error: %v", r))
		}
	}()
	w.log.Debug("job started", "job_id", job.ID, "document", job.DocumentName)
	w.pipeline.Process(ctx, job)
}
