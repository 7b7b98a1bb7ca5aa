package background

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listgate/listgate/internal/queue"
)

// CheckRunner executes one access-check job
type CheckRunner interface {
	RunCheck(ctx context.Context, job queue.CheckJob) error
}

// Dequeuer pops the next job; a nil job means the queue stayed empty for
// the block window
type Dequeuer interface {
	Dequeue(ctx context.Context) (*queue.CheckJob, error)
}

// CheckWorkerPool drains the access-check queue with a fixed number of
// workers. Jobs run off the request path; their outcome lands in the access
// record's check status, which the browser polls.
type CheckWorkerPool struct {
	queue   Dequeuer
	runner  CheckRunner
	logger  *slog.Logger
	workers int
	wg      sync.WaitGroup
}

// NewCheckWorkerPool creates a worker pool
func NewCheckWorkerPool(q Dequeuer, runner CheckRunner, logger *slog.Logger, workers int) *CheckWorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &CheckWorkerPool{
		queue:   q,
		runner:  runner,
		logger:  logger,
		workers: workers,
	}
}

// Start launches the workers. They stop when ctx is cancelled; Wait blocks
// until all are done.
func (p *CheckWorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting access check workers", slog.Int("workers", p.workers))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Wait blocks until every worker has exited
func (p *CheckWorkerPool) Wait() {
	p.wg.Wait()
}

func (p *CheckWorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("access check worker stopped", slog.Int("worker", id))
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("failed to dequeue check job",
				slog.Int("worker", id),
				slog.Any("error", err))
			continue
		}
		if job == nil {
			continue // queue empty, loop back and re-check shutdown
		}

		if err := p.runner.RunCheck(ctx, *job); err != nil {
			p.logger.Error("access check job failed",
				slog.Int("worker", id),
				slog.String("job_id", job.ID),
				slog.String("access_record_id", job.AccessRecordID),
				slog.Any("error", err))
		}
	}
}
