package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowforge/core/internal/logger"
)

// Handler processes one job's Args payload for a specific function name.
type Handler func(ctx context.Context, args json.RawMessage) error

// WorkerPool runs a fixed number of goroutines pulling from a set of
// queues, matching spec.md §5's "pool of workers... each processes one job
// at a time and is preemptively single-threaded within a job."
type WorkerPool struct {
	queue        *Queue
	queues       []string
	handlers     map[string]Handler
	pollInterval time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool builds a pool that will poll the given queues in priority
// order once Start is called.
func NewWorkerPool(q *Queue, pollInterval time.Duration, queues ...string) *WorkerPool {
	return &WorkerPool{
		queue:        q,
		queues:       queues,
		handlers:     make(map[string]Handler),
		pollInterval: pollInterval,
	}
}

// Handle registers the function executed for jobs named function.
func (p *WorkerPool) Handle(function string, h Handler) {
	p.handlers[function] = h
}

// Start launches count worker goroutines plus one delayed-job promoter
// goroutine per queue. Call Stop to shut the pool down.
func (p *WorkerPool) Start(ctx context.Context, count int) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < count; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
	for _, name := range p.queues {
		p.wg.Add(1)
		go p.runPromoter(ctx, name)
	}
}

// Stop cancels every worker and promoter goroutine and waits for them to
// return.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.pollInterval, p.queues...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Default().Error("queue dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}
		p.dispatch(ctx, job)
	}
}

func (p *WorkerPool) dispatch(ctx context.Context, job *Job) {
	h, ok := p.handlers[job.Function]
	if !ok {
		logger.Default().Warn("no handler registered for job function", "function", job.Function)
		return
	}
	if err := h(ctx, job.Args); err != nil {
		logger.Default().Error("job handler failed", "function", job.Function, "job_id", job.ID, "error", err)
	}
}

func (p *WorkerPool) runPromoter(ctx context.Context, queueName string) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.queue.PromoteDue(ctx, queueName); err != nil {
				logger.Default().Error("promote delayed jobs failed", "queue", queueName, "error", err)
			}
		}
	}
}
