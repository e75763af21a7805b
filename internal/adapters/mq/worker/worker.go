// Package worker runs queued analysis jobs through the classification
// pipeline and publishes results under last-request-wins rules.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/skincheck/internal/adapters/mq/queue"
	"github.com/okian/skincheck/internal/domain/model"
	"github.com/okian/skincheck/pkg/logger"
	"github.com/okian/skincheck/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Classifier runs one classification. *pipeline.Pipeline implements it.
type Classifier interface {
	Classify(ctx context.Context, data []byte) (model.ClassificationResult, error)
}

// Publisher decides whether a finished job is still wanted.
// *pipeline.Session implements it.
type Publisher interface {
	IsLatest(ticket uint64) bool
	Complete(ctx context.Context, ticket uint64, res model.ClassificationResult) bool
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand, if any.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	classifier Classifier
	publisher  Publisher
	name       string

	processed *atomic.Int64
	skipped   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, c Classifier, p Publisher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:      q,
		classifier: c,
		publisher:  p,
		name:       "worker",
		processed:  new(atomic.Int64),
		skipped:    new(atomic.Int64),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Warn(ctx, "job failed", logger.String("job_id", j.ID), logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker loop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns the number of jobs this worker classified.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Skipped returns the number of jobs dropped as stale before running.
func (w *InMemoryWorker) Skipped() int64 { return w.skipped.Load() }

func (w *InMemoryWorker) process(ctx context.Context, j Job) error {
	if !w.publisher.IsLatest(j.Ticket) {
		w.skipped.Add(1)
		metrics.RecordWorkerSkipped()
		metrics.RecordStaleResultDiscarded()
		w.logger.Debug(ctx, "skipping superseded job",
			logger.String("job_id", j.ID),
			logger.Uint64("ticket", j.Ticket))
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	res, err := w.classifier.Classify(ctx, j.Image)
	w.processed.Add(1)
	published := w.publisher.Complete(ctx, j.Ticket, res)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "classification_error")
		return fmt.Errorf("classify job %s: %w", j.ID, err)
	}

	w.logger.Debug(ctx, "job done",
		logger.String("job_id", j.ID),
		logger.Bool("published", published),
		logger.Duration("queued", start.Sub(j.SubmittedAt)))
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers (at least one).
func NewPool(workerCount int, q Queue, c Classifier, p Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewInMemoryWorker(q, c, p, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs classified by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Skipped returns the number of superseded jobs dropped by all workers.
func (p *Pool) Skipped() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Skipped()
	}
	return n
}

// Shutdown closes the queue and stops every worker.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
