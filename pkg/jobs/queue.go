package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the buffer cannot take another job without blocking.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed is returned once Stop has been called or before Start.
	ErrQueueClosed = errors.New("queue closed")
)

// Job is a unit of background work, typically one outbound email.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. A returned error schedules a retry while attempts remain.
type Handler func(context.Context, Job) error

// QueueConfig configures the worker pool. MaxRetries of zero disables retries;
// RetryDelay is doubled on every further attempt up to MaxRetryDelay.
type QueueConfig struct {
	Workers       int
	BufferSize    int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	JobTimeout    time.Duration
	Logger        *zap.Logger
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Pending   int
	Succeeded int64
	Failed    int64
	Retried   int64
}

// Queue dispatches jobs to a fixed pool of goroutines. Enqueue never blocks;
// Stop drains what is already buffered until its context expires.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs     chan Job
	draining chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	state   queueState
	retries sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
}

type queueState int

const (
	stateIdle queueState = iota
	stateRunning
	stateStopped
)

// NewQueue builds a queue that hands every job to handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = cfg.RetryDelay * 8
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:     name,
		handler:  handler,
		cfg:      cfg,
		logger:   cfg.Logger.With(zap.String("queue", name)),
		jobs:     make(chan Job, cfg.BufferSize),
		draining: make(chan struct{}),
	}
}

// Start launches the workers. Calls after the first are ignored.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateIdle {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.state = stateRunning
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", cap(q.jobs)))
}

// Stop refuses new jobs and lets workers finish the buffer. When ctx expires
// first the in-flight jobs are cancelled and whatever is left is dropped.
// Pending retries are abandoned.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		return
	}
	q.state = stateStopped
	close(q.draining)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.logger.Warn("queue drain deadline exceeded", zap.Int("pending", len(q.jobs)))
		q.cancel()
		<-done
	}
	q.cancel()
	q.retries.Wait()

	stats := q.Stats()
	q.logger.Info("queue stopped",
		zap.Int("dropped", stats.Pending),
		zap.Int64("succeeded", stats.Succeeded),
		zap.Int64("failed", stats.Failed),
		zap.Int64("retried", stats.Retried),
	)
}

// Enqueue pushes a job onto the buffer without blocking.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != stateRunning {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueClosed)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueFull)
	}
}

// Stats reports the buffered job count and lifetime outcome counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.jobs),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Retried:   q.retried.Load(),
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		case <-q.draining:
			q.drain()
			return
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		default:
			return
		}
	}
}

func (q *Queue) run(job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.JobTimeout)
	defer cancel()
	if err := q.handler(ctx, job); err != nil {
		q.handleFailure(job, err)
		return
	}
	q.succeeded.Add(1)
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	fields := []zap.Field{zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if job.Attempt > q.cfg.MaxRetries {
		q.failed.Add(1)
		q.logger.Error("job failed", fields...)
		return
	}

	q.mu.Lock()
	if q.state != stateRunning {
		q.mu.Unlock()
		q.failed.Add(1)
		q.logger.Error("job failed during shutdown", fields...)
		return
	}
	q.retries.Add(1)
	q.mu.Unlock()

	delay := q.backoff(job.Attempt)
	q.retried.Add(1)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("delay", delay))...)

	go func(j Job) {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-q.draining:
			q.failed.Add(1)
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.failed.Add(1)
				q.logger.Error("failed to requeue job", zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}

func (q *Queue) backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return delay
}
