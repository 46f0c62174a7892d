package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/leadflow/internal/logging"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("executor queue is full")
	// ErrExecutorClosed is returned by Submit after Close.
	ErrExecutorClosed = errors.New("executor is closed")
)

// Job is a unit of background work.
// Done, when set, is called exactly once with the outcome; a panic in Run is
// reported as an error.
type Job struct {
	ID   string
	Run  func(ctx context.Context) error
	Done func(err error, elapsed time.Duration)
}

// Executor runs jobs on a fixed pool of workers fed by a bounded queue.
// Submission never blocks.
type Executor struct {
	workers    int
	queueSize  int
	jobTimeout time.Duration
	logger     *slog.Logger

	queue  chan Job
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithWorkers sets the number of workers.
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.queueSize = n
		}
	}
}

// WithJobTimeout bounds each job. Zero disables the bound.
func WithJobTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.jobTimeout = d
	}
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor starts an executor. Callers must Close it.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		workers:    4,
		queueSize:  256,
		jobTimeout: 30 * time.Second,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.queue = make(chan Job, e.queueSize)
	e.ctx, e.cancel = context.WithCancel(context.Background())

	for i := 0; i < e.workers; i++ {
		e.group.Go(func() error {
			for job := range e.queue {
				e.run(job)
			}
			return nil
		})
	}
	return e
}

// Submit enqueues a job without blocking.
func (e *Executor) Submit(job Job) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	select {
	case e.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (e *Executor) Pending() int {
	return len(e.queue)
}

// Close stops accepting jobs and waits for queued jobs to finish.
// If ctx ends first, running jobs are cancelled and Close returns ctx.Err()
// once the workers have exited.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = e.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Executor) run(job Job) {
	start := time.Now()
	err := e.safeRun(job)
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Error("background job failed", "job_id", job.ID, "duration", elapsed, "err", err)
	} else {
		e.logger.Debug("background job finished", "job_id", job.ID, "duration", elapsed)
	}
	if job.Done != nil {
		job.Done(err, elapsed)
	}
}

func (e *Executor) safeRun(job Job) (err error) {
	ctx := e.ctx
	if e.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.jobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("background job panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	if job.Run == nil {
		return nil
	}
	return job.Run(ctx)
}
