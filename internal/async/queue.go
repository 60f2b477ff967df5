// Package async runs fire-and-forget work off the request path. A Queue owns
// a bounded buffer and a single worker; callers never block on Submit and
// never see the task's error. Failures surface on the queue's error channel.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is reported when a task is dropped because the buffer is full.
var ErrQueueFull = errors.New("async queue full")

// ErrQueueClosed is reported when a task is submitted after Close.
var ErrQueueClosed = errors.New("async queue closed")

// Task is a unit of background work. The context carries the per-task
// timeout and is independent of any request context.
type Task func(ctx context.Context) error

// TaskError pairs a failed task's name with its error.
type TaskError struct {
	Name string
	Err  error
}

func (e TaskError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }

func (e TaskError) Unwrap() error { return e.Err }

// Options configure a Queue.
type Options struct {
	Name        string        // used in log lines
	BufferSize  int           // default 1024
	TaskTimeout time.Duration // default 5s
	Logger      *slog.Logger  // default slog.Default()
}

type job struct {
	name string
	fn   Task
}

// Queue executes submitted tasks in order on one background goroutine.
type Queue struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger

	jobs chan job
	errs chan TaskError

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a queue and its worker.
func New(opts Options) *Queue {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Name == "" {
		opts.Name = "async"
	}

	q := &Queue{
		name:    opts.Name,
		timeout: opts.TaskTimeout,
		logger:  opts.Logger,
		jobs:    make(chan job, opts.BufferSize),
		errs:    make(chan TaskError, 64),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues fn without blocking. It returns false when the task was
// dropped because the buffer is full or the queue is closed.
func (q *Queue) Submit(name string, fn Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		// errs may already be closed; log only.
		q.logger.Warn("background task dropped", "queue", q.name, "task", name, "error", ErrQueueClosed)
		return false
	}
	select {
	case q.jobs <- job{name: name, fn: fn}:
		return true
	default:
		q.report(TaskError{Name: name, Err: ErrQueueFull})
		return false
	}
}

// Errors exposes task failures. The channel is buffered and lossy: when no
// one drains it, failures are still logged but older reports are not kept.
// It is closed once Close has drained the queue.
func (q *Queue) Errors() <-chan TaskError {
	return q.errs
}

// Close stops accepting tasks, runs everything already buffered, and waits
// for the worker to exit. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	close(q.errs)
}

func (q *Queue) run() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.execute(j)
	}
}

func (q *Queue) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			q.report(TaskError{Name: j.name, Err: fmt.Errorf("panic: %v", rec)})
		}
	}()

	if err := j.fn(ctx); err != nil {
		q.report(TaskError{Name: j.name, Err: err})
	}
}

// report logs the failure and offers it to the error channel without
// blocking. Callers hold q.mu.RLock or run on the worker, so errs is open.
func (q *Queue) report(te TaskError) {
	q.logger.Warn("background task failed", "queue", q.name, "task", te.Name, "error", te.Err)
	select {
	case q.errs <- te:
	default:
	}
}
