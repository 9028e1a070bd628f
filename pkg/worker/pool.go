// Package worker provides a fixed-size pool of goroutines draining a bounded
// task queue. Drivers use it to partition scans and decorators use it to fan
// out independent queries; callers block until their tasks have finished.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/papercomputeco/simstore/pkg/logger"
)

var defaultQueueSize uint = 256

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Task is a unit of work for the pool.
type Task func()

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of goroutines in the pool.
	// Defaults to runtime.GOMAXPROCS(0).
	NumWorkers uint

	// QueueSize is the capacity of the buffered task channel (defaults to 256).
	QueueSize uint

	// Logger is the optional slog logger.
	Logger *slog.Logger
}

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	queue  chan Task
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	size   int
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = uint(runtime.GOMAXPROCS(0))
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt32) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int32", c.NumWorkers)
	}

	p := &Pool{
		queue:  make(chan Task, c.QueueSize),
		size:   int(c.NumWorkers),
		logger: logger.OrNop(c.Logger),
	}

	p.wg.Add(p.size)
	for i := range p.size {
		go p.worker(i)
	}

	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues task, blocking while the queue is full. It returns
// ErrPoolClosed after Close and ctx.Err() if ctx ends while waiting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PanicError is the error recorded for a Run task that panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Run submits n tasks calling fn(0) .. fn(n-1) and waits for all of the
// submitted ones to finish. errs[i] holds the error of fn(i); a panic in
// fn(i) is recovered into a *PanicError. err reports a failed submission, in
// which case Run still waits for the tasks already queued and errs is nil.
func (p *Pool) Run(ctx context.Context, n int, fn func(i int) error) (errs []error, err error) {
	errs = make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		err := p.Submit(ctx, func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &PanicError{Value: r, Stack: debug.Stack()}
					p.logger.Error("task panicked", "task", i, "panic", fmt.Sprint(r))
				}
			}()
			errs[i] = fn(i)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()
	return errs, nil
}

// Close stops accepting tasks and waits for queued tasks to drain.
// Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker continuously pulls tasks off the queue until it is closed.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for task := range p.queue {
		p.runTask(id, task)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) runTask(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker_id", id, "panic", fmt.Sprint(r))
		}
	}()
	task()
}
