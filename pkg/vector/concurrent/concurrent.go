// Package concurrent wraps a driver with a locking policy and a worker pool
// for fanning out batches of queries.
package concurrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/worker"
)

var _ vector.Driver = (*Driver)(nil)

// Driver serializes inserts into the inner driver and, unless the backend is
// declared thread-safe, queries as well.
//
// backendThreadSafe is a promise made by the caller. It is never verified;
// declaring an unsafe backend thread-safe lets queries race with each other.
type Driver struct {
	inner      vector.Driver
	threadSafe bool
	mu         sync.Mutex
	pool       *worker.Pool
	logger     *slog.Logger
}

// New wraps inner. workers sizes the QueryMany pool; zero means
// runtime.GOMAXPROCS(0).
func New(inner vector.Driver, workers int, backendThreadSafe bool, log *slog.Logger) (*Driver, error) {
	if inner == nil {
		return nil, vector.NewConfigError("inner", "driver is required")
	}
	if workers < 0 {
		return nil, vector.NewConfigError("workers", "must not be negative")
	}
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log = logger.OrNop(log)
	pool, err := worker.NewPool(worker.Config{
		NumWorkers: uint(workers),
		Logger:     log,
	})
	if err != nil {
		return nil, vector.InvalidConfigurationError("creating query pool", err)
	}

	log.Debug("concurrency wrapper initialized",
		"workers", workers,
		"thread_safe", backendThreadSafe,
	)

	return &Driver{
		inner:      inner,
		threadSafe: backendThreadSafe,
		pool:       pool,
		logger:     log,
	}, nil
}

// Inner returns the wrapped driver.
func (d *Driver) Inner() vector.Driver {
	return d.inner
}

// ThreadSafe reports true: the wrapper's own locking makes it safe to share.
func (d *Driver) ThreadSafe() bool {
	return true
}

func (d *Driver) Dim() uint32 {
	return d.inner.Dim()
}

func (d *Driver) IsOpen() bool {
	return d.inner.IsOpen()
}

// Add inserts docs while holding the wrapper lock.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inner.Add(ctx, docs)
}

// Query delegates directly for thread-safe backends and under the wrapper
// lock otherwise.
func (d *Driver) Query(ctx context.Context, embedding []float32, k int, filter vector.Filter) ([]vector.QueryResult, error) {
	if !d.threadSafe {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	return d.inner.Query(ctx, embedding, k, filter)
}

// QueryMany runs one query per embedding on the pool. results[i] always
// answers embeddings[i].
//
// With raiseOnError the error of the lowest failing index is returned.
// Otherwise failures leave an empty slice in their position and QueryMany
// returns no error.
func (d *Driver) QueryMany(ctx context.Context, embeddings [][]float32, k int, filter vector.Filter, raiseOnError bool) ([][]vector.QueryResult, error) {
	results := make([][]vector.QueryResult, len(embeddings))
	errs, err := d.pool.Run(ctx, len(embeddings), func(i int) error {
		var qerr error
		results[i], qerr = d.Query(ctx, embeddings[i], k, filter)
		return qerr
	})
	if err != nil {
		if errors.Is(err, worker.ErrPoolClosed) {
			return nil, vector.ErrBackendClosed
		}
		return nil, vector.QueryError("dispatching queries", err)
	}

	failed := 0
	for i, qerr := range errs {
		if qerr == nil {
			continue
		}
		var perr *worker.PanicError
		if errors.As(qerr, &perr) {
			qerr = vector.QueryError(fmt.Sprintf("query %d", i), qerr)
		}
		if raiseOnError {
			return nil, qerr
		}
		failed++
		results[i] = []vector.QueryResult{}
	}

	d.logger.Debug("ran query batch",
		"queries", len(embeddings),
		"failed", failed,
	)

	return results, nil
}

// Close stops the pool and then closes the inner driver.
func (d *Driver) Close() error {
	d.pool.Close()
	return d.inner.Close()
}
