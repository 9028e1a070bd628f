// Package flat provides the in-process brute-force vector driver. It keeps
// every embedding in one row-major buffer and scans all of them per query,
// splitting the scan across a fixed worker pool.
package flat

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"runtime"
	"sync"

	"github.com/hupe1980/vecgo/distance"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/worker"
)

// DefaultPartitionRows is the minimum number of rows a scan task covers.
// Smaller corpora are scanned by a single task. Override with the
// "partition_rows" option.
const DefaultPartitionRows = 1024

// Compile-time checks.
var (
	_ vector.Driver       = (*Driver)(nil)
	_ vector.ThreadSafety = (*Driver)(nil)
)

// Driver implements vector.Driver with an exhaustive in-memory scan.
//
// It is safe for concurrent use: queries share a read lock and Add takes the
// write lock.
type Driver struct {
	mu sync.RWMutex

	dim    uint32
	metric vector.Metric

	// data holds n*dim floats, row i at data[i*dim:(i+1)*dim].
	data []float32

	// invNorms holds 1/||row|| per row for the cosine metric.
	invNorms []float32

	// docs holds text and metadata per row; embeddings live in data.
	docs []vector.Document

	partitionRows int
	pool          *worker.Pool
	closed        bool
	logger        *slog.Logger
}

// NewDriver creates a flat driver from c. Target and Namespace are ignored.
func NewDriver(c vector.Config, log *slog.Logger) (*Driver, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	partitionRows, err := c.IntOption("partition_rows", DefaultPartitionRows)
	if err != nil {
		return nil, err
	}
	if partitionRows <= 0 {
		return nil, vector.NewConfigError("options.partition_rows", "must be positive")
	}

	workers := c.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log = logger.OrNop(log)
	pool, err := worker.NewPool(worker.Config{
		NumWorkers: uint(workers),
		QueueSize:  uint(workers),
		Logger:     log,
	})
	if err != nil {
		return nil, vector.InvalidConfigurationError("creating scan pool", err)
	}

	d := &Driver{
		dim:           c.Dim,
		metric:        c.Metric,
		data:          make([]float32, 0, c.Capacity*int(c.Dim)),
		docs:          make([]vector.Document, 0, c.Capacity),
		partitionRows: partitionRows,
		pool:          pool,
		logger:        log,
	}
	if c.Metric == vector.MetricCosine {
		d.invNorms = make([]float32, 0, c.Capacity)
	}

	log.Info("flat vector driver initialized",
		"dimensions", c.Dim,
		"metric", c.Metric.String(),
		"workers", workers,
	)

	return d, nil
}

// Dim returns the embedding dimension.
func (d *Driver) Dim() uint32 {
	return d.dim
}

// Metric returns the scoring metric.
func (d *Driver) Metric() vector.Metric {
	return d.metric
}

// ThreadSafe reports true: the driver guards its own state.
func (d *Driver) ThreadSafe() bool {
	return true
}

// IsOpen reports whether Close has not been called.
func (d *Driver) IsOpen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}

// Len returns the number of stored documents.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Get returns a copy of the i-th stored document, in insertion order.
func (d *Driver) Get(i int) (vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return vector.Document{}, vector.ErrBackendClosed
	}
	if i < 0 || i >= len(d.docs) {
		return vector.Document{}, ErrIndexOutOfRange
	}
	return d.document(i), nil
}

// Add appends docs. The batch is validated first, so a dimension mismatch
// leaves the driver untouched.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return vector.ErrBackendClosed
	}
	if err := vector.CheckAdd(d.dim, docs); err != nil {
		return err
	}

	for _, doc := range docs {
		d.data = append(d.data, doc.Embedding...)
		if d.invNorms != nil {
			d.invNorms = append(d.invNorms, inverseNorm(doc.Embedding))
		}

		d.docs = append(d.docs, vector.Document{
			PageContent: doc.PageContent,
			Metadata:    maps.Clone(doc.Metadata),
		})
	}

	d.logger.Debug("added documents to flat driver",
		"count", len(docs),
		"total", len(d.docs),
	)

	return nil
}

// Query scans every stored row and returns the k best matches.
func (d *Driver) Query(ctx context.Context, embedding []float32, k int, filter vector.Filter) ([]vector.QueryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, vector.ErrBackendClosed
	}
	if err := vector.CheckQuery(d.dim, embedding); err != nil {
		return nil, err
	}

	n := len(d.docs)
	if k <= 0 || n == 0 {
		return []vector.QueryResult{}, nil
	}

	q := embedding
	if d.metric == vector.MetricCosine {
		q = normalize(embedding)
	}

	parts := d.partitions(n)
	partials := make([][]candidate, len(parts))
	if len(parts) == 1 {
		partials[0] = d.scan(q, parts[0], k, filter)
	} else {
		errs, err := d.pool.Run(ctx, len(parts), func(i int) error {
			partials[i] = d.scan(q, parts[i], k, filter)
			return nil
		})
		if err == nil {
			err = errors.Join(errs...)
		}
		if err != nil {
			return nil, vector.QueryError("scanning partitions", err)
		}
	}

	best := merge(d.metric, k, partials)
	results := make([]vector.QueryResult, len(best))
	for i, c := range best {
		results[i] = vector.QueryResult{
			Document: d.document(c.index),
			Score:    c.score,
		}
	}

	d.logger.Debug("queried flat driver",
		"partitions", len(parts),
		"results", len(results),
	)

	return results, nil
}

// Close releases the buffer and stops the scan pool. Close is idempotent.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.data = nil
	d.invNorms = nil
	d.docs = nil
	d.mu.Unlock()

	d.pool.Close()
	return nil
}

// span is a half-open row range.
type span struct {
	start, end int
}

// partitions splits n rows into at most pool-size contiguous spans of at
// least partitionRows rows each.
func (d *Driver) partitions(n int) []span {
	count := (n + d.partitionRows - 1) / d.partitionRows
	if count > d.pool.Size() {
		count = d.pool.Size()
	}
	if count < 1 {
		count = 1
	}

	spans := make([]span, 0, count)
	size := (n + count - 1) / count
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		spans = append(spans, span{start: start, end: end})
	}
	return spans
}

// scan scores the rows of s and returns its local top-k, best first.
// Callers must hold d.mu.
func (d *Driver) scan(q []float32, s span, k int, filter vector.Filter) []candidate {
	dim := int(d.dim)
	top := newTopK(d.metric, k, s.end-s.start)

	for i := s.start; i < s.end; i++ {
		if len(filter) > 0 && !filter.Matches(d.docs[i].Metadata) {
			continue
		}
		row := d.data[i*dim : (i+1)*dim]

		var score float32
		switch d.metric {
		case vector.MetricL2:
			score = distance.SquaredL2(q, row)
		case vector.MetricInnerProduct:
			score = distance.Dot(q, row)
		case vector.MetricCosine:
			score = distance.Dot(q, row) * d.invNorms[i]
		}
		top.offer(candidate{index: i, score: score})
	}

	return merge(d.metric, k, [][]candidate{top.items})
}

// document assembles a detached copy of row i. Callers must hold d.mu.
func (d *Driver) document(i int) vector.Document {
	dim := int(d.dim)
	out := d.docs[i].Clone()
	out.Embedding = make([]float32, dim)
	copy(out.Embedding, d.data[i*dim:(i+1)*dim])
	return out
}
