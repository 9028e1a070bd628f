// Package instrumented wraps a driver and records call counts, error counts
// and cumulative, minimum and maximum latency per method.
package instrumented

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/papercomputeco/simstore/pkg/vector"
)

// Method names used as snapshot keys and metric labels.
const (
	MethodDim    = "dim"
	MethodIsOpen = "is_open"
	MethodAdd    = "add"
	MethodQuery  = "query"
	MethodClose  = "close"
)

var _ vector.Driver = (*Driver)(nil)

// CallStats accumulates the outcome of every call to one method.
type CallStats struct {
	Calls        uint64
	Errors       uint64
	TotalLatency time.Duration
	MinLatency   time.Duration
	MaxLatency   time.Duration
}

// MeanLatency returns TotalLatency / Calls, or zero before the first call.
func (s CallStats) MeanLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// Driver times every delegated call. Errors from the inner driver are
// returned unchanged after being counted.
type Driver struct {
	inner vector.Driver

	mu    sync.Mutex
	stats map[string]*CallStats
}

// New wraps inner.
func New(inner vector.Driver) *Driver {
	return &Driver{
		inner: inner,
		stats: make(map[string]*CallStats),
	}
}

// Inner returns the wrapped driver.
func (d *Driver) Inner() vector.Driver {
	return d.inner
}

// ThreadSafe forwards the inner driver's answer, defaulting to false.
func (d *Driver) ThreadSafe() bool {
	ts, ok := d.inner.(vector.ThreadSafety)
	return ok && ts.ThreadSafe()
}

func (d *Driver) record(method string, start time.Time, err error) {
	elapsed := time.Since(start)

	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.stats[method]
	if !ok {
		s = &CallStats{}
		d.stats[method] = s
	}
	if s.Calls == 0 {
		s.MinLatency = elapsed
	}
	s.Calls++
	s.TotalLatency += elapsed
	s.MinLatency = min(s.MinLatency, elapsed)
	s.MaxLatency = max(s.MaxLatency, elapsed)
	if err != nil {
		s.Errors++
	}
}

func (d *Driver) Dim() uint32 {
	start := time.Now()
	dim := d.inner.Dim()
	d.record(MethodDim, start, nil)
	return dim
}

func (d *Driver) IsOpen() bool {
	start := time.Now()
	open := d.inner.IsOpen()
	d.record(MethodIsOpen, start, nil)
	return open
}

func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	start := time.Now()
	err := d.inner.Add(ctx, docs)
	d.record(MethodAdd, start, err)
	return err
}

func (d *Driver) Query(ctx context.Context, embedding []float32, k int, filter vector.Filter) ([]vector.QueryResult, error) {
	start := time.Now()
	results, err := d.inner.Query(ctx, embedding, k, filter)
	d.record(MethodQuery, start, err)
	return results, err
}

func (d *Driver) Close() error {
	start := time.Now()
	err := d.inner.Close()
	d.record(MethodClose, start, err)
	return err
}

// Snapshot returns a copy of the per-method statistics.
func (d *Driver) Snapshot() map[string]CallStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]CallStats, len(d.stats))
	for method, s := range d.stats {
		out[method] = *s
	}
	return out
}

// Reset clears every recorded statistic.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.stats)
}

type callStatsJSON struct {
	Calls          uint64 `json:"calls"`
	Errors         uint64 `json:"errors"`
	TotalLatencyNs int64  `json:"total_latency_ns"`
	TotalLatency   string `json:"total_latency"`
	MeanLatencyNs  int64  `json:"mean_latency_ns"`
	MinLatencyNs   int64  `json:"min_latency_ns"`
	MaxLatencyNs   int64  `json:"max_latency_ns"`
}

// SnapshotJSON renders Snapshot as a JSON object keyed by method.
func (d *Driver) SnapshotJSON() ([]byte, error) {
	snap := d.Snapshot()
	out := make(map[string]callStatsJSON, len(snap))
	for method, s := range snap {
		out[method] = callStatsJSON{
			Calls:          s.Calls,
			Errors:         s.Errors,
			TotalLatencyNs: s.TotalLatency.Nanoseconds(),
			TotalLatency:   s.TotalLatency.String(),
			MeanLatencyNs:  s.MeanLatency().Nanoseconds(),
			MinLatencyNs:   s.MinLatency.Nanoseconds(),
			MaxLatencyNs:   s.MaxLatency.Nanoseconds(),
		}
	}
	return json.Marshal(out)
}
