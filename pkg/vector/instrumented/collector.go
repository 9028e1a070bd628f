package instrumented

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	callsDesc = prometheus.NewDesc(
		"simstore_backend_calls_total",
		"Calls delegated to the storage backend.",
		[]string{"method"}, nil,
	)
	errorsDesc = prometheus.NewDesc(
		"simstore_backend_errors_total",
		"Delegated calls that returned an error.",
		[]string{"method"}, nil,
	)
	latencyDesc = prometheus.NewDesc(
		"simstore_backend_latency_seconds_total",
		"Cumulative time spent in delegated calls.",
		[]string{"method"}, nil,
	)
	minLatencyDesc = prometheus.NewDesc(
		"simstore_backend_latency_min_seconds",
		"Fastest delegated call.",
		[]string{"method"}, nil,
	)
	maxLatencyDesc = prometheus.NewDesc(
		"simstore_backend_latency_max_seconds",
		"Slowest delegated call.",
		[]string{"method"}, nil,
	)
)

var _ prometheus.Collector = (*Driver)(nil)

// Describe implements prometheus.Collector.
func (d *Driver) Describe(ch chan<- *prometheus.Desc) {
	ch <- callsDesc
	ch <- errorsDesc
	ch <- latencyDesc
	ch <- minLatencyDesc
	ch <- maxLatencyDesc
}

// Collect implements prometheus.Collector from a point-in-time snapshot.
func (d *Driver) Collect(ch chan<- prometheus.Metric) {
	for method, s := range d.Snapshot() {
		ch <- prometheus.MustNewConstMetric(callsDesc, prometheus.CounterValue, float64(s.Calls), method)
		ch <- prometheus.MustNewConstMetric(errorsDesc, prometheus.CounterValue, float64(s.Errors), method)
		ch <- prometheus.MustNewConstMetric(latencyDesc, prometheus.CounterValue, s.TotalLatency.Seconds(), method)
		ch <- prometheus.MustNewConstMetric(minLatencyDesc, prometheus.GaugeValue, s.MinLatency.Seconds(), method)
		ch <- prometheus.MustNewConstMetric(maxLatencyDesc, prometheus.GaugeValue, s.MaxLatency.Seconds(), method)
	}
}
