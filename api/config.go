// Package api provides the HTTP surface over one vector driver: inserts,
// top-k queries, threshold retrieval sessions, call statistics and a
// Prometheus scrape endpoint.
package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/simstore/pkg/vector"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8082")
	ListenAddr string

	// Backend names the driver in responses and logs.
	Backend string

	// Metric is the driver's metric, reported with query results.
	Metric vector.Metric

	// Gatherer serves /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}
