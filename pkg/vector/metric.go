package vector

import (
	"fmt"
	"strings"
)

// Metric selects the function used to score a query against stored vectors.
type Metric int

const (
	// MetricL2 scores by squared Euclidean distance. Lower is more similar.
	MetricL2 Metric = iota

	// MetricInnerProduct scores by dot product. Higher is more similar.
	MetricInnerProduct

	// MetricCosine scores by cosine similarity in [-1, 1]. Higher is more similar.
	MetricCosine
)

// String returns the canonical configuration name of the metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricInnerProduct:
		return "ip"
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// HigherIsBetter reports whether a larger score means a more similar document.
func (m Metric) HigherIsBetter() bool {
	return m == MetricInnerProduct || m == MetricCosine
}

// Better reports whether score a ranks strictly before score b under m.
func (m Metric) Better(a, b float32) bool {
	if m.HigherIsBetter() {
		return a > b
	}
	return a < b
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	return m >= MetricL2 && m <= MetricCosine
}

// ParseMetric parses a metric name case-insensitively. The empty string
// parses as MetricL2.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "ip", "inner_product", "inner-product", "innerproduct", "dot":
		return MetricInnerProduct, nil
	case "cosine", "cos":
		return MetricCosine, nil
	default:
		return 0, NewConfigError("metric", fmt.Sprintf("unsupported metric %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, NewConfigError("metric", fmt.Sprintf("unsupported metric %d", int(m)))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
