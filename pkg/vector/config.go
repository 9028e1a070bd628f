package vector

import (
	"strconv"
	"time"
)

// Config is the structured configuration every driver factory receives.
// Fields not used by a backend are ignored by it.
type Config struct {
	// Dim is the embedding dimension. Required, must be positive.
	Dim uint32

	// Metric is the scoring function.
	Metric Metric

	// Target is the backend endpoint: a URL, DSN, host:port or file path.
	Target string

	// Namespace is the table, index or collection name.
	Namespace string

	// Capacity is an optional initial capacity hint, in documents.
	Capacity int

	// Workers is an optional worker-count hint for parallel work.
	Workers int

	// Options holds backend-specific settings.
	Options map[string]string
}

// Validate checks the fields shared by every backend.
func (c Config) Validate() error {
	if c.Dim == 0 {
		return NewConfigError("dim", "must be a positive integer")
	}
	if !c.Metric.Valid() {
		return NewConfigError("metric", "unsupported metric "+c.Metric.String())
	}
	if c.Capacity < 0 {
		return NewConfigError("capacity", "must not be negative")
	}
	if c.Workers < 0 {
		return NewConfigError("workers", "must not be negative")
	}
	return nil
}

// Option returns Options[key], or def when unset or empty.
func (c Config) Option(key, def string) string {
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// IntOption parses Options[key] as an integer, returning def when unset.
func (c Config) IntOption(key string, def int) (int, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, NewConfigError("options."+key, "not an integer: "+v)
	}
	return n, nil
}

// BoolOption parses Options[key] as a boolean, returning def when unset.
func (c Config) BoolOption(key string, def bool) (bool, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, NewConfigError("options."+key, "not a boolean: "+v)
	}
	return b, nil
}

// DurationOption parses Options[key] as a time.Duration, returning def when unset.
func (c Config) DurationOption(key string, def time.Duration) (time.Duration, error) {
	v, ok := c.Options[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, NewConfigError("options."+key, "not a duration: "+v)
	}
	return d, nil
}
