package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent simstore configuration stored as
// config.toml in the .simstore/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	API         APIConfig         `toml:"api"`
	Events      EventsConfig      `toml:"events"`
}

// VectorStoreConfig selects and configures the storage backend and the
// wrappers layered over it.
type VectorStoreConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Dim       uint32 `toml:"dim,omitempty"`
	Metric    string `toml:"metric,omitempty"`
	Target    string `toml:"target,omitempty"`
	Namespace string `toml:"namespace,omitempty"`
	Capacity  int    `toml:"capacity,omitempty"`
	Workers   int    `toml:"workers,omitempty"`

	// ThreadSafe declares that the backend tolerates concurrent queries.
	ThreadSafe bool `toml:"thread_safe"`

	// Metrics wraps the backend with call instrumentation.
	Metrics bool `toml:"metrics"`

	// Events publishes a change event after each insert.
	Events bool `toml:"events"`

	Options map[string]string `toml:"options,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventsConfig holds change feed settings.
type EventsConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.dim": {
		get: func(c *Config) string {
			if c.VectorStore.Dim == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.VectorStore.Dim), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for vector_store.dim: %w", err)
			}
			c.VectorStore.Dim = uint32(n)
			return nil
		},
	},
	"vector_store.metric":      stringKey(func(c *Config) *string { return &c.VectorStore.Metric }),
	"vector_store.target":      stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.namespace":   stringKey(func(c *Config) *string { return &c.VectorStore.Namespace }),
	"vector_store.capacity":    intKey("vector_store.capacity", func(c *Config) *int { return &c.VectorStore.Capacity }),
	"vector_store.workers":     intKey("vector_store.workers", func(c *Config) *int { return &c.VectorStore.Workers }),
	"vector_store.thread_safe": boolKey("vector_store.thread_safe", func(c *Config) *bool { return &c.VectorStore.ThreadSafe }),
	"vector_store.metrics":     boolKey("vector_store.metrics", func(c *Config) *bool { return &c.VectorStore.Metrics }),
	"vector_store.events":      boolKey("vector_store.events", func(c *Config) *bool { return &c.VectorStore.Events }),
	"api.listen":               stringKey(func(c *Config) *string { return &c.API.Listen }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = splitList(v)
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
