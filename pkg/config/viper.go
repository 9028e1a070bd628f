package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/simstore/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by InitViper.
const EnvPrefix = "SIMSTORE"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the SIMSTORE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SIMSTORE_VECTOR_STORE_PROVIDER, SIMSTORE_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective Config from v.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Dim:        v.GetUint32("vector_store.dim"),
			Metric:     v.GetString("vector_store.metric"),
			Target:     v.GetString("vector_store.target"),
			Namespace:  v.GetString("vector_store.namespace"),
			Capacity:   v.GetInt("vector_store.capacity"),
			Workers:    v.GetInt("vector_store.workers"),
			ThreadSafe: v.GetBool("vector_store.thread_safe"),
			Metrics:    v.GetBool("vector_store.metrics"),
			Events:     v.GetBool("vector_store.events"),
			Options:    v.GetStringMapString("vector_store.options"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Events: EventsConfig{
			Brokers: splitList(strings.Join(v.GetStringSlice("events.brokers"), ",")),
			Topic:   v.GetString("events.topic"),
		},
	}
	if len(cfg.VectorStore.Options) == 0 {
		cfg.VectorStore.Options = nil
	}
	return cfg
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.dim", d.VectorStore.Dim)
	v.SetDefault("vector_store.metric", d.VectorStore.Metric)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.namespace", d.VectorStore.Namespace)
	v.SetDefault("vector_store.capacity", d.VectorStore.Capacity)
	v.SetDefault("vector_store.workers", d.VectorStore.Workers)
	v.SetDefault("vector_store.thread_safe", d.VectorStore.ThreadSafe)
	v.SetDefault("vector_store.metrics", d.VectorStore.Metrics)
	v.SetDefault("vector_store.events", d.VectorStore.Events)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Events
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
