package config

const (
	defaultVectorProvider = "flat"
	defaultMetric         = "cosine"
	defaultAPIListen      = ":8082"
	defaultEventsTopic    = "simstore.documents"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
//
// Dim has no default: it must come from the config file, a flag, or the
// loaded corpus.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Metric:     defaultMetric,
			ThreadSafe: true,
			Metrics:    true,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Events: EventsConfig{
			Topic: defaultEventsTopic,
		},
	}
}
