// Package stack assembles the configured backend and its wrappers into one
// driver.
package stack

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papercomputeco/simstore/pkg/config"
	"github.com/papercomputeco/simstore/pkg/eventstream"
	"github.com/papercomputeco/simstore/pkg/eventstream/kafka"
	"github.com/papercomputeco/simstore/pkg/eventstream/nop"
	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/concurrent"
	"github.com/papercomputeco/simstore/pkg/vector/eventing"
	"github.com/papercomputeco/simstore/pkg/vector/instrumented"
	"github.com/papercomputeco/simstore/pkg/vector/registry"
)

// Stack is a built driver chain. From the outside in: eventing (optional),
// instrumented (optional), concurrent, backend.
type Stack struct {
	// Driver is the outermost layer. Close it to release the whole chain.
	Driver vector.Driver

	// Backend is the driver produced by the registry.
	Backend vector.Driver

	// Concurrent is the concurrency wrapper around Backend.
	Concurrent *concurrent.Driver

	// Instrumented is nil when metrics are disabled.
	Instrumented *instrumented.Driver

	// Metric is the configured metric.
	Metric vector.Metric
}

// Option customizes Build.
type Option func(*options)

type options struct {
	registry  *registry.Registry
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// WithRegistry selects the registry backends are made from. Defaults to
// registry.Default().
func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithPublisher overrides the publisher derived from the [events] section.
func WithPublisher(p eventstream.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithLogger sets the logger handed to every layer.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Build makes the backend named by cfg.VectorStore.Provider and wraps it.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*Stack, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = registry.Default()
	}
	log := logger.OrNop(o.logger)

	vc, err := cfg.VectorConfig()
	if err != nil {
		return nil, err
	}

	backend, err := o.registry.Make(ctx, cfg.VectorStore.Provider, vc)
	if err != nil {
		return nil, err
	}

	cd, err := concurrent.New(backend, vc.Workers, cfg.VectorStore.ThreadSafe, log)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}

	s := &Stack{
		Driver:     cd,
		Backend:    backend,
		Concurrent: cd,
		Metric:     vc.Metric,
	}

	if cfg.VectorStore.Metrics {
		s.Instrumented = instrumented.New(s.Driver)
		s.Driver = s.Instrumented
	}

	if cfg.VectorStore.Events {
		pub := o.publisher
		if pub == nil {
			pub, err = newPublisher(cfg.Events, log)
			if err != nil {
				return nil, errors.Join(err, s.Driver.Close())
			}
		}
		s.Driver = eventing.New(s.Driver, pub, cfg.VectorStore.Provider, log)
	}

	log.Info("vector store ready",
		"provider", cfg.VectorStore.Provider,
		"metric", vc.Metric.String(),
		"metrics", cfg.VectorStore.Metrics,
		"events", cfg.VectorStore.Events,
	)

	return s, nil
}

// newPublisher returns a Kafka publisher, or a discarding one when no
// brokers are configured.
func newPublisher(c config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	if len(c.Brokers) == 0 {
		log.Warn("events enabled without brokers, discarding events")
		return nop.NewPublisher(), nil
	}
	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.Brokers,
		Topic:   c.Topic,
		Logger:  log,
	})
	if err != nil {
		return nil, vector.InvalidConfigurationError("creating event publisher", err)
	}
	return pub, nil
}
