// Package eventing wraps a driver and publishes a change event after every
// successful insert.
package eventing

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/simstore/pkg/eventstream"
	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
)

var _ vector.Driver = (*Driver)(nil)

// Driver forwards every call to the inner driver. After an Add succeeds it
// publishes a DocumentsInsertedEvent; a publish failure is logged and does
// not fail the Add.
type Driver struct {
	inner     vector.Driver
	publisher eventstream.Publisher
	backend   string
	logger    *slog.Logger
}

// New wraps inner. backend names the store in emitted events.
func New(inner vector.Driver, publisher eventstream.Publisher, backend string, log *slog.Logger) *Driver {
	return &Driver{
		inner:     inner,
		publisher: publisher,
		backend:   backend,
		logger:    logger.OrNop(log),
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

func (d *Driver) Dim() uint32 { return d.inner.Dim() }

func (d *Driver) IsOpen() bool { return d.inner.IsOpen() }

// Add stores docs and then publishes them. Empty batches publish nothing.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if err := d.inner.Add(ctx, docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	event := eventstream.NewDocumentsInsertedEvent(d.backend, docs)
	if err := d.publisher.PublishDocuments(ctx, event); err != nil {
		d.logger.Warn("failed to publish documents event",
			"backend", d.backend,
			"event_id", event.EventID,
			"count", event.Count,
			"error", err,
		)
	}
	return nil
}

func (d *Driver) Query(ctx context.Context, embedding []float32, k int, filter vector.Filter) ([]vector.QueryResult, error) {
	return d.inner.Query(ctx, embedding, k, filter)
}

// Close closes the inner driver, then the publisher. The first error wins.
func (d *Driver) Close() error {
	err := d.inner.Close()
	if perr := d.publisher.Close(); err == nil {
		err = perr
	}
	return err
}
