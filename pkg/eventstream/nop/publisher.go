// Package nop provides an eventstream publisher that discards events.
package nop

import (
	"context"

	"github.com/papercomputeco/simstore/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishDocuments validates input and otherwise does nothing.
func (p *Publisher) PublishDocuments(_ context.Context, event *eventstream.DocumentsInsertedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
