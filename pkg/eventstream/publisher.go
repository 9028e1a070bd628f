package eventstream

import "context"

// Publisher publishes document events to an event stream backend.
type Publisher interface {
	PublishDocuments(ctx context.Context, event *DocumentsInsertedEvent) error
	Close() error
}
