package eventstream

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/simstore/pkg/vector"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentsInserted is emitted after a batch is stored.
	EventTypeDocumentsInserted = "simstore.documents.inserted"
)

// DocumentsInsertedEvent is a transport-neutral event payload for a stored
// batch of documents.
type DocumentsInsertedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Backend       string          `json:"backend"`
	Count         int             `json:"count"`
	Documents     []EventDocument `json:"documents"`
}

// EventDocument is a stored document without its embedding.
type EventDocument struct {
	PageContent string            `json:"page_content"`
	Metadata    map[string]string `json:"metadata"`
}

// NewDocumentsInsertedEvent builds an event for docs stored in backend.
func NewDocumentsInsertedEvent(backend string, docs []vector.Document) *DocumentsInsertedEvent {
	out := make([]EventDocument, len(docs))
	for i, doc := range docs {
		md := maps.Clone(doc.Metadata)
		if md == nil {
			md = map[string]string{}
		}
		out[i] = EventDocument{PageContent: doc.PageContent, Metadata: md}
	}

	return &DocumentsInsertedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentsInserted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Backend:       backend,
		Count:         len(docs),
		Documents:     out,
	}
}
