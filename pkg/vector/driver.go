// Package vector provides the document model, the storage driver contract and
// the error taxonomy shared by every simstore backend and decorator.
package vector

import (
	"context"
	"maps"
)

// Document is the unit of storage: text, an optional embedding and free-form
// string metadata.
type Document struct {
	// PageContent is the raw text of the document.
	PageContent string

	// Embedding is the vector representation of the document content.
	// A nil Embedding means the document has not been embedded yet and
	// cannot be added to a Driver.
	Embedding []float32

	// Metadata holds arbitrary string attributes used for filtering.
	// nil and empty Metadata are the same value; the codec and Clone
	// produce the empty map.
	Metadata map[string]string
}

// Clone returns a deep copy of the document with nil Metadata replaced by an
// empty map.
func (d Document) Clone() Document {
	out := Document{PageContent: d.PageContent}
	if d.Embedding != nil {
		out.Embedding = make([]float32, len(d.Embedding))
		copy(out.Embedding, d.Embedding)
	}
	out.Metadata = maps.Clone(d.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

// QueryResult represents a search result with its score.
//
// The meaning of Score depends on the driver's Metric: for L2 it is a squared
// distance (lower is more similar), for inner product and cosine it is a
// similarity (higher is more similar). See Metric.HigherIsBetter.
type QueryResult struct {
	Document Document

	Score float32
}

// Filter is a conjunction of exact metadata equality constraints.
// A nil or empty Filter matches every document.
type Filter map[string]string

// Matches reports whether metadata satisfies every constraint in f.
func (f Filter) Matches(metadata map[string]string) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Driver handles storage and retrieval of embedded documents.
type Driver interface {
	// Dim returns the embedding dimension fixed at construction.
	Dim() uint32

	// IsOpen reports whether the driver has not been closed yet.
	IsOpen() bool

	// Add stores documents with their embeddings. Every embedding must have
	// length Dim(); otherwise the whole batch is rejected with
	// ErrDimensionMismatch and nothing is stored.
	Add(ctx context.Context, docs []Document) error

	// Query finds the k documents most similar to embedding, restricted to
	// documents matching filter, ordered according to the driver's metric.
	// A k larger than the corpus returns every match; k <= 0 returns an
	// empty slice.
	Query(ctx context.Context, embedding []float32, k int, filter Filter) ([]QueryResult, error)

	// Close releases any resources held by the driver. Close is idempotent.
	Close() error
}

// ThreadSafety is implemented by drivers that can report whether concurrent
// Query calls are safe without external locking.
type ThreadSafety interface {
	ThreadSafe() bool
}

// CheckAdd validates a batch against the driver dimension. It returns nil for
// an empty batch.
func CheckAdd(dim uint32, docs []Document) error {
	for _, doc := range docs {
		if uint32(len(doc.Embedding)) != dim {
			return NewDimensionError(dim, len(doc.Embedding))
		}
	}
	return nil
}

// CheckQuery validates a query embedding against the driver dimension.
func CheckQuery(dim uint32, embedding []float32) error {
	if uint32(len(embedding)) != dim {
		return NewDimensionError(dim, len(embedding))
	}
	return nil
}

// Wrapper is implemented by decorators that delegate to another driver.
type Wrapper interface {
	Inner() Driver
}

// Find walks the decorator chain starting at d and returns the first driver
// of type T.
func Find[T any](d Driver) (T, bool) {
	for d != nil {
		if t, ok := d.(T); ok {
			return t, true
		}
		w, ok := d.(Wrapper)
		if !ok {
			break
		}
		d = w.Inner()
	}
	var zero T
	return zero, false
}
