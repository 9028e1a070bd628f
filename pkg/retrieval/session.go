// Package retrieval binds a query to a corpus, keeps the documents whose
// cosine similarity clears a threshold and renders them as a bounded digest.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/papercomputeco/simstore/pkg/logger"
	"github.com/papercomputeco/simstore/pkg/vector"
	"github.com/papercomputeco/simstore/pkg/vector/flat"
)

const (
	// MaxExcerptRunes bounds each rendered page excerpt.
	MaxExcerptRunes = 512

	// MaxDigestRunes bounds the whole rendered digest.
	MaxDigestRunes = 4096

	ellipsis = "…"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = logger.OrNop(l) }
}

// WithExcerptRunes overrides MaxExcerptRunes.
func WithExcerptRunes(n int) Option {
	return func(s *Session) { s.excerptRunes = n }
}

// WithDigestRunes overrides MaxDigestRunes.
func WithDigestRunes(n int) Option {
	return func(s *Session) { s.digestRunes = n }
}

// Session holds one query and, once bound, one corpus. It is safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	query     string
	embedding []float32

	index     *flat.Driver
	bound     bool
	retrieved []vector.QueryResult

	excerptRunes int
	digestRunes  int
	logger       *slog.Logger
}

// NewSession creates a session for query. query may be empty when only the
// embedding is known.
func NewSession(query string, embedding []float32, opts ...Option) *Session {
	s := &Session{
		query:        query,
		embedding:    append([]float32(nil), embedding...),
		excerptRunes: MaxExcerptRunes,
		digestRunes:  MaxDigestRunes,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns the query text.
func (s *Session) Query() string {
	return s.query
}

// BindCorpus indexes docs under the cosine metric. It may succeed only once.
// Every embedding must match the query embedding length, or the first
// document's length when the session has no query embedding.
func (s *Session) BindCorpus(ctx context.Context, docs []vector.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bound {
		return ErrAlreadyInitialized
	}
	if len(docs) == 0 {
		return ErrEmptyCorpus
	}

	dim := len(s.embedding)
	if dim == 0 {
		dim = len(docs[0].Embedding)
	}
	if dim == 0 {
		return vector.NewDimensionError(uint32(len(s.embedding)), 0)
	}
	if err := vector.CheckAdd(uint32(dim), docs); err != nil {
		return err
	}

	index, err := flat.NewDriver(vector.Config{
		Dim:      uint32(dim),
		Metric:   vector.MetricCosine,
		Capacity: len(docs),
	}, s.logger)
	if err != nil {
		return err
	}
	if err := index.Add(ctx, docs); err != nil {
		_ = index.Close()
		return err
	}

	s.index = index
	s.bound = true

	s.logger.Debug("bound retrieval corpus",
		"documents", len(docs),
		"dimensions", dim,
	)
	return nil
}

// Retrieve returns every corpus document whose cosine similarity to the
// query is at least threshold, best first. Ties keep corpus order.
func (s *Session) Retrieve(ctx context.Context, threshold float32) ([]vector.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bound {
		return nil, ErrNotInitialized
	}
	if math.IsNaN(float64(threshold)) || threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("%w: %v", ErrThresholdOutOfRange, threshold)
	}
	if len(s.embedding) == 0 {
		return nil, ErrEmptyQuery
	}
	if s.index == nil {
		return nil, vector.ErrBackendClosed
	}

	ranked, err := s.index.Query(ctx, s.embedding, s.index.Len(), nil)
	if err != nil {
		return nil, err
	}

	// ranked is sorted descending, so the kept rows are a prefix.
	n := 0
	for n < len(ranked) && ranked[n].Score >= threshold {
		n++
	}
	s.retrieved = ranked[:n:n]

	s.logger.Debug("retrieved documents",
		"threshold", threshold,
		"candidates", len(ranked),
		"kept", n,
	)

	out := make([]vector.QueryResult, n)
	copy(out, s.retrieved)
	return out, nil
}

// Retrieved returns the result of the last Retrieve.
func (s *Session) Retrieved() []vector.QueryResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vector.QueryResult, len(s.retrieved))
	copy(out, s.retrieved)
	return out
}

// Render formats ranks 1 through index+1 of the retrieved set followed by
// the query text:
//
//	[1] (score=0.9731) first excerpt
//	[2] (score=0.8120) second excerpt
//	Query: original question
//
// Excerpts and the whole digest are truncated to their rune bounds. The query
// line is kept whole whenever it fits.
func (s *Session) Render(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.retrieved) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(s.retrieved))
	}

	var hits strings.Builder
	for i, r := range s.retrieved[:index+1] {
		if i > 0 {
			hits.WriteByte('\n')
		}
		fmt.Fprintf(&hits, "[%d] (score=%.4f) %s",
			i+1, r.Score, truncate(excerpt(r.Document.PageContent), s.excerptRunes))
	}

	tail := "\nQuery: " + s.query
	budget := s.digestRunes - utf8.RuneCountInString(tail)
	if budget <= 0 {
		return truncate(hits.String()+tail, s.digestRunes), nil
	}
	return truncate(hits.String(), budget) + tail, nil
}

// Close releases the index. The session cannot be bound again.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return nil
	}
	err := s.index.Close()
	s.index = nil
	return err
}

// excerpt collapses runs of whitespace so each hit stays on one line.
func excerpt(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + ellipsis
}
