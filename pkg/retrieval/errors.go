package retrieval

import "errors"

var (
	// ErrNotInitialized is returned by Retrieve before BindCorpus.
	ErrNotInitialized = errors.New("retrieval session not initialized")

	// ErrAlreadyInitialized is returned by a second BindCorpus.
	ErrAlreadyInitialized = errors.New("retrieval session already initialized")

	// ErrEmptyCorpus is returned by BindCorpus when given no documents.
	ErrEmptyCorpus = errors.New("empty corpus")

	// ErrEmptyQuery is returned by Retrieve when the session has no query embedding.
	ErrEmptyQuery = errors.New("empty query embedding")

	// ErrThresholdOutOfRange is returned for thresholds outside [-1, 1].
	ErrThresholdOutOfRange = errors.New("threshold out of range [-1, 1]")

	// ErrIndexOutOfRange is returned by Render for an index outside the
	// retrieved set.
	ErrIndexOutOfRange = errors.New("index out of range")
)
