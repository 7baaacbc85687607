package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingFailed wraps failures of the embedding service.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrPipelineClosed is returned after Release.
	ErrPipelineClosed = errors.New("ingestion pipeline closed")
)
