package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/core"
)

// Index is the part of the chunk store that reembedding needs.
type Index interface {
	ChunkIDs(ctx context.Context) ([]string, error)
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)
	Upsert(ctx context.Context, chunks ...*core.Chunk) error
}

// BatchProcessor embeds batches of chunks and writes them back.
type BatchProcessor struct {
	index          Index
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(index Index, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		index:          index,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds chunks from their text and upserts them under the same
// IDs in one write. Vectors are normalized before storage.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	updated := make([]*core.Chunk, len(chunks))
	for i, chunk := range chunks {
		c := *chunk
		c.Vector = core.NormalizeVector(embeddings[i])
		updated[i] = &c
	}

	if err := bp.index.Upsert(ctx, updated...); err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	return nil
}
