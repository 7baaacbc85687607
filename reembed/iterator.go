package reembed

import (
	"context"

	"github.com/poiesic/ragbot/core"
)

// DefaultBatchSize is the default number of chunks fetched and embedded together.
const DefaultBatchSize = 100

// ChunkIterator walks a snapshot of the index in batches.
type ChunkIterator struct {
	index     Index
	batchSize int
}

// NewChunkIterator creates an iterator. A non-positive batchSize uses
// DefaultBatchSize.
func NewChunkIterator(index Index, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{
		index:     index,
		batchSize: batchSize,
	}
}

// Snapshot returns the chunk IDs present now, split into batches.
func (it *ChunkIterator) Snapshot(ctx context.Context) ([][]string, error) {
	ids, err := it.index.ChunkIDs(ctx)
	if err != nil {
		return nil, err
	}
	var batches [][]string
	for i := 0; i < len(ids); i += it.batchSize {
		batches = append(batches, ids[i:min(i+it.batchSize, len(ids))])
	}
	return batches, nil
}

// ForEach calls fn with each batch of chunks in snapshot order. Chunks
// removed after the snapshot are left out of their batch.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	batches, err := it.Snapshot(ctx)
	if err != nil {
		return err
	}
	for _, ids := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunks, err := it.index.GetChunks(ctx, ids...)
		if err != nil {
			return err
		}
		if err := fn(chunks); err != nil {
			return err
		}
	}
	return nil
}
