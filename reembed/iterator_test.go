package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
	"github.com/poiesic/ragbot/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestIndex(t *testing.T) storage.ChunkRepository {
	t.Helper()
	chunks, sessions, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		sessions.Close()
		chunks.Close()
		backend.Close()
	})
	return chunks
}

// seedChunks stores n single-chunk documents with a placeholder 3-d vector.
func seedChunks(t *testing.T, index storage.ChunkRepository, n int) []string {
	t.Helper()
	ids := make([]string, n)
	chunks := make([]*core.Chunk, n)
	for i := range n {
		docID := fmt.Sprintf("doc%03d", i)
		ids[i] = docID + "_0"
		chunks[i] = &core.Chunk{
			ID:          ids[i],
			DocumentID:  docID,
			Source:      docID + ".txt",
			TotalChunks: 1,
			Text:        fmt.Sprintf("chunk text %d", i),
			Vector:      []float32{1, 0, 0},
		}
	}
	require.NoError(t, index.Upsert(context.Background(), chunks...))
	return ids
}

// failingIndex wraps an index and fails selected calls.
type failingIndex struct {
	Index
	idsErr    error
	getErr    error
	upsertErr error
}

func (f *failingIndex) ChunkIDs(ctx context.Context) ([]string, error) {
	if f.idsErr != nil {
		return nil, f.idsErr
	}
	return f.Index.ChunkIDs(ctx)
}

func (f *failingIndex) GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.Index.GetChunks(ctx, ids...)
}

func (f *failingIndex) Upsert(ctx context.Context, chunks ...*core.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Index.Upsert(ctx, chunks...)
}

func TestChunkIterator_Snapshot(t *testing.T) {
	index := setupTestIndex(t)
	ids := seedChunks(t, index, 5)

	batches, err := NewChunkIterator(index, 2).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{ids[0:2], ids[2:4], ids[4:5]}, batches)
}

func TestChunkIterator_ForEach(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		batchSize int
		expected  []int
	}{
		{"exact multiple", 10, 5, []int{5, 5}},
		{"remainder", 10, 3, []int{3, 3, 3, 1}},
		{"single batch", 10, 100, []int{10}},
		{"default batch size", 10, 0, []int{10}},
		{"empty index", 0, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := setupTestIndex(t)
			ids := seedChunks(t, index, tt.total)

			var sizes []int
			var seen []string
			err := NewChunkIterator(index, tt.batchSize).ForEach(context.Background(), func(chunks []*core.Chunk) error {
				sizes = append(sizes, len(chunks))
				for _, c := range chunks {
					seen = append(seen, c.ID)
				}
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.expected, sizes)
			if tt.total > 0 {
				assert.Equal(t, ids, seen, "chunks are visited in insertion order")
			}
		})
	}
}

func TestChunkIterator_SkipsDeletedChunks(t *testing.T) {
	index := setupTestIndex(t)
	ids := seedChunks(t, index, 4)
	ctx := context.Background()

	count := 0
	err := NewChunkIterator(index, 2).ForEach(ctx, func(chunks []*core.Chunk) error {
		if count == 0 {
			_, err := index.Delete(ctx, ids[3])
			require.NoError(t, err)
		}
		count += len(chunks)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestChunkIterator_Errors(t *testing.T) {
	index := setupTestIndex(t)
	seedChunks(t, index, 6)
	ctx := context.Background()

	t.Run("callback error stops iteration", func(t *testing.T) {
		expectedErr := errors.New("callback failed")
		calls := 0
		err := NewChunkIterator(index, 2).ForEach(ctx, func([]*core.Chunk) error {
			calls++
			return expectedErr
		})
		assert.ErrorIs(t, err, expectedErr)
		assert.Equal(t, 1, calls)
	})

	t.Run("listing error", func(t *testing.T) {
		expectedErr := errors.New("scan failed")
		err := NewChunkIterator(&failingIndex{Index: index, idsErr: expectedErr}, 2).
			ForEach(ctx, func([]*core.Chunk) error { return nil })
		assert.ErrorIs(t, err, expectedErr)
	})

	t.Run("fetch error", func(t *testing.T) {
		expectedErr := errors.New("read failed")
		err := NewChunkIterator(&failingIndex{Index: index, getErr: expectedErr}, 2).
			ForEach(ctx, func([]*core.Chunk) error { return nil })
		assert.ErrorIs(t, err, expectedErr)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := NewChunkIterator(index, 2).ForEach(ctx, func([]*core.Chunk) error {
			calls++
			cancel()
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}
