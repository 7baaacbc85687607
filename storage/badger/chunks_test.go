package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunkRepo(t *testing.T) (storage.ChunkRepository, *Backend) {
	t.Helper()
	chunkRepo, sessionRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		sessionRepo.Close()
		chunkRepo.Close()
		backend.Close()
	})
	return chunkRepo, backend
}

func makeChunk(docID string, index, total int, text string, vector ...float32) *core.Chunk {
	return &core.Chunk{
		ID:          fmt.Sprintf("%s_%d", docID, index),
		DocumentID:  docID,
		Source:      docID + ".txt",
		ChunkIndex:  index,
		TotalChunks: total,
		Text:        text,
		Metadata:    map[string]string{core.MetaFileType: ".txt"},
		Vector:      vector,
	}
}

func TestChunkRepository_UpsertAndSearch(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	err := repo.Upsert(ctx,
		makeChunk("doc", 0, 3, "first", 1, 0, 0),
		makeChunk("doc", 1, 3, "second", 0.9, 0.1, 0),
		makeChunk("doc", 2, 3, "third", 0, 0, 1),
	)
	require.NoError(t, err)

	results, err := repo.Search(ctx, []float32{2, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "first", results[0].Chunk.Text)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	assert.Equal(t, "second", results[1].Chunk.Text)
	assert.Equal(t, "third", results[2].Chunk.Text)
	assert.InDelta(t, 1.0, results[2].Distance, 1e-6)

	for i := 0; i < len(results)-1; i++ {
		assert.LessOrEqual(t, results[i].Distance, results[i+1].Distance)
	}
}

func TestChunkRepository_StoresUnitVectors(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, makeChunk("doc", 0, 1, "text", 3, 4)))

	chunks, err := repo.GetChunks(ctx, "doc_0")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.InDelta(t, 0.6, chunks[0].Vector[0], 1e-6)
	assert.InDelta(t, 0.8, chunks[0].Vector[1], 1e-6)
	assert.False(t, chunks[0].InsertedAt.IsZero())
}

func TestChunkRepository_SearchLimitAndTies(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, repo.Upsert(ctx, makeChunk(fmt.Sprintf("doc%d", i), 0, 1, "same", 1, 1)))
	}

	results, err := repo.Search(ctx, []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// equal distances keep insertion order
	assert.Equal(t, "doc0", results[0].Chunk.DocumentID)
	assert.Equal(t, "doc1", results[1].Chunk.DocumentID)
	assert.Equal(t, "doc2", results[2].Chunk.DocumentID)

	results, err = repo.Search(ctx, []float32{1, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChunkRepository_SearchEmptyIndex(t *testing.T) {
	repo, _ := newTestChunkRepo(t)

	results, err := repo.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestChunkRepository_DimensionMismatch(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, makeChunk("doc", 0, 1, "text", 1, 0, 0)))

	err := repo.Upsert(ctx, makeChunk("other", 0, 1, "text", 1, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = repo.Search(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestChunkRepository_UpsertIsAtomic(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	err := repo.Upsert(ctx,
		makeChunk("doc", 0, 2, "good", 1, 0),
		makeChunk("doc", 1, 2, "bad dimension", 1, 0, 0),
	)
	require.Error(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}

func TestChunkRepository_UpsertValidation(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		chunk *core.Chunk
	}{
		{"blank text", makeChunk("doc", 0, 1, "  ", 1)},
		{"no vector", makeChunk("doc", 0, 1, "text")},
		{"index out of range", makeChunk("doc", 3, 1, "text", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Upsert(ctx, tt.chunk)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestChunkRepository_UpsertReplacesExisting(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, makeChunk("a", 0, 1, "old", 1, 0)))
	require.NoError(t, repo.Upsert(ctx, makeChunk("b", 0, 1, "other", 0, 1)))
	require.NoError(t, repo.Upsert(ctx, makeChunk("a", 0, 1, "new", 1, 0)))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, TestCollection, stats.Name)

	chunks, err := repo.GetChunks(ctx, "a_0")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "new", chunks[0].Text)

	// the replaced chunk moves to the end of insertion order
	ids, err := repo.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b_0", "a_0"}, ids)
}

func TestChunkRepository_Delete(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("doc", 0, 2, "one", 1, 0),
		makeChunk("doc", 1, 2, "two", 0, 1),
	))

	removed, err := repo.Delete(ctx, "doc_0", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	chunks, err := repo.GetChunks(ctx, "doc_0", "doc_1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc_1", chunks[0].ID)
}

func TestChunkRepository_DeleteDocument(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("doc1", 0, 2, "one", 1, 0),
		makeChunk("doc1", 1, 2, "two", 1, 0),
		makeChunk("doc10", 0, 1, "three", 0, 1),
	))

	removed, err := repo.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ids, err := repo.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc10_0"}, ids)

	_, err = repo.DeleteDocument(ctx, "doc1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestChunkRepository_ListDocuments(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("b", 0, 2, "one", 1, 0),
		makeChunk("a", 0, 1, "two", 1, 0),
		makeChunk("b", 1, 2, "three", 0, 1),
	))

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].DocumentID)
	assert.Equal(t, 2, docs[0].ChunkCount)
	assert.Equal(t, "b.txt", docs[0].Source)
	assert.Equal(t, ".txt", docs[0].FileType)
	assert.Equal(t, "a", docs[1].DocumentID)
	assert.Equal(t, 1, docs[1].ChunkCount)
}

func TestChunkRepository_Clear(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx,
		makeChunk("doc", 0, 2, "one", 1, 0),
		makeChunk("doc", 1, 2, "two", 0, 1),
	))

	count, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)

	// clearing also forgets the dimension
	require.NoError(t, repo.Upsert(ctx, makeChunk("doc", 0, 1, "wider", 1, 0, 0, 0)))
}

func TestChunkRepository_CollectionsAreIsolated(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	first, err := NewChunkRepository(backend, "first")
	require.NoError(t, err)
	defer first.Close()
	second, err := NewChunkRepository(backend, "second")
	require.NoError(t, err)
	defer second.Close()

	ctx := context.Background()
	require.NoError(t, first.Upsert(ctx, makeChunk("doc", 0, 1, "text", 1, 0)))
	require.NoError(t, second.Upsert(ctx, makeChunk("doc", 0, 1, "text", 1, 0, 0)))

	_, err = second.Clear(ctx)
	require.NoError(t, err)

	stats, err := first.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestChunkRepository_ConcurrentUpserts(t *testing.T) {
	repo, _ := newTestChunkRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", i)
			assert.NoError(t, repo.Upsert(ctx,
				makeChunk(doc, 0, 2, "one", 1, float32(i)),
				makeChunk(doc, 1, 2, "two", float32(i), 1),
			))
		}(i)
	}
	wg.Wait()

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, stats.Count)

	docs, err := repo.ListDocuments(ctx)
	require.NoError(t, err)
	for _, doc := range docs {
		assert.Equal(t, 2, doc.ChunkCount, doc.DocumentID)
	}
}
