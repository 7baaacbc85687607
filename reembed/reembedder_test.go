package reembed

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragbot/ai/mock"
	"github.com/poiesic/ragbot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(batchSize, workers int) *Config {
	return &Config{
		BatchSize:      batchSize,
		ReportInterval: batchSize,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		Workers:        workers,
	}
}

func TestNewReembedder(t *testing.T) {
	index := setupTestIndex(t)

	_, err := NewReembedder(nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewReembedder(index, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(index, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_Run(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(map[int]string{1: "sequential", 4: "concurrent"}[workers], func(t *testing.T) {
			index := setupTestIndex(t)
			ids := seedChunks(t, index, 10)
			ctx := context.Background()

			var buf bytes.Buffer
			embedder := newTestEmbedder()
			r, err := NewReembedder(index, embedder, testConfig(3, workers), &buf)
			require.NoError(t, err)
			require.NoError(t, r.Run(ctx))

			chunks := loadChunks(t, index, ids...)
			for _, chunk := range chunks {
				assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, chunk.Vector, 1e-6, chunk.ID)
				assert.Equal(t, 1, chunk.TotalChunks, "metadata preserved")
			}
			assert.Equal(t, 4, embedder.CallCount(), "one call per batch")

			stored, err := index.ChunkIDs(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, ids, stored, "no chunks added or lost")

			output := buf.String()
			assert.Contains(t, output, "Starting reembedding of 10 chunks (batch size: 3")
			assert.Contains(t, output, "10/10")
			assert.Contains(t, output, "Reembedding complete. Processed 10 chunks")
		})
	}
}

func TestReembedder_EmptyIndex(t *testing.T) {
	var buf bytes.Buffer
	embedder := newTestEmbedder()
	r, err := NewReembedder(setupTestIndex(t), embedder, nil, &buf)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	assert.Contains(t, buf.String(), "No chunks found")
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_EmbeddingError(t *testing.T) {
	index := setupTestIndex(t)
	ids := seedChunks(t, index, 10)

	expectedErr := errors.New("model unavailable")
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, expectedErr
	}

	var buf bytes.Buffer
	r, err := NewReembedder(index, embedder, testConfig(2, 1), &buf)
	require.NoError(t, err)

	err = r.Run(context.Background())
	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "failed to process batch")
	assert.Equal(t, 3, embedder.CallCount(), "remaining batches are cancelled")
	assert.NotContains(t, buf.String(), "Reembedding complete")

	for _, chunk := range loadChunks(t, index, ids...) {
		assert.Equal(t, []float32{1, 0, 0}, chunk.Vector)
	}
}

func TestReembedder_PartialFailureKeepsFinishedBatches(t *testing.T) {
	index := setupTestIndex(t)
	ids := seedChunks(t, index, 6)

	var calls atomic.Int32
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) > 1 {
			return nil, core.ErrValidation
		}
		return [][]float32{{0, 1, 0}, {0, 1, 0}}, nil
	}

	r, err := NewReembedder(index, embedder, testConfig(2, 1), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Run(context.Background()), core.ErrValidation)

	chunks := loadChunks(t, index, ids...)
	assert.Equal(t, []float32{0, 1, 0}, chunks[0].Vector)
	assert.Equal(t, []float32{0, 1, 0}, chunks[1].Vector)
	assert.Equal(t, []float32{1, 0, 0}, chunks[2].Vector)
}

func TestReembedder_ListingError(t *testing.T) {
	expectedErr := errors.New("scan failed")
	r, err := NewReembedder(&failingIndex{Index: setupTestIndex(t), idsErr: expectedErr}, newTestEmbedder(), nil, nil)
	require.NoError(t, err)

	err = r.Run(context.Background())
	assert.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "failed to list chunks")
}

func TestReembedder_ContextCancellation(t *testing.T) {
	index := setupTestIndex(t)
	seedChunks(t, index, 20)

	ctx, cancel := context.WithCancel(context.Background())
	embed := newTestEmbedder().EmbedTextsFunc
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		cancel()
		return embed(ctx, texts)
	}

	r, err := NewReembedder(index, embedder, testConfig(2, 1), nil)
	require.NoError(t, err)

	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, embedder.CallCount(), 10)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DefaultBatchSize, config.BatchSize)
	assert.Greater(t, config.ReportInterval, 0)
	assert.Greater(t, config.MaxRetries, 0)
	assert.Greater(t, config.RetryDelay, time.Duration(0))
	assert.Greater(t, config.Workers, 0)
}
