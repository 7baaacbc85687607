// Package embedcache memoizes embeddings in an expiring LRU cache.
package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/poiesic/ragbot/ai"
)

// Wrap returns an Embedder that caches up to size embeddings for ttl.
// A non-positive size or ttl returns e unchanged.
func Wrap(e ai.Embedder, size int, ttl time.Duration) ai.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: slog.Default().With("component", "embedding-cache"),
	}
}

type lruEmbedder struct {
	next   ai.Embedder
	cache  *expirable.LRU[string, []float32]
	logger *slog.Logger
}

func (l *lruEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := l.cache.Get(text); ok {
		l.logger.Debug("embedding cache hit")
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	l.cache.Add(text, cloneEmbedding(res))
	return res, nil
}

// EmbedTexts serves cached texts directly and embeds the rest in one batch.
func (l *lruEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if cached, ok := l.cache.Get(text); ok {
			result[i] = cloneEmbedding(cached)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		l.logger.Debug("embedding cache hit", "count", len(texts))
		return result, nil
	}

	embedded, err := l.next.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(missing) {
		return nil, fmt.Errorf("embedding cache: got %d embeddings for %d texts", len(embedded), len(missing))
	}
	for j, vec := range embedded {
		result[missingIdx[j]] = vec
		l.cache.Add(missing[j], cloneEmbedding(vec))
	}
	return result, nil
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
