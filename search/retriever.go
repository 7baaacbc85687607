package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/core"
)

const (
	// DefaultK is the number of documents returned when k is not positive.
	DefaultK = 4
	// DefaultMinScore is the relevance floor used when minScore is negative.
	DefaultMinScore = 0.20
	// DefaultOversampleFactor multiplies k to size the index search.
	DefaultOversampleFactor = 3
	// MaxK bounds the number of documents one retrieval returns. Larger
	// requests are capped.
	MaxK = 100
	// MaxOversampleFactor bounds the oversample factor.
	MaxOversampleFactor = 20
)

// Index is the part of the vector index the retriever needs.
type Index interface {
	Search(ctx context.Context, vector []float32, n int) ([]core.Candidate, error)
}

// Retriever finds the chunks most relevant to a query.
// It is safe for concurrent use.
type Retriever struct {
	index      Index
	embedder   ai.Embedder
	defaultK   int
	minScore   float64
	oversample int
	keywords   KeywordConfig
	logger     *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithDefaultK sets the number of results used when a caller passes k <= 0.
func WithDefaultK(k int) Option {
	return func(r *Retriever) error {
		if k <= 0 || k > MaxK {
			return fmt.Errorf("%w: default k must be in [1, %d], got %d", ErrInvalidConfig, MaxK, k)
		}
		r.defaultK = k
		return nil
	}
}

// WithMinScore sets the relevance floor used when a caller passes a
// negative minScore.
func WithMinScore(score float64) Option {
	return func(r *Retriever) error {
		if score < 0 || score > 1 {
			return fmt.Errorf("%w: min score must be in [0, 1], got %g", ErrInvalidConfig, score)
		}
		r.minScore = score
		return nil
	}
}

// WithOversampleFactor sets how many candidates per requested result are
// fetched from the index before filtering.
func WithOversampleFactor(factor int) Option {
	return func(r *Retriever) error {
		if factor < 1 || factor > MaxOversampleFactor {
			return fmt.Errorf("%w: oversample factor must be in [1, %d], got %d",
				ErrInvalidConfig, MaxOversampleFactor, factor)
		}
		r.oversample = factor
		return nil
	}
}

// WithKeywordConfig replaces the reranking and verification settings.
func WithKeywordConfig(cfg KeywordConfig) Option {
	return func(r *Retriever) error {
		r.keywords = cfg
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(index Index, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		index:      index,
		embedder:   embedder,
		defaultK:   DefaultK,
		minScore:   DefaultMinScore,
		oversample: DefaultOversampleFactor,
		keywords:   DefaultKeywordConfig(),
		logger:     slog.Default().With("component", "retriever"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// KeywordConfig returns the reranking and verification settings.
func (r *Retriever) KeywordConfig() KeywordConfig {
	return r.keywords
}

// Retrieve returns up to k chunks relevant to query, best first.
// k <= 0 uses the default k, k above MaxK is capped, and a negative
// minScore uses the default floor. A minScore of 0 keeps every
// non-negative match.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64) ([]core.ScoredChunk, error) {
	return r.RetrieveWithMonitor(ctx, query, k, minScore, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, query string, k int, minScore float64, monitor RetrievalMonitor) ([]core.ScoredChunk, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyQuery)
	}
	if k <= 0 {
		k = r.defaultK
	}
	k = min(k, MaxK)
	if minScore < 0 {
		minScore = r.minScore
	}
	monitor.Start(query, k, minScore)

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("failed to embed query", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	monitor.AfterEmbedding(len(vector))

	candidates, err := r.index.Search(ctx, vector, k*r.oversample)
	if err != nil {
		r.logger.Error("vector search failed", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	monitor.AfterIndexSearch(candidates)

	docs := make([]core.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		score := 1 - c.Distance
		if score < minScore {
			monitor.Rejected(c, score)
			continue
		}
		docs = append(docs, scoredChunk(c.Chunk, clampScore(score)))
	}

	docs = Rerank(query, docs, r.keywords)
	monitor.AfterRerank(docs)

	slices.SortStableFunc(docs, func(a, b core.ScoredChunk) int {
		return cmp.Compare(b.ScoreOr(0), a.ScoreOr(0))
	})
	if len(docs) > k {
		docs = docs[:k]
	}

	r.logger.Debug("retrieved documents",
		"candidates", len(candidates),
		"returned", len(docs),
		"k", k,
		"min_score", minScore)
	monitor.Finish(docs)
	return docs, nil
}

// Verify checks docs against query with the retriever's keyword settings.
func (r *Retriever) Verify(query string, docs []core.ScoredChunk) bool {
	return Verify(query, docs, r.keywords)
}

// scoredChunk converts a stored chunk into a retrieval result. The metadata
// is copied and always carries the chunk's identifying fields.
func scoredChunk(chunk *core.Chunk, score float64) core.ScoredChunk {
	metadata := make(map[string]string, len(chunk.Metadata)+4)
	for k, v := range chunk.Metadata {
		metadata[k] = v
	}
	metadata[core.MetaSource] = chunk.Source
	metadata[core.MetaDocumentID] = chunk.DocumentID
	metadata[core.MetaChunkIndex] = fmt.Sprint(chunk.ChunkIndex)
	metadata[core.MetaTotalChunks] = fmt.Sprint(chunk.TotalChunks)

	return core.ScoredChunk{
		ChunkID:  chunk.ID,
		Content:  chunk.Text,
		Metadata: metadata,
		Score:    &score,
	}
}
