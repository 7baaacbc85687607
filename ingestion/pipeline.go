package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/chunking"
	"github.com/poiesic/ragbot/core"
	"github.com/poiesic/ragbot/extract"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 32

// Index is the part of the vector index the pipeline writes to.
type Index interface {
	Upsert(ctx context.Context, chunks ...*core.Chunk) error
}

// Pipeline orchestrates chunking, embedding and indexing of documents.
// It is safe for concurrent use.
type Pipeline struct {
	index     Index
	embedder  ai.Embedder
	chunker   *chunking.Chunker
	fetcher   *extract.Fetcher
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		c, err := chunking.New(size, overlap, chunking.WithLogger(p.logger))
		if err != nil {
			return err
		}
		p.chunker = c
		return nil
	}
}

// WithFetchTimeout sets the timeout for downloading web pages.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		p.fetcher = extract.NewFetcher(timeout)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline writing to index.
func NewPipeline(index Index, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	chunker, err := chunking.New(chunking.DefaultSize, chunking.DefaultOverlap)
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Pipeline{
		index:     index,
		embedder:  embedder,
		chunker:   chunker,
		fetcher:   extract.NewFetcher(extract.DefaultFetchTimeout),
		pool:      pool,
		batchSize: DefaultBatchSize,
		logger:    slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Source is a document to ingest.
type Source struct {
	Text       string
	Source     string            // Label shown with retrieved text: file://name, a URL, ...
	DocumentID string            // Generated when empty
	Metadata   map[string]string // Extra metadata copied onto every chunk
}

// Result describes an ingested document.
type Result struct {
	DocumentID string
	Source     string
	ChunkCount int
	ChunkIDs   []string
}

// Ingest chunks, embeds and indexes one document. Nothing is written unless
// every chunk was embedded.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (*Result, error) {
	if strings.TrimSpace(src.Text) == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyContent)
	}
	if src.DocumentID == "" {
		src.DocumentID = uuid.NewString()
	}
	if src.Source == "" {
		src.Source = "text"
	}

	texts, err := p.chunker.Chunk(src.Text)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrEmptyContent)
	}

	start := time.Now()
	vectors, err := p.embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	chunks := make([]*core.Chunk, len(texts))
	ids := make([]string, len(texts))
	for i, text := range texts {
		ids[i] = chunkID(src.Source, i)
		chunks[i] = &core.Chunk{
			ID:          ids[i],
			DocumentID:  src.DocumentID,
			Source:      src.Source,
			ChunkIndex:  i,
			TotalChunks: len(texts),
			Text:        text,
			Metadata:    chunkMetadata(src, i, len(texts), text),
			Vector:      core.NormalizeVector(vectors[i]),
		}
	}

	if err := p.index.Upsert(ctx, chunks...); err != nil {
		p.logger.Error("failed to index chunks", "document_id", src.DocumentID, "err", err)
		return nil, err
	}

	p.logger.Info("ingested document",
		"document_id", src.DocumentID,
		"source", src.Source,
		"chunks", len(chunks),
		"duration", time.Since(start))

	return &Result{
		DocumentID: src.DocumentID,
		Source:     src.Source,
		ChunkCount: len(chunks),
		ChunkIDs:   ids,
	}, nil
}

// Release stops the worker pool. The pipeline cannot be used afterwards.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// chunkID builds "{source}_{index}_{random8}".
func chunkID(source string, index int) string {
	return fmt.Sprintf("%s_%d_%s", source, index, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func chunkMetadata(src Source, index, total int, text string) map[string]string {
	meta := make(map[string]string, len(src.Metadata)+6)
	maps.Copy(meta, src.Metadata)
	meta[core.MetaSource] = src.Source
	meta[core.MetaChunkIndex] = strconv.Itoa(index)
	meta[core.MetaTotalChunks] = strconv.Itoa(total)
	meta[core.MetaDocumentID] = src.DocumentID
	meta[core.MetaContentHash] = fmt.Sprintf("%016x", uint64(core.IDFromContent(text)))
	return meta
}
