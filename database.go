// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ragbot

import (
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/ragbot/ai"
	"github.com/poiesic/ragbot/ai/embedcache"
	"github.com/poiesic/ragbot/ai/openai"
	"github.com/poiesic/ragbot/chat"
	"github.com/poiesic/ragbot/config"
	"github.com/poiesic/ragbot/ingestion"
	"github.com/poiesic/ragbot/search"
	"github.com/poiesic/ragbot/storage"
	"github.com/poiesic/ragbot/storage/badger"
)

// DefaultCollection is the vector index collection used when none is given.
const DefaultCollection = "documents"

// Database wires the embedded store, the AI provider and the services built
// on them.
type Database struct {
	backend   *badger.Backend
	chunks    storage.ChunkRepository
	sessions  storage.SessionRepository
	provider  ai.AIProvider
	embedder  ai.Embedder
	retriever *search.Retriever
	pipeline  *ingestion.Pipeline
	chat      *chat.Service
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	collection    string
	inMemory      bool
	cacheSize     int
	cacheTTL      time.Duration
	searchOpts    []search.Option
	ingestionOpts []ingestion.Option
	chatOpts      []chat.Option
	logger        *slog.Logger
}

// WithAIConfig sets the model configuration used to build the provider.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing AI provider instead of building one.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithCollectionName selects the vector index collection.
func WithCollectionName(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.collection = name
	}
}

// WithInMemory keeps all data in memory. The path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithEmbeddingCache caches up to size embeddings for ttl.
func WithEmbeddingCache(size int, ttl time.Duration) DatabaseOption {
	return func(o *databaseOptions) {
		o.cacheSize = size
		o.cacheTTL = ttl
	}
}

// WithSearchOptions configures the retriever.
func WithSearchOptions(opts ...search.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.searchOpts = append(o.searchOpts, opts...)
	}
}

// WithIngestionOptions configures the ingestion pipeline.
func WithIngestionOptions(opts ...ingestion.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.ingestionOpts = append(o.ingestionOpts, opts...)
	}
}

// WithChatOptions configures the chat service.
func WithChatOptions(opts ...chat.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// OptionsFromSettings translates loaded settings into database options.
func OptionsFromSettings(s *config.Settings) []DatabaseOption {
	r := s.Retrieval
	return []DatabaseOption{
		WithAIConfig(s.AIConfig()),
		WithCollectionName(s.Storage.CollectionName),
		WithEmbeddingCache(s.Ingestion.EmbeddingCache, s.Ingestion.EmbeddingCacheTTL),
		WithSearchOptions(
			search.WithDefaultK(r.K),
			search.WithMinScore(r.MinRelevanceScore),
			search.WithOversampleFactor(r.OversampleFactor),
			search.WithKeywordConfig(s.KeywordConfig()),
		),
		WithIngestionOptions(
			ingestion.WithChunking(r.ChunkSize, r.ChunkOverlap),
			ingestion.WithPoolSize(s.Ingestion.Workers),
			ingestion.WithBatchSize(s.Ingestion.EmbedBatchSize),
			ingestion.WithFetchTimeout(s.Ingestion.URLFetchTimeout),
		),
		WithChatOptions(
			chat.WithHistoryMessages(r.HistoryMessages),
			chat.WithContextThreshold(r.ContextScoreThreshold),
		),
	}
}

// NewDatabase opens the store at filePath and builds every service.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig:   ai.DefaultConfig(), // Default if not provided
		collection: DefaultCollection,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		provider.Close()
		return nil, err
	}

	db := &Database{
		backend:  backend,
		provider: provider,
		embedder: embedcache.Wrap(provider.Embedder(), options.cacheSize, options.cacheTTL),
		logger:   logger,
	}

	if err := db.init(options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) init(options *databaseOptions) error {
	chunks, err := badger.NewChunkRepository(db.backend, options.collection)
	if err != nil {
		return err
	}
	db.chunks = chunks

	sessions, err := badger.NewSessionRepository(db.backend)
	if err != nil {
		return err
	}
	db.sessions = sessions

	searchOpts := append([]search.Option{search.WithLogger(db.logger.With("component", "retriever"))}, options.searchOpts...)
	db.retriever, err = search.NewRetriever(db.chunks, db.embedder, searchOpts...)
	if err != nil {
		return err
	}

	ingestionOpts := append([]ingestion.Option{ingestion.WithLogger(db.logger.With("component", "ingestion"))}, options.ingestionOpts...)
	db.pipeline, err = ingestion.NewPipeline(db.chunks, db.embedder, ingestionOpts...)
	if err != nil {
		return err
	}

	chatOpts := append([]chat.Option{
		chat.WithVision(db.provider.Vision()),
		chat.WithLogger(db.logger.With("component", "chat")),
	}, options.chatOpts...)
	db.chat, err = chat.NewService(db.sessions, db.retriever, db.provider.Generator(), chatOpts...)
	return err
}

// Close releases every service, then the store.
func (db *Database) Close() error {
	var errs []error
	if db.pipeline != nil {
		db.pipeline.Release()
	}

	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Close repositories
	if db.sessions != nil {
		if err := db.sessions.Close(); err != nil {
			db.logger.Error("error closing session repository", "err", err)
			errs = append(errs, err)
		}
	}
	if db.chunks != nil {
		if err := db.chunks.Close(); err != nil {
			db.logger.Error("error closing chunk repository", "err", err)
			errs = append(errs, err)
		}
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ready reports whether the store is open.
func (db *Database) Ready() bool {
	return !db.backend.IsClosed()
}

// Chunks returns the vector index.
func (db *Database) Chunks() storage.ChunkRepository {
	return db.chunks
}

// Sessions returns the conversation store.
func (db *Database) Sessions() storage.SessionRepository {
	return db.sessions
}

// Provider returns the AI provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// Embedder returns the embedder used for indexing and queries, including
// the cache when one is configured.
func (db *Database) Embedder() ai.Embedder {
	return db.embedder
}

// Vision returns the image describer, or nil when vision is not configured.
func (db *Database) Vision() ai.ImageDescriber {
	return db.provider.Vision()
}

func (db *Database) Retriever() *search.Retriever {
	return db.retriever
}

func (db *Database) Pipeline() *ingestion.Pipeline {
	return db.pipeline
}

func (db *Database) ChatService() *chat.Service {
	return db.chat
}
