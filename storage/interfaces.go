package storage

import (
	"context"

	"github.com/poiesic/ragbot/core"
)

// ChunkRepository is the vector index: chunk embeddings plus metadata with
// cosine nearest-neighbour search. Implementations must be safe for
// concurrent use and must never expose a chunk without its vector.
type ChunkRepository interface {
	// Upsert stores the chunks atomically: either every chunk becomes
	// visible to Search or none does. Vectors are normalized on the way in.
	// A chunk whose ID already exists replaces the stored chunk
	// (last write wins) and moves to the end of the insertion order.
	// Returns core.ErrDimensionMismatch if a vector does not match the
	// dimension fixed by the first upsert.
	Upsert(ctx context.Context, chunks ...*core.Chunk) error

	// Search returns up to n nearest neighbours of vector, ordered by
	// cosine distance ascending. Ties keep insertion order.
	// An empty index yields an empty slice, not an error.
	Search(ctx context.Context, vector []float32, n int) ([]core.Candidate, error)

	// Delete removes chunks by ID and reports how many existed.
	Delete(ctx context.Context, ids ...string) (int, error)

	// DeleteDocument removes every chunk of a document.
	// Returns ErrNotFound when the document has no chunks.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// GetChunks returns the chunks that exist among ids, in the given order.
	GetChunks(ctx context.Context, ids ...string) ([]*core.Chunk, error)

	// ChunkIDs returns every chunk ID in insertion order.
	ChunkIDs(ctx context.Context) ([]string, error)

	// ListDocuments groups chunks by document, ordered by first insertion.
	ListDocuments(ctx context.Context) ([]core.DocumentInfo, error)

	// Stats reports the chunk count and collection name.
	Stats(ctx context.Context) (core.IndexStats, error)

	// Clear removes every chunk in the collection and returns how many there were.
	Clear(ctx context.Context) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// SessionRepository persists conversation sessions and their message logs.
type SessionRepository interface {
	// CreateSession creates an empty session. An empty title gets a
	// numbered default.
	CreateSession(ctx context.Context, title string) (*core.Session, error)

	// AddMessage appends a message, creating the session if it does not
	// exist. The first user message titles a session that still has a
	// default title. A zero Timestamp is set to now.
	AddMessage(ctx context.Context, sessionID string, msg *core.Message) (*core.Message, error)

	// GetSession returns the session with all of its messages.
	// Returns ErrNotFound if the session doesn't exist.
	GetSession(ctx context.Context, sessionID string) (*core.Session, error)

	// ListSessions returns summaries of every session, newest first.
	ListSessions(ctx context.Context) ([]core.SessionSummary, error)

	// RecentMessages returns up to limit of the latest messages, oldest first.
	// A missing session yields an empty slice.
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]core.Message, error)

	// UpdateTitle renames a session.
	// Returns ErrNotFound if the session doesn't exist.
	UpdateTitle(ctx context.Context, sessionID, title string) error

	// DeleteSession removes a session and its messages.
	// Returns ErrNotFound if the session doesn't exist.
	DeleteSession(ctx context.Context, sessionID string) error

	// ClearSessions removes every session and returns how many there were.
	ClearSessions(ctx context.Context) (int, error)

	// Close releases resources held by the repository.
	Close() error
}
