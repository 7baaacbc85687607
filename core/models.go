package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Metadata keys attached to every stored chunk.
const (
	MetaSource      = "source"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaDocumentID  = "document_id"
	MetaContentHash = "content_hash"
	MetaFilePath    = "file_path"
	MetaFileType    = "file_type"
	MetaURL         = "url"
	MetaType        = "type"
)

// Chunk is a bounded slice of a source document's text and the unit of
// embedding and retrieval. Chunks are immutable once stored.
type Chunk struct {
	ID          string
	DocumentID  string
	Source      string
	ChunkIndex  int
	TotalChunks int
	Text        string
	Metadata    map[string]string // Extra metadata (file_type, url, ...)
	Vector      []float32         // Unit-length embedding
	InsertedAt  time.Time         // Set by the index on upsert
}

// Candidate is a nearest-neighbour hit returned by the vector index.
type Candidate struct {
	Chunk    *Chunk
	Distance float64 // Cosine distance, 1 - similarity
}

// ScoredChunk is a document produced by retrieval. Score is nil when the
// document has no relevance score, which is distinct from a zero score.
type ScoredChunk struct {
	ChunkID  string
	Content  string
	Metadata map[string]string
	Score    *float64
}

// Source returns the source label from the chunk metadata.
func (s ScoredChunk) Source() string {
	return s.Metadata[MetaSource]
}

// WithScore returns a copy of s carrying the given score.
func (s ScoredChunk) WithScore(score float64) ScoredChunk {
	s.Score = &score
	return s
}

// ScoreOr returns the score, or def when the document is unscored.
func (s ScoredChunk) ScoreOr(def float64) float64 {
	if s.Score == nil {
		return def
	}
	return *s.Score
}

// DocumentInfo summarizes one logical document in the index.
type DocumentInfo struct {
	DocumentID string
	Source     string
	ChunkCount int
	FileType   string
	CreatedAt  time.Time
}

// IndexStats describes the vector index.
type IndexStats struct {
	Count int
	Name  string
}

// Role identifies the author of a session message.
type Role string

const (
	// RoleUser is a message written by the user.
	RoleUser Role = "user"
	// RoleAssistant is a message generated by the model.
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a session's conversation log.
type Message struct {
	Role        Role
	Content     string
	Timestamp   time.Time
	HasImage    bool
	ImageData   string // Base64 encoded image, when HasImage is set
	ImageFormat string
}

// Session is a conversation. Messages is only populated when the session is
// read in full.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
	Messages  []Message
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	MessageCount int
	LastActivity time.Time // Zero when the session has no messages
	LastMessage  string    // Preview of the last user message
}
