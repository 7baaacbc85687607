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

package core

import (
	"fmt"
	"strings"
	"time"
)

// ValidateChunk validates a Chunk before it is written to the index.
//
// Validation rules:
//   - ID, DocumentID and Text must not be empty
//   - Vector must not be empty
//   - ChunkIndex must lie in [0, TotalChunks)
//
// NOT validated:
//   - Vector dimension (checked by the index against its stored dimension)
//   - InsertedAt (set by the index)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: %w: chunk is nil", ErrValidation, ErrInvalidChunk)
	}
	if chunk.ID == "" {
		return fmt.Errorf("%w: %w: missing id", ErrValidation, ErrInvalidChunk)
	}
	if chunk.DocumentID == "" {
		return fmt.Errorf("%w: %w: chunk %s has no document id", ErrValidation, ErrInvalidChunk, chunk.ID)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w: chunk %s: %w", ErrValidation, ErrInvalidChunk, chunk.ID, ErrEmptyContent)
	}
	if len(chunk.Vector) == 0 {
		return fmt.Errorf("%w: %w: chunk %s has no embedding", ErrValidation, ErrInvalidChunk, chunk.ID)
	}
	if chunk.ChunkIndex < 0 || chunk.ChunkIndex >= chunk.TotalChunks {
		return fmt.Errorf("%w: %w: chunk index %d outside [0, %d)",
			ErrValidation, ErrInvalidChunk, chunk.ChunkIndex, chunk.TotalChunks)
	}
	return nil
}

// ValidateChunkingParams checks that size and overlap describe a usable chunker.
func ValidateChunkingParams(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %w: chunk size must be positive, got %d", ErrValidation, ErrInvalidChunking, size)
	}
	if overlap < 0 {
		return fmt.Errorf("%w: %w: overlap cannot be negative, got %d", ErrValidation, ErrInvalidChunking, overlap)
	}
	if overlap >= size {
		return fmt.Errorf("%w: %w: overlap %d must be smaller than chunk size %d",
			ErrValidation, ErrInvalidChunking, overlap, size)
	}
	return nil
}

// ValidateMessage validates a session Message.
// User messages must carry content or an image; assistant replies may be empty.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: %w: message is nil", ErrValidation, ErrInvalidMessage)
	}
	if err := ValidateRole(msg.Role); err != nil {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidMessage, err)
	}
	if msg.Role == RoleUser && msg.Content == "" && !msg.HasImage {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidMessage, ErrEmptyContent)
	}
	if !IsValidTimestamp(msg.Timestamp) {
		return fmt.Errorf("%w: %w: %w", ErrValidation, ErrInvalidMessage, ErrInvalidTimestamp)
	}
	return nil
}

// ValidateRole validates that a Role has a known value.
func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
