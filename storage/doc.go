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

// Package storage provides the storage abstraction layer for ragbot.
//
// This package defines repository interfaces that decouple storage implementation
// from retrieval and chat logic. The BadgerDB implementation lives in the
// badger subpackage.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - ChunkRepository: the vector index. Chunk text, metadata and a unit-length
//     embedding, searchable by cosine distance.
//   - SessionRepository: conversation sessions and their ordered message logs.
//
// Records are encoded with hand-written mus serializers (see serialization.go).
// Every record starts with a format version so layouts can evolve.
//
// # Usage
//
// Use in tests with in-memory storage:
//
//	chunks, sessions, backend, err := badger.NewMemoryRepositories()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. An upsert is atomic: a
// concurrent search sees either all of its chunks or none of them.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
