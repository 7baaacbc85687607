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

// Package search retrieves, reranks and verifies document chunks for a query,
// and assembles them into reference text for the chat model.
//
// Retrieval runs in stages:
//   - Semantic search: the query embedding is matched against the vector index,
//     oversampling so that filtering still leaves enough candidates
//   - Filtering: candidates below the minimum relevance score are dropped
//   - Reranking: each key term of the query found verbatim in a chunk boosts its score
//
// Verify is a second, purely lexical check that the retrieved text shares
// enough terms with the query to be worth showing the model. Rerank, Verify
// and AssembleContext are pure functions.
package search
