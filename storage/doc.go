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

// Package storage provides the storage abstraction layer for studyrag.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. The chunk index, the conversation store and the document
// registry are each reached through their own interface.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return concrete repository types that
// satisfy these interfaces; consumers accept the interfaces:
//
//	index, err := badger.NewIndexRepository(backend, embedder)
//	retriever, err := retrieval.New(index)  // accepts storage.VectorQuerier
//
// # Architecture
//
//   - VectorQuerier: Ranked similarity query, the retriever's view of the index
//   - IndexRepository: Insert, delete and walk chunk embeddings
//   - ConversationRepository: Append-only chat histories
//   - DocumentRepository: Registry of uploaded documents
//
// # Backends
//
//   - storage/badger: Embedded BadgerDB store for all three repositories
//   - storage/redis: Conversation store on Redis for multi-process deployments
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
