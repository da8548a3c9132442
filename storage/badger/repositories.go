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

package badger

import (
	"github.com/poiesic/studyrag/ai"
)

// Repositories bundles the repositories that share one Backend.
type Repositories struct {
	Backend       *Backend
	Index         *IndexRepository
	Conversations *ConversationRepository
	Documents     *DocumentRepository
}

// OpenRepositories opens the database at path and builds every repository on it.
// An empty path with inMemory set opens a throwaway in-memory store.
func OpenRepositories(path string, inMemory bool, embedder ai.Embedder, opts ...IndexOption) (*Repositories, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	index, err := NewIndexRepository(backend, embedder, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	conversations, err := NewConversationRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	documents, err := NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Repositories{
		Backend:       backend,
		Index:         index,
		Conversations: conversations,
		Documents:     documents,
	}, nil
}

// NewMemoryRepositories creates in-memory repositories for testing.
// Caller must Close the result when done.
func NewMemoryRepositories(embedder ai.Embedder, opts ...IndexOption) (*Repositories, error) {
	return OpenRepositories("", true, embedder, opts...)
}

// Close closes the repositories and the shared backend.
func (r *Repositories) Close() error {
	r.Index.Close()
	r.Conversations.Close()
	return r.Backend.Close()
}
