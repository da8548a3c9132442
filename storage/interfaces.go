package storage

import (
	"context"

	"github.com/poiesic/studyrag/core"
)

// VectorQuerier ranks indexed chunks against a query text.
// The retriever depends only on this narrow view of the index.
type VectorQuerier interface {
	// Query embeds text and returns up to topK results ordered by ascending
	// cosine distance. topK <= 0 selects the store's default.
	// An empty index yields an empty slice and no error.
	Query(ctx context.Context, text string, topK int) ([]core.RetrievalResult, error)
}

// IndexRepository stores chunk embeddings keyed by document and chunk position.
// Implementations must be thread-safe and support concurrent access.
type IndexRepository interface {
	VectorQuerier

	// Insert embeds and stores chunks under documentID. Entries are keyed
	// core.VectorKey(documentID, i); an existing key is overwritten.
	// Returns the number of entries written. Empty input writes nothing.
	Insert(ctx context.Context, documentID string, chunks []core.Chunk) (int, error)

	// DeleteByDocument removes every entry belonging to documentID.
	// Returns true when the store is open, regardless of how many entries existed.
	DeleteByDocument(ctx context.Context, documentID string) (bool, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// DocumentIDs returns the distinct document ids present in the index, sorted.
	DocumentIDs(ctx context.Context) ([]string, error)

	// ForEachBatch walks all stored entries in key order, handing them to fn
	// in batches of at most batchSize. Iteration stops on the first error.
	ForEachBatch(ctx context.Context, batchSize int, fn func(batch []*core.IndexedVector) error) error

	// UpdateVectors replaces the vectors of existing entries.
	// Returns ErrNotFound if any entry does not exist.
	UpdateVectors(ctx context.Context, entries []*core.IndexedVector) error

	// Close releases resources held by the repository.
	Close() error
}

// ConversationRepository persists chat histories keyed by conversation id.
// Appends to the same id must never lose a message pair.
type ConversationRepository interface {
	// Append adds a user/assistant message pair to the conversation,
	// creating it when absent. Both messages are written atomically.
	Append(ctx context.Context, conversationID string, user, assistant core.Message) error

	// Get returns the full conversation.
	// Returns ErrNotFound if the conversation doesn't exist.
	Get(ctx context.Context, conversationID string) (*core.ConversationRecord, error)

	// Delete removes the conversation. Returns false when it did not exist.
	Delete(ctx context.Context, conversationID string) (bool, error)

	// List returns every conversation summary, most recently updated first.
	List(ctx context.Context) ([]core.ConversationSummary, error)

	// Close releases resources held by the repository.
	Close() error
}

// DocumentRepository is the registry of uploaded documents.
type DocumentRepository interface {
	// Save stores or replaces a document entry.
	Save(ctx context.Context, doc *core.DocumentInfo) error

	// Get retrieves a document by id.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, id string) (*core.DocumentInfo, error)

	// List returns all documents, most recently uploaded first.
	List(ctx context.Context) ([]*core.DocumentInfo, error)

	// UpdateChunkCount records how many chunks were indexed for a document.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateChunkCount(ctx context.Context, id string, count int) error

	// Delete removes a document entry. Returns false when it did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	// FindByChecksum returns the first document with the given content checksum.
	// Returns ErrNotFound if none matches.
	FindByChecksum(ctx context.Context, checksum string) (*core.DocumentInfo, error)

	// FindBySourcePath returns the document ingested from a local path.
	// Returns ErrNotFound if none matches.
	FindBySourcePath(ctx context.Context, path string) (*core.DocumentInfo, error)
}
