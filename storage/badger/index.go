package badger

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/studyrag/ai"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/metrics"
	"github.com/poiesic/studyrag/storage"
)

const defaultTopK = 5

// IndexRepository implements storage.IndexRepository for BadgerDB.
//
// Similarity is cosine: distance d = 1 - cos(q, v) in [0, 2] and the
// reported relevance is 1 - d. Queries scan every stored vector.
type IndexRepository struct {
	backend     *Backend
	embedder    ai.Embedder
	defaultTopK int
	logger      *slog.Logger
}

var _ storage.IndexRepository = (*IndexRepository)(nil)

// IndexOption is a functional option for configuring an IndexRepository.
type IndexOption func(*IndexRepository) error

// WithDefaultTopK sets the result count used when a query asks for topK <= 0.
func WithDefaultTopK(k int) IndexOption {
	return func(r *IndexRepository) error {
		if k < 1 {
			return fmt.Errorf("%w: default top k must be positive, got %d", storage.ErrInvalidQuery, k)
		}
		r.defaultTopK = k
		return nil
	}
}

// WithIndexLogger sets the logger for the repository.
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(r *IndexRepository) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger.With("component", "index")
		return nil
	}
}

// NewIndexRepository creates a new IndexRepository that embeds with embedder.
func NewIndexRepository(backend *Backend, embedder ai.Embedder, opts ...IndexOption) (*IndexRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	if embedder == nil {
		return nil, storage.ErrEmbedderRequired
	}

	r := &IndexRepository{
		backend:     backend,
		embedder:    embedder,
		defaultTopK: defaultTopK,
		logger:      slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Close is a no-op; the shared backend is closed by its owner.
func (r *IndexRepository) Close() error {
	return nil
}

// Insert embeds all chunk contents in a single batch and stores them under
// documentID. Writes larger than one Badger transaction are split across
// several; if any batch fails, entries already written for documentID are
// removed before the error is returned.
func (r *IndexRepository) Insert(ctx context.Context, documentID string, chunks []core.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if documentID == "" {
		return 0, core.ErrEmptyDocumentID
	}
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := r.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks of %s: %w", documentID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", storage.ErrVectorCountMismatch, len(vectors), len(chunks))
	}

	committed := 0
	err = r.backend.WithSplitTx(ctx, func(w *SplitTxn) error {
		defer func() { committed = w.Commits() }()
		for i := range chunks {
			entry := &core.IndexedVector{
				ID:     core.VectorKey(documentID, i),
				Vector: vectors[i],
				Chunk:  chunks[i],
			}
			value, err := storage.MarshalIndexedVector(entry)
			if err != nil {
				return err
			}
			if err := w.Set(makeVectorKey(entry.ID), value); err != nil {
				return err
			}
			if err := w.Set(makeVectorDocumentKey(documentID, entry.ID), []byte(entry.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if committed > 0 {
			if _, cleanupErr := r.DeleteByDocument(context.WithoutCancel(ctx), documentID); cleanupErr != nil {
				r.logger.Warn("failed to remove partially indexed document",
					"document_id", documentID, "err", cleanupErr)
			}
		}
		return 0, err
	}

	metrics.ChunksIndexedTotal.Add(float64(len(chunks)))
	r.logger.Debug("indexed chunks", "document_id", documentID, "count", len(chunks))
	return len(chunks), nil
}

type scoredEntry struct {
	id       string
	chunk    core.Chunk
	distance float32
}

// Query embeds text and ranks every stored entry by cosine distance.
func (r *IndexRepository) Query(ctx context.Context, text string, topK int) ([]core.RetrievalResult, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	query, err := r.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var scored []scoredEntry
	err = r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(vectorPrefix), func(_, val []byte) error {
			entry, err := storage.UnmarshalIndexedVector(val)
			if err != nil {
				return err
			}
			if len(entry.Vector) == 0 {
				return nil
			}
			scored = append(scored, scoredEntry{
				id:       entry.ID,
				chunk:    entry.Chunk,
				distance: CosineDistance(query, entry.Vector),
			})
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(scored, func(a, b scoredEntry) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]core.RetrievalResult, len(scored))
	for i, s := range scored {
		results[i] = core.RetrievalResult{
			Content:        s.chunk.Content,
			Metadata:       s.chunk.Metadata,
			Distance:       s.distance,
			RelevanceScore: 1 - s.distance,
		}
	}
	return results, nil
}

// DeleteByDocument removes every entry of documentID using the per-document index.
// Returns false without error when the store is closed.
func (r *IndexRepository) DeleteByDocument(ctx context.Context, documentID string) (bool, error) {
	if r.backend.IsClosed() {
		return false, nil
	}

	var keys [][]byte
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, makePartialVectorDocumentKey(documentID), func(key, val []byte) error {
			keys = append(keys, key, makeVectorKey(string(val)))
			return nil
		})
	}, false)
	if err != nil {
		return false, err
	}

	err = r.backend.WithSplitTx(ctx, func(w *SplitTxn) error {
		for _, key := range keys {
			if err := w.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	removed := len(keys) / 2

	r.logger.Debug("deleted document vectors", "document_id", documentID, "count", removed)
	return true, nil
}

// Count returns the number of stored entries.
func (r *IndexRepository) Count(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// DocumentIDs returns the distinct document ids present in the index.
func (r *IndexRepository) DocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorDocumentPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			rest := iter.Item().Key()[len(vectorDocumentPrefix):]
			end := bytes.IndexByte(rest, keySep)
			if end < 0 {
				continue
			}
			id := string(rest[:end])
			if len(ids) == 0 || ids[len(ids)-1] != id {
				ids = append(ids, id)
			}
		}
		return nil
	}, false)
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// ForEachBatch walks all entries in key order, calling fn with up to batchSize entries.
func (r *IndexRepository) ForEachBatch(ctx context.Context, batchSize int, fn func(batch []*core.IndexedVector) error) error {
	if batchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", storage.ErrInvalidQuery, batchSize)
	}

	// Batches are collected in a read transaction and handed to fn outside it,
	// so fn may write to the index.
	var after []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.IndexedVector, 0, batchSize)
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(vectorPrefix)
			iter := tx.NewIterator(opts)
			defer iter.Close()

			if after == nil {
				iter.Rewind()
			} else {
				iter.Seek(after)
				if iter.Valid() && bytes.Equal(iter.Item().Key(), after) {
					iter.Next()
				}
			}
			for ; iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				err := item.Value(func(val []byte) error {
					entry, err := storage.UnmarshalIndexedVector(val)
					if err != nil {
						return err
					}
					batch = append(batch, entry)
					return nil
				})
				if err != nil {
					return err
				}
				after = item.KeyCopy(nil)
			}
			return nil
		}, false)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// UpdateVectors replaces the vectors of existing entries in one transaction.
func (r *IndexRepository) UpdateVectors(ctx context.Context, entries []*core.IndexedVector) error {
	if len(entries) == 0 {
		return nil
	}
	return r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		for _, entry := range entries {
			key := makeVectorKey(entry.ID)
			item, err := tx.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %s", storage.ErrNotFound, entry.ID)
				}
				return err
			}
			var stored *core.IndexedVector
			if err := item.Value(func(val []byte) error {
				var err error
				stored, err = storage.UnmarshalIndexedVector(val)
				return err
			}); err != nil {
				return err
			}
			stored.Vector = entry.Vector
			value, err := storage.MarshalIndexedVector(stored)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2].
// Vectors of different length are compared over their common prefix and a
// zero vector is treated as orthogonal to everything.
func CosineDistance(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	cos = max(-1, min(1, cos))
	return float32(1 - cos)
}
