package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &DocumentRepository{backend: backend}, nil
}

// Save stores a document entry and its date, checksum and source path indexes.
// An existing entry with the same id is replaced.
func (r *DocumentRepository) Save(ctx context.Context, doc *core.DocumentInfo) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", storage.ErrInvalidQuery)
	}
	return r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		old, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if old != nil {
			if err := deleteDocumentIndexes(tx, old); err != nil {
				return err
			}
		}
		if err := writeDocument(tx, doc); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Get retrieves a document by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*core.DocumentInfo, error) {
	var result *core.DocumentInfo
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// List returns all documents, most recently uploaded first.
func (r *DocumentRepository) List(ctx context.Context) ([]*core.DocumentInfo, error) {
	results := []*core.DocumentInfo{}
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(documentDatePrefix)

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makePartialTimeKey(documentDatePrefix, farFuture)); iter.Valid(); iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			doc, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	}, false)
	return results, err
}

// UpdateChunkCount records the number of indexed chunks for a document.
func (r *DocumentRepository) UpdateChunkCount(ctx context.Context, id string, count int) error {
	return r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}
		doc.ChunkCount = count
		value, err := storage.MarshalDocument(doc)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes a document entry and its indexes.
func (r *DocumentRepository) Delete(ctx context.Context, id string) (bool, error) {
	existed := false
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		existed = true
		if err := deleteDocumentIndexes(tx, doc); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return existed, err
}

// FindByChecksum returns the first document with the given checksum.
func (r *DocumentRepository) FindByChecksum(ctx context.Context, checksum string) (*core.DocumentInfo, error) {
	var result *core.DocumentInfo
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		err := scanPrefix(tx, makePartialDocumentSumKey(checksum), func(_, val []byte) error {
			doc, err := readDocument(tx, makeDocumentKey(string(val)))
			if err != nil {
				return err
			}
			if doc != nil {
				result = doc
				return errStopScan
			}
			return nil
		})
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// FindBySourcePath returns the document ingested from path.
func (r *DocumentRepository) FindBySourcePath(ctx context.Context, path string) (*core.DocumentInfo, error) {
	var result *core.DocumentInfo
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentSourceKey(path))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

func writeDocument(tx *badger.Txn, doc *core.DocumentInfo) error {
	value, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	if err := tx.Set(makeDocumentKey(doc.ID), value); err != nil {
		return err
	}
	if err := tx.Set(makeDocumentDateKey(doc.UploadedAt, doc.ID), []byte(doc.ID)); err != nil {
		return err
	}
	if doc.Checksum != "" {
		if err := tx.Set(makeDocumentSumKey(doc.Checksum, doc.ID), []byte(doc.ID)); err != nil {
			return err
		}
	}
	if doc.SourcePath != "" {
		if err := tx.Set(makeDocumentSourceKey(doc.SourcePath), []byte(doc.ID)); err != nil {
			return err
		}
	}
	return nil
}

func deleteDocumentIndexes(tx *badger.Txn, doc *core.DocumentInfo) error {
	if err := tx.Delete(makeDocumentDateKey(doc.UploadedAt, doc.ID)); err != nil {
		return err
	}
	if doc.Checksum != "" {
		if err := tx.Delete(makeDocumentSumKey(doc.Checksum, doc.ID)); err != nil {
			return err
		}
	}
	if doc.SourcePath != "" {
		// Only drop the path mapping if it still points at this document.
		item, err := tx.Get(makeDocumentSourceKey(doc.SourcePath))
		if err == nil {
			var owner string
			if err := item.Value(func(val []byte) error {
				owner = string(val)
				return nil
			}); err != nil {
				return err
			}
			if owner == doc.ID {
				if err := tx.Delete(makeDocumentSourceKey(doc.SourcePath)); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
	}
	return nil
}

// readDocument reads a document from the transaction; nil when absent.
func readDocument(tx *badger.Txn, key []byte) (*core.DocumentInfo, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.DocumentInfo
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}
