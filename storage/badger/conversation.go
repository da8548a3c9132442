package badger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/studyrag/core"
	"github.com/poiesic/studyrag/storage"
)

const (
	conversationLockStripes = 64
	maxConflictRetries      = 3
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
//
// Each conversation is a JSON record at conv:<id>. A second index keyed by
// updated-at time holds the record's summary so listing never reads message
// bodies. Appends to the same id are serialized by a striped mutex.
type ConversationRepository struct {
	backend *Backend
	locks   [conversationLockStripes]sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (*ConversationRepository, error) {
	if backend == nil {
		return nil, storage.ErrBackendRequired
	}
	return &ConversationRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.Default().With("component", "conversations"),
	}, nil
}

// Close is a no-op; the shared backend is closed by its owner.
func (r *ConversationRepository) Close() error {
	return nil
}

func (r *ConversationRepository) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.locks[h.Sum32()%conversationLockStripes]
}

// Append adds a user/assistant pair to the conversation, creating it if needed.
func (r *ConversationRepository) Append(ctx context.Context, conversationID string, user, assistant core.Message) error {
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", storage.ErrInvalidQuery)
	}
	if err := core.ValidateMessage(&user); err != nil {
		return err
	}
	if err := core.ValidateMessage(&assistant); err != nil {
		return err
	}

	mu := r.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
			key := makeConversationKey(conversationID)
			record, err := readConversation(tx, key)
			if err != nil {
				return err
			}

			now := r.now()
			if record == nil {
				record = &core.ConversationRecord{
					ID:        conversationID,
					CreatedAt: now,
				}
			} else if err := tx.Delete(makeConvUpdatedKey(record.UpdatedAt, conversationID)); err != nil {
				return err
			}
			record.Messages = append(record.Messages, user, assistant)
			record.UpdatedAt = now

			value, err := storage.MarshalConversation(record)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}

			summary := record.Summary()
			summaryValue, err := storage.MarshalConversationSummary(&summary)
			if err != nil {
				return err
			}
			if err := tx.Set(makeConvUpdatedKey(record.UpdatedAt, conversationID), summaryValue); err != nil {
				return err
			}
			return tx.Commit()
		}, true)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.logger.Debug("conversation append conflict, retrying", "conversation_id", conversationID, "attempt", attempt+1)
	}
	return err
}

// Get retrieves a conversation by id.
func (r *ConversationRepository) Get(ctx context.Context, conversationID string) (*core.ConversationRecord, error) {
	var result *core.ConversationRecord
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readConversation(tx, makeConversationKey(conversationID))
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

// Delete removes a conversation and its index entry.
func (r *ConversationRepository) Delete(ctx context.Context, conversationID string) (bool, error) {
	mu := r.lockFor(conversationID)
	mu.Lock()
	defer mu.Unlock()

	existed := false
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		key := makeConversationKey(conversationID)
		record, err := readConversation(tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}
		existed = true
		if err := tx.Delete(makeConvUpdatedKey(record.UpdatedAt, conversationID)); err != nil {
			return err
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return existed, err
}

// List returns conversation summaries, most recently updated first.
func (r *ConversationRepository) List(ctx context.Context) ([]core.ConversationSummary, error) {
	results := []core.ConversationSummary{}
	err := r.backend.WithCtxTx(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(convUpdatedPrefix)

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makePartialTimeKey(convUpdatedPrefix, farFuture)); iter.Valid(); iter.Next() {
			var summary *core.ConversationSummary
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				summary, err = storage.UnmarshalConversationSummary(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, *summary)
		}
		return nil
	}, false)
	return results, err
}

// readConversation reads a conversation from the transaction; nil when absent.
func readConversation(tx *badger.Txn, key []byte) (*core.ConversationRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.ConversationRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalConversation(val)
		return unmarshalErr
	})
	return record, err
}
