package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
// All repositories in this package share one Backend.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	return openBackend(opts)
}

// openBackend opens BadgerDB with opts, replacing its logger and compression.
func openBackend(opts badger.Options) (*Backend, error) {
	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction; fn must call
// tx.Commit itself. The transaction is discarded when fn returns.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// WithCtxTx is WithTx with an early exit for a cancelled context.
func (b *Backend) WithCtxTx(ctx context.Context, fn func(tx *badger.Txn) error, isWrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.WithTx(fn, isWrite)
}

// SplitTxn writes through a chain of transactions. When the current one
// reaches Badger's size limit it is committed and a new one is started,
// so a large write is durable only in part if a later batch fails.
type SplitTxn struct {
	ctx     context.Context
	db      *badger.DB
	tx      *badger.Txn
	commits int
}

// Set stores key/value, rolling over to a new transaction if needed.
func (s *SplitTxn) Set(key, value []byte) error {
	return s.apply(func(tx *badger.Txn) error { return tx.Set(key, value) })
}

// Delete removes key, rolling over to a new transaction if needed.
func (s *SplitTxn) Delete(key []byte) error {
	return s.apply(func(tx *badger.Txn) error { return tx.Delete(key) })
}

// Commits reports how many full transactions have been committed so far.
func (s *SplitTxn) Commits() int {
	return s.commits
}

func (s *SplitTxn) apply(op func(tx *badger.Txn) error) error {
	err := op(s.tx)
	if !errors.Is(err, badger.ErrTxnTooBig) {
		return err
	}
	if err := s.ctx.Err(); err != nil {
		return err
	}
	if err := s.tx.Commit(); err != nil {
		return err
	}
	s.commits++
	s.tx = s.db.NewTransaction(true)
	return op(s.tx)
}

// WithSplitTx runs fn against a SplitTxn and commits the final batch when fn
// succeeds. Batches already committed are not rolled back on error.
func (b *Backend) WithSplitTx(ctx context.Context, fn func(w *SplitTxn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := &SplitTxn{ctx: ctx, db: b.db, tx: b.db.NewTransaction(true)}
	defer func() { w.tx.Discard() }()

	if err := fn(w); err != nil {
		return err
	}
	return w.tx.Commit()
}

// scanPrefix calls fn for every key/value under prefix in ascending key order.
// Returning errStopScan from fn ends the scan without error.
func scanPrefix(tx *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.KeyCopy(nil)
		err := item.Value(func(val []byte) error {
			return fn(key, val)
		})
		if err == errStopScan {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
