package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps values in a BadgerDB database.
type BadgerStore struct {
	db *badger.DB

	// updateMu serializes Update within the process; the database
	// directory is locked to this process, so conflicts left to retry
	// come only from plain Set and Delete.
	updateMu sync.Mutex
}

// NewBadgerStore opens a BadgerDB database in dir. An empty dir or
// ":memory:" opens an in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" || dir == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(dir)
	}

	// badger is verbose at INFO
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

// Get returns the value stored under key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkContext(ctx, "get value"); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkContext(ctx, "set value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	}); err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}

	return nil
}

// Delete removes key.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	if err := checkContext(ctx, "delete value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}

	return nil
}

// Update runs fn inside a read-write transaction, retrying when another
// transaction committed the key first.
func (s *BadgerStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if err := checkContext(ctx, "update value"); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var current []byte
			item, err := txn.Get([]byte(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				if current, err = item.ValueCopy(nil); err != nil {
					return err
				}
			}

			next, err := fn(current)
			if err != nil {
				return err
			}
			if next == nil {
				return txn.Delete([]byte(key))
			}
			return txn.Set([]byte(key), next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("badger update %s: %w", key, err)
		}
		return nil
	}

	return fmt.Errorf("badger update %s: %w", key, ErrConflict)
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := checkContext(ctx, "ping"); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("badger store: database closed")
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("badger close: %w", err)
	}
	return nil
}
