package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 100 * time.Millisecond
)

// FileStore keeps all keys in a single JSON document on disk. A lock file
// next to the document serializes access across processes.
type FileStore struct {
	filePath string
	fileLock *flock.Flock
	mu       sync.RWMutex
}

// NewFileStore creates a FileStore backed by the given file path.
// The file is created on first write.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file store: path cannot be empty")
	}

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file store: create directory: %w", err)
		}
	}

	return &FileStore{
		filePath: filePath,
		fileLock: flock.New(filePath + ".lock"),
	}, nil
}

// Get returns the value stored under key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkContext(ctx, "get value"); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	unlock, err := s.lock(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}

	value, exists := doc[key]
	if !exists {
		return nil, ErrNotFound
	}

	return []byte(value), nil
}

// Set stores value under key and rewrites the document.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkContext(ctx, "set value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	return s.modify(ctx, func(doc map[string]string) (bool, error) {
		doc[key] = string(value)
		return true, nil
	})
}

// Delete removes key and rewrites the document.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := checkContext(ctx, "delete value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	return s.modify(ctx, func(doc map[string]string) (bool, error) {
		if _, exists := doc[key]; !exists {
			return false, nil
		}
		delete(doc, key)
		return true, nil
	})
}

// Update applies fn while holding the exclusive file lock, so writers in
// other processes cannot interleave between the read and the write.
func (s *FileStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := checkContext(ctx, "update value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	return s.modify(ctx, func(doc map[string]string) (bool, error) {
		var current []byte
		if value, exists := doc[key]; exists {
			current = []byte(value)
		}

		next, err := fn(current)
		if err != nil {
			return false, err
		}
		if next == nil {
			if current == nil {
				return false, nil
			}
			delete(doc, key)
			return true, nil
		}

		doc[key] = string(next)
		return true, nil
	})
}

// Ping checks that the document can be locked and parsed.
func (s *FileStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.read()
	return err
}

// Close releases the lock handle. The lock file stays on disk: other
// processes may hold a lock on it, and removing it would let the next
// locker lock a fresh inode alongside them.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fileLock.Close(); err != nil {
		return fmt.Errorf("file store: release lock: %w", err)
	}
	return nil
}

// modify applies fn to the document under an exclusive lock and writes the
// result when fn reports a change.
func (s *FileStore) modify(ctx context.Context, fn func(map[string]string) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil || !changed {
		return err
	}

	return s.write(doc)
}

func (s *FileStore) lock(ctx context.Context, exclusive bool) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.fileLock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.fileLock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire file lock")
	}

	return func() { _ = s.fileLock.Unlock() }, nil
}

// read loads the document. A missing or empty file is an empty document.
func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(data) == 0 {
		return map[string]string{}, nil
	}

	doc := map[string]string{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return doc, nil
}

// write replaces the document atomically.
func (s *FileStore) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
