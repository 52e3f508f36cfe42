package kv

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps values in a map. Data does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
	}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkContext(ctx, "get value"); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return nil, ErrNotFound
	}

	return slices.Clone(value), nil
}

// Set stores value under key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkContext(ctx, "set value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = slices.Clone(value)

	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := checkContext(ctx, "delete value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)

	return nil
}

// Update applies fn under the write lock.
func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := checkContext(ctx, "update value"); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(slices.Clone(s.values[key]))
	if err != nil {
		return err
	}
	if next == nil {
		delete(s.values, key)
		return nil
	}
	s.values[key] = slices.Clone(next)

	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return checkContext(ctx, "ping")
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
