// Package kv provides the durable key-value backends item data is kept in.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// KV errors.
var (
	ErrNotFound       = errors.New("key not found")
	ErrEmptyKey       = errors.New("key cannot be empty")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrConflict       = errors.New("key changed concurrently, update abandoned")
)

// maxUpdateAttempts bounds optimistic retries in Update.
const maxUpdateAttempts = 32

// UpdateFunc computes the new value of a key from its current value.
// current is nil when the key is absent. Returning a nil value removes the
// key; returning an error aborts the update without writing. It may run
// more than once when a backend retries.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a string-keyed byte store.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Update reads, transforms and writes key as one atomic step with
	// respect to every other writer of the same backend, including other
	// processes.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Options select and configure a backend.
type Options struct {
	Backend  string
	Path     string
	RedisURL string
}

// Open creates the backend named in opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(opts.Path)
	case BackendBadger:
		return NewBadgerStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(opts.RedisURL)
	default:
		return nil, ErrUnknownBackend
	}
}

func checkContext(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
		return nil
	}
}
