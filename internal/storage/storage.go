// Package storage mirrors the item list into a key-value backend. Every write
// re-encodes the whole list under a single key.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/itemtracker/internal/kv"
	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// DefaultKey is the key the item list is stored under.
const DefaultKey = "items"

// Items persists the item list as a JSON array in a kv.Store.
type Items struct {
	kv  kv.Store
	key string
}

// NewItems creates an Items backend. An empty key selects DefaultKey.
func NewItems(store kv.Store, key string) *Items {
	if key == "" {
		key = DefaultKey
	}
	return &Items{
		kv:  store,
		key: key,
	}
}

// Key returns the key the list is stored under.
func (s *Items) Key() string {
	return s.key
}

// LoadAll returns the stored list, or an empty list when nothing is stored.
func (s *Items) LoadAll(ctx context.Context) ([]model.Item, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

// Save appends one item to the stored list, creating the list if absent.
func (s *Items) Save(ctx context.Context, item model.Item) error {
	err := s.update(ctx, func(items []model.Item) []model.Item {
		return append(items, item)
	})
	if err != nil {
		return fmt.Errorf("save item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateOne replaces the stored item with the same id. Unknown ids leave
// the stored list unchanged.
func (s *Items) UpdateOne(ctx context.Context, item model.Item) error {
	err := s.update(ctx, func(items []model.Item) []model.Item {
		for i := range items {
			if items[i].ID == item.ID {
				items[i] = item
			}
		}
		return items
	})
	if err != nil {
		return fmt.Errorf("update item %d: %w", item.ID, err)
	}
	return nil
}

// DeleteOne removes the stored item with the given id.
func (s *Items) DeleteOne(ctx context.Context, id int) error {
	err := s.update(ctx, func(items []model.Item) []model.Item {
		kept := make([]model.Item, 0, len(items))
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		return kept
	})
	if err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// ClearAll removes the stored list entirely.
func (s *Items) ClearAll(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	return nil
}

// Ping reports whether the backend is reachable.
func (s *Items) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func (s *Items) load(ctx context.Context) ([]model.Item, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		return []model.Item{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

// update rewrites the stored list in one atomic read-modify-write, so
// concurrent writers sharing the backend never drop each other's changes.
func (s *Items) update(ctx context.Context, fn func([]model.Item) []model.Item) error {
	return s.kv.Update(ctx, s.key, func(current []byte) ([]byte, error) {
		items := []model.Item{}
		if current != nil {
			decoded, err := s.decode(current)
			if err != nil {
				return nil, err
			}
			items = decoded
		}

		data, err := json.Marshal(fn(items))
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.key, err)
		}
		return data, nil
	})
}

func (s *Items) decode(data []byte) ([]model.Item, error) {
	items := []model.Item{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	if items == nil {
		items = []model.Item{}
	}
	return items, nil
}
