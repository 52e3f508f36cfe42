// Package tracker holds the authoritative list of tracked items, the item
// currently selected for editing and the running total.
package tracker

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/vyrodovalexey/itemtracker/internal/model"
	"github.com/vyrodovalexey/itemtracker/internal/validator"
)

// Store is the in-memory item list. It is not safe for concurrent use;
// callers serialize access.
type Store struct {
	items   []model.Item
	current int
	hasCur  bool
	total   int64
}

// New creates a Store holding the given items in order.
// Items must have unique ids.
func New(items []model.Item) (*Store, error) {
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("load item %d: %w", item.ID, ErrDuplicateID)
		}
		seen[item.ID] = struct{}{}
	}

	s := &Store{items: slices.Clone(items)}
	if s.items == nil {
		s.items = []model.Item{}
	}
	s.Total()

	return s, nil
}

// Items returns the items in display order.
func (s *Store) Items() []model.Item {
	return slices.Clone(s.items)
}

// Len returns the number of items.
func (s *Store) Len() int {
	return len(s.items)
}

// Add validates the input and appends a new item with the next id.
func (s *Store) Add(input model.ItemInput) (model.Item, error) {
	name, quantity, err := parseInput(input)
	if err != nil {
		return model.Item{}, err
	}

	item := model.Item{
		ID:       s.nextID(),
		Name:     name,
		Quantity: quantity,
	}
	s.items = append(s.items, item)

	return item, nil
}

// Get returns the first item with the given id.
func (s *Store) Get(id int) (model.Item, error) {
	i := s.indexOf(id)
	if i < 0 {
		return model.Item{}, fmt.Errorf("get item %d: %w", id, ErrNotFound)
	}
	return s.items[i], nil
}

// Update overwrites the name and quantity of the selected item and clears
// the selection. No other item is touched.
func (s *Store) Update(input model.ItemInput) (model.Item, error) {
	if !s.hasCur {
		return model.Item{}, fmt.Errorf("update item: %w", ErrNoCurrentItem)
	}

	id := s.current
	i := s.indexOf(id)
	if i < 0 {
		s.Deselect()
		return model.Item{}, fmt.Errorf("update item %d: %w", id, ErrNotFound)
	}

	name, quantity, err := parseInput(input)
	if err != nil {
		return model.Item{}, err
	}

	s.items[i].Name = name
	s.items[i].Quantity = quantity
	s.Deselect()

	return s.items[i], nil
}

// Delete removes the item with the given id. Deleting the selected item
// clears the selection.
func (s *Store) Delete(id int) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete item %d: %w", id, ErrNotFound)
	}

	s.items = slices.Delete(s.items, i, i+1)
	if s.hasCur && s.current == id {
		s.Deselect()
	}

	return nil
}

// Clear removes every item and the selection.
func (s *Store) Clear() {
	s.items = []model.Item{}
	s.Deselect()
}

// Select marks the item with the given id as the one being edited.
func (s *Store) Select(id int) (model.Item, error) {
	item, err := s.Get(id)
	if err != nil {
		return model.Item{}, err
	}

	s.current = id
	s.hasCur = true

	return item, nil
}

// Current returns the selected item, if any.
func (s *Store) Current() (model.Item, bool) {
	if !s.hasCur {
		return model.Item{}, false
	}
	i := s.indexOf(s.current)
	if i < 0 {
		return model.Item{}, false
	}
	return s.items[i], true
}

// Deselect clears the selection.
func (s *Store) Deselect() {
	s.current = 0
	s.hasCur = false
}

// Total sums the quantity of all items.
func (s *Store) Total() int64 {
	var total int64
	for _, item := range s.items {
		total += int64(item.Quantity)
	}
	s.total = total
	return s.total
}

// nextID is one past the highest id in the list, or 0 for an empty list.
func (s *Store) nextID() int {
	if len(s.items) == 0 {
		return 0
	}

	highest := s.items[0].ID
	for _, item := range s.items[1:] {
		highest = max(highest, item.ID)
	}
	return highest + 1
}

func (s *Store) indexOf(id int) int {
	return slices.IndexFunc(s.items, func(item model.Item) bool {
		return item.ID == id
	})
}

// parseInput validates the raw form input and converts the quantity.
func parseInput(input model.ItemInput) (string, int, error) {
	in := input.Normalize()
	if err := validator.Validate(&in); err != nil {
		return "", 0, &ValidationError{Fields: validator.FormatValidationErrors(err)}
	}

	quantity, err := strconv.Atoi(in.Quantity)
	if err != nil {
		return "", 0, &ValidationError{Fields: map[string]string{"quantity": "Must be a whole number"}}
	}

	return in.Name, quantity, nil
}
