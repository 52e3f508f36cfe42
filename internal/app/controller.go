// Package app wires the item store, the storage backend and a presentation
// surface together and runs user commands against them one at a time.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/model"
	"github.com/vyrodovalexey/itemtracker/internal/tracker"
)

// Controller errors.
var (
	// ErrPersist indicates the in-memory change succeeded but could not be
	// written to storage.
	ErrPersist = errors.New("failed to persist items")

	// ErrUnknownCommand indicates a command type the controller does not handle.
	ErrUnknownCommand = errors.New("unknown command")
)

// Backend persists the item list.
type Backend interface {
	LoadAll(ctx context.Context) ([]model.Item, error)
	Save(ctx context.Context, item model.Item) error
	UpdateOne(ctx context.Context, item model.Item) error
	DeleteOne(ctx context.Context, id int) error
	ClearAll(ctx context.Context) error
}

// Surface displays the item list and holds the form input.
type Surface interface {
	Render(items []model.Item)
	AddRow(item model.Item)
	UpdateRow(item model.Item)
	RemoveRow(id int)
	ClearRows()
	ShowList()
	HideList()
	ShowTotal(total int64)
	ReadInput() model.ItemInput
	SetInput(input model.ItemInput)
	FillInput(item model.Item)
	ClearInput()
	ShowEditState()
	ClearEditState()
	ResolveElement(elementID string) (int, bool)
}

// Controller serializes user commands. Each command runs to completion
// before the next one starts.
type Controller struct {
	mu      sync.Mutex
	store   *tracker.Store
	backend Backend
	surface Surface
	logger  *zap.Logger
}

// New loads the persisted items and draws the initial surface.
func New(ctx context.Context, backend Backend, surface Surface, logger *zap.Logger) (*Controller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	items, err := backend.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	store, err := tracker.New(items)
	if err != nil {
		return nil, fmt.Errorf("build item store: %w", err)
	}

	c := &Controller{
		store:   store,
		backend: backend,
		surface: surface,
		logger:  logger,
	}

	surface.Render(store.Items())
	if store.Len() == 0 {
		surface.HideList()
	} else {
		surface.ShowList()
	}
	surface.ShowTotal(store.Total())
	surface.ClearEditState()

	trackerItems.Set(float64(store.Len()))
	trackerTotalQuantity.Set(float64(store.Total()))

	logger.Info("item tracker initialized",
		zap.Int("items", store.Len()),
		zap.Int64("total", store.Total()),
	)

	return c, nil
}

// AddSubmit adds the item described by the surface input.
func (c *Controller) AddSubmit(ctx context.Context) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.addLocked(ctx)
	observe(model.CommandAdd, err, c.store)
	return item, err
}

// Add sets the surface input and submits it.
func (c *Controller) Add(ctx context.Context, input model.ItemInput) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.SetInput(input)
	item, err := c.addLocked(ctx)
	observe(model.CommandAdd, err, c.store)
	return item, err
}

// EditClick selects the item with the given id and loads it into the form.
func (c *Controller) EditClick(ctx context.Context, id int) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.editLocked(id)
	observe(model.CommandEdit, err, c.store)
	return item, err
}

// EditElement selects the item shown by the given row element.
func (c *Controller) EditElement(ctx context.Context, elementID string) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.editElementLocked(elementID)
	observe(model.CommandEdit, err, c.store)
	return item, err
}

// UpdateSubmit writes the surface input to the selected item.
func (c *Controller) UpdateSubmit(ctx context.Context) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.updateLocked(ctx)
	observe(model.CommandUpdate, err, c.store)
	return item, err
}

// Update sets the surface input and writes it to the selected item.
func (c *Controller) Update(ctx context.Context, input model.ItemInput) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.surface.SetInput(input)
	item, err := c.updateLocked(ctx)
	observe(model.CommandUpdate, err, c.store)
	return item, err
}

// DeleteSubmit removes the selected item and returns it.
func (c *Controller) DeleteSubmit(ctx context.Context) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, err := c.deleteLocked(ctx)
	observe(model.CommandDelete, err, c.store)
	return item, err
}

// BackClick leaves the editing state without changing any item.
func (c *Controller) BackClick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.backLocked()
	observe(model.CommandBack, nil, c.store)
}

// ClearClick removes every item.
func (c *Controller) ClearClick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.clearLocked(ctx)
	observe(model.CommandClear, err, c.store)
	return err
}

// Dispatch runs a command received from a presentation surface. A command
// input, when present, replaces the form input before the command runs.
func (c *Controller) Dispatch(ctx context.Context, cmd model.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd.Input != nil {
		c.surface.SetInput(*cmd.Input)
	}

	var err error
	switch cmd.Type {
	case model.CommandAdd:
		_, err = c.addLocked(ctx)
	case model.CommandEdit:
		switch {
		case cmd.ElementID != "":
			_, err = c.editElementLocked(cmd.ElementID)
		case cmd.ItemID != nil:
			_, err = c.editLocked(*cmd.ItemID)
		default:
			err = fmt.Errorf("edit: missing element id: %w", tracker.ErrNotFound)
		}
	case model.CommandUpdate:
		_, err = c.updateLocked(ctx)
	case model.CommandDelete:
		_, err = c.deleteLocked(ctx)
	case model.CommandBack:
		c.backLocked()
	case model.CommandClear:
		err = c.clearLocked(ctx)
	default:
		c.logger.Warn("unknown command", zap.String("type", cmd.Type))
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}

	observe(cmd.Type, err, c.store)
	return err
}

// Items returns the tracked items in display order.
func (c *Controller) Items() []model.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Items()
}

// Total returns the sum of all quantities.
func (c *Controller) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Total()
}

// Current returns the selected item, if any.
func (c *Controller) Current() (model.Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Current()
}

// Get returns the item with the given id.
func (c *Controller) Get(id int) (model.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

func (c *Controller) addLocked(ctx context.Context) (model.Item, error) {
	item, err := c.store.Add(c.surface.ReadInput())
	if err != nil {
		return model.Item{}, err
	}

	c.surface.AddRow(item)
	c.surface.ShowTotal(c.store.Total())
	persistErr := c.backend.Save(ctx, item)
	c.surface.ClearInput()

	c.logger.Debug("item added", zap.Int("id", item.ID), zap.String("name", item.Name))
	return item, c.persistError("save", item.ID, persistErr)
}

func (c *Controller) editLocked(id int) (model.Item, error) {
	item, err := c.store.Select(id)
	if err != nil {
		return model.Item{}, err
	}

	c.surface.FillInput(item)
	c.surface.ShowEditState()
	return item, nil
}

func (c *Controller) editElementLocked(elementID string) (model.Item, error) {
	id, ok := c.surface.ResolveElement(elementID)
	if !ok {
		return model.Item{}, fmt.Errorf("element %q: %w", elementID, tracker.ErrNotFound)
	}
	return c.editLocked(id)
}

func (c *Controller) updateLocked(ctx context.Context) (model.Item, error) {
	item, err := c.store.Update(c.surface.ReadInput())
	if err != nil {
		return model.Item{}, err
	}

	c.surface.UpdateRow(item)
	c.surface.ShowTotal(c.store.Total())
	persistErr := c.backend.UpdateOne(ctx, item)
	c.surface.ClearEditState()

	c.logger.Debug("item updated", zap.Int("id", item.ID), zap.String("name", item.Name))
	return item, c.persistError("update", item.ID, persistErr)
}

func (c *Controller) deleteLocked(ctx context.Context) (model.Item, error) {
	item, ok := c.store.Current()
	if !ok {
		return model.Item{}, fmt.Errorf("delete item: %w", tracker.ErrNoCurrentItem)
	}

	if err := c.store.Delete(item.ID); err != nil {
		return model.Item{}, err
	}

	c.surface.RemoveRow(item.ID)
	if c.store.Len() == 0 {
		c.surface.HideList()
	}
	c.surface.ShowTotal(c.store.Total())
	persistErr := c.backend.DeleteOne(ctx, item.ID)
	c.surface.ClearEditState()

	c.logger.Debug("item deleted", zap.Int("id", item.ID))
	return item, c.persistError("delete", item.ID, persistErr)
}

func (c *Controller) backLocked() {
	c.store.Deselect()
	c.surface.ClearEditState()
}

func (c *Controller) clearLocked(ctx context.Context) error {
	c.store.Clear()
	c.surface.ClearRows()
	c.surface.HideList()
	c.surface.ShowTotal(0)
	persistErr := c.backend.ClearAll(ctx)
	c.surface.ClearEditState()

	c.logger.Debug("items cleared")
	return c.persistError("clear", -1, persistErr)
}

func (c *Controller) persistError(op string, id int, err error) error {
	if err == nil {
		return nil
	}

	c.logger.Error("failed to persist items",
		zap.String("op", op),
		zap.Int("id", id),
		zap.Error(err),
	)
	return fmt.Errorf("%w: %s: %w", ErrPersist, op, err)
}
