// Package view holds the presentation state of the tracker: the rendered
// list, the total, the item form and which form buttons are shown.
package view

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// Publisher receives a snapshot after every change.
type Publisher interface {
	Publish(state model.ViewState) error
}

// View is the server-side presentation surface. Rows are addressed by
// element id; the element→item mapping is kept here so callers never parse
// ids back out of element names.
type View struct {
	mu          sync.RWMutex
	rows        []model.Row
	elements    map[string]int
	byItem      map[int]string
	listVisible bool
	total       int64
	input       model.ItemInput
	mode        string
	seq         uint64

	publisher Publisher
	logger    *zap.Logger
}

// New creates an empty View. publisher may be nil.
func New(publisher Publisher, logger *zap.Logger) *View {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		elements:  make(map[string]int),
		byItem:    make(map[int]string),
		mode:      model.ModeDefault,
		publisher: publisher,
		logger:    logger,
	}
}

// ElementID names the row element of an item.
func ElementID(itemID int) string {
	return fmt.Sprintf("item-%d", itemID)
}

// Render replaces all rows with the given items.
func (v *View) Render(items []model.Item) {
	v.update(func() {
		v.rows = make([]model.Row, 0, len(items))
		v.elements = make(map[string]int, len(items))
		v.byItem = make(map[int]string, len(items))
		for _, item := range items {
			v.appendRow(item)
		}
	})
}

// AddRow appends a row for item and shows the list.
func (v *View) AddRow(item model.Item) {
	v.update(func() {
		v.listVisible = true
		v.appendRow(item)
	})
}

// UpdateRow redraws the row of item. Unknown items are ignored.
func (v *View) UpdateRow(item model.Item) {
	v.update(func() {
		element, ok := v.byItem[item.ID]
		if !ok {
			v.logger.Debug("update of unrendered item", zap.Int("item_id", item.ID))
			return
		}
		i := v.rowIndex(element)
		v.rows[i].Name = item.Name
		v.rows[i].Quantity = item.Quantity
	})
}

// RemoveRow drops the row of the item with the given id.
func (v *View) RemoveRow(id int) {
	v.update(func() {
		element, ok := v.byItem[id]
		if !ok {
			return
		}
		i := v.rowIndex(element)
		v.rows = slices.Delete(v.rows, i, i+1)
		delete(v.elements, element)
		delete(v.byItem, id)
	})
}

// ClearRows removes every row.
func (v *View) ClearRows() {
	v.update(func() {
		v.rows = nil
		v.elements = make(map[string]int)
		v.byItem = make(map[int]string)
	})
}

// ShowList makes the list visible.
func (v *View) ShowList() {
	v.update(func() { v.listVisible = true })
}

// HideList hides the list.
func (v *View) HideList() {
	v.update(func() { v.listVisible = false })
}

// ShowTotal displays the total.
func (v *View) ShowTotal(total int64) {
	v.update(func() { v.total = total })
}

// ReadInput returns the current form input.
func (v *View) ReadInput() model.ItemInput {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.input
}

// SetInput replaces the form input, as if typed by the user.
func (v *View) SetInput(input model.ItemInput) {
	v.update(func() { v.input = input })
}

// FillInput loads item into the form. The mode is left to ShowEditState.
func (v *View) FillInput(item model.Item) {
	v.update(func() { v.input = model.InputFromItem(item) })
}

// ClearInput empties the form.
func (v *View) ClearInput() {
	v.update(func() { v.input = model.ItemInput{} })
}

// ShowEditState shows the update, delete and back buttons.
func (v *View) ShowEditState() {
	v.update(func() { v.mode = model.ModeEditing })
}

// ClearEditState empties the form and shows only the add button.
func (v *View) ClearEditState() {
	v.update(func() {
		v.input = model.ItemInput{}
		v.mode = model.ModeDefault
	})
}

// ResolveElement returns the item id shown by the given row element.
func (v *View) ResolveElement(elementID string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.elements[elementID]
	return id, ok
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() model.ViewState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() model.ViewState {
	rows := slices.Clone(v.rows)
	if rows == nil {
		rows = []model.Row{}
	}

	editing := v.mode == model.ModeEditing
	return model.ViewState{
		Seq:         v.seq,
		Rows:        rows,
		ListVisible: v.listVisible,
		Total:       v.total,
		Input:       v.input,
		Mode:        v.mode,
		Affordances: model.Affordances{
			Add:    !editing,
			Update: editing,
			Delete: editing,
			Back:   editing,
		},
	}
}

// update applies fn under the lock and publishes the resulting snapshot.
func (v *View) update(fn func()) {
	v.mu.Lock()
	fn()
	v.seq++
	state := v.snapshotLocked()
	v.mu.Unlock()

	if v.publisher == nil {
		return
	}
	if err := v.publisher.Publish(state); err != nil {
		v.logger.Warn("failed to publish view update", zap.Uint64("seq", state.Seq), zap.Error(err))
	}
}

func (v *View) appendRow(item model.Item) {
	element := ElementID(item.ID)
	v.rows = append(v.rows, model.Row{
		ElementID: element,
		ItemID:    item.ID,
		Name:      item.Name,
		Quantity:  item.Quantity,
	})
	v.elements[element] = item.ID
	v.byItem[item.ID] = element
}

func (v *View) rowIndex(element string) int {
	return slices.IndexFunc(v.rows, func(r model.Row) bool {
		return r.ElementID == element
	})
}
