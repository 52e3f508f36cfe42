// Package model defines data structures used throughout the application.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Item is a single tracked entry, e.g. a meal and its calories.
type Item struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// ItemInput is the raw form input for an item. Quantity is kept as text
// until it has been validated.
type ItemInput struct {
	Name     string `json:"name" validate:"required"`
	Quantity string `json:"quantity" validate:"required,integer"`
}

// Normalize returns a copy of the input with surrounding whitespace removed.
func (in ItemInput) Normalize() ItemInput {
	return ItemInput{
		Name:     strings.TrimSpace(in.Name),
		Quantity: strings.TrimSpace(in.Quantity),
	}
}

// UnmarshalJSON accepts the quantity either as a JSON string or a JSON number.
func (in *ItemInput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string          `json:"name"`
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	in.Name = raw.Name
	in.Quantity = ""

	q := bytes.TrimSpace(raw.Quantity)
	switch {
	case len(q) == 0 || bytes.Equal(q, []byte("null")):
	case q[0] == '"':
		if err := json.Unmarshal(q, &in.Quantity); err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(q, &n); err != nil {
			return fmt.Errorf("quantity: %w", err)
		}
		in.Quantity = n.String()
	}

	return nil
}

// InputFromItem returns the form input that displays the given item.
func InputFromItem(item Item) ItemInput {
	return ItemInput{
		Name:     item.Name,
		Quantity: fmt.Sprintf("%d", item.Quantity),
	}
}

// ItemList is the payload of list responses.
type ItemList struct {
	Items []Item `json:"items"`
	Total int64  `json:"total"`
}

// TotalResponse is the payload of the total endpoint.
type TotalResponse struct {
	Total int64 `json:"total"`
	Count int   `json:"count"`
}

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Row is one rendered list entry.
type Row struct {
	ElementID string `json:"element_id"`
	ItemID    int    `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

// View modes.
const (
	ModeDefault = "default"
	ModeEditing = "editing"
)

// Affordances are the buttons of the item form.
type Affordances struct {
	Add    bool `json:"add"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
	Back   bool `json:"back"`
}

// ViewState is a snapshot of everything the presentation surface shows.
type ViewState struct {
	Seq         uint64      `json:"seq"`
	Rows        []Row       `json:"rows"`
	ListVisible bool        `json:"list_visible"`
	Total       int64       `json:"total"`
	Input       ItemInput   `json:"input"`
	Mode        string      `json:"mode"`
	Affordances Affordances `json:"affordances"`
}

// WebSocketMessage represents a message sent over WebSocket connection.
type WebSocketMessage struct {
	Type      string     `json:"type"`
	View      *ViewState `json:"view,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeView  = "view"
	WSMessageTypeError = "error"
)

// NewViewMessage creates a WebSocket message carrying a view snapshot.
func NewViewMessage(state ViewState) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeView,
		View:      &state,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates a WebSocket message reporting a failed command.
func NewErrorMessage(errMsg string) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}

// Command types accepted from a presentation surface.
const (
	CommandAdd    = "add"
	CommandEdit   = "edit"
	CommandUpdate = "update"
	CommandDelete = "delete"
	CommandBack   = "back"
	CommandClear  = "clear"
)

// Command is a user action forwarded by a presentation surface.
// Edit commands identify the row either by element id or by item id.
type Command struct {
	Type      string     `json:"type"`
	ElementID string     `json:"element_id,omitempty"`
	ItemID    *int       `json:"item_id,omitempty"`
	Input     *ItemInput `json:"input,omitempty"`
}
