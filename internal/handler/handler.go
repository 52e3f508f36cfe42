// Package handler provides HTTP request handlers for the REST API.
package handler

import (
	"context"

	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// Tracker runs item commands. It is implemented by app.Controller.
type Tracker interface {
	Items() []model.Item
	Total() int64
	Current() (model.Item, bool)
	Get(id int) (model.Item, error)
	Add(ctx context.Context, input model.ItemInput) (model.Item, error)
	EditClick(ctx context.Context, id int) (model.Item, error)
	Update(ctx context.Context, input model.ItemInput) (model.Item, error)
	DeleteSubmit(ctx context.Context) (model.Item, error)
	BackClick(ctx context.Context)
	ClearClick(ctx context.Context) error
	Dispatch(ctx context.Context, cmd model.Command) error
}

// ViewSource returns the current presentation state.
type ViewSource interface {
	Snapshot() model.ViewState
}

// Subscriber streams presentation updates until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.ViewState, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
