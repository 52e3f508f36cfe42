package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/model"
	"github.com/vyrodovalexey/itemtracker/internal/tracker"
)

// Version is the application version.
const Version = "1.0.0"

const readyTimeout = 2 * time.Second

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	tracker Tracker
	views   ViewSource
	pinger  Pinger
	logger  *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance. pinger may be nil,
// in which case the service always reports ready.
func NewRESTHandler(t Tracker, views ViewSource, pinger Pinger, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		tracker: t,
		views:   views,
		pinger:  pinger,
		logger:  logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items", h.CreateItem).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/items", h.ClearItems).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/items/{id}", h.GetItem).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items/{id}/edit", h.EditItem).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/current", h.GetCurrent).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/current", h.UpdateCurrent).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/current", h.DeleteCurrent).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/current/back", h.Back).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/total", h.GetTotal).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/view", h.GetView).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Warn("storage not reachable", zap.Error(err))
			h.writeError(w, http.StatusServiceUnavailable, "storage not reachable")
			return
		}
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready"}))
}

// ListItems handles GET /api/v1/items requests.
func (h *RESTHandler) ListItems(w http.ResponseWriter, _ *http.Request) {
	list := model.ItemList{
		Items: h.tracker.Items(),
		Total: h.tracker.Total(),
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(list))
}

// GetItem handles GET /api/v1/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.tracker.Get(id)
	if err != nil {
		h.handleError(w, err, "get item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item))
}

// CreateItem handles POST /api/v1/items requests.
func (h *RESTHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	item, err := h.tracker.Add(r.Context(), input)
	if err != nil {
		h.handleError(w, err, "create item")
		return
	}

	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(item))
}

// ClearItems handles DELETE /api/v1/items requests.
func (h *RESTHandler) ClearItems(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.ClearClick(r.Context()); err != nil {
		h.handleError(w, err, "clear items")
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// EditItem handles POST /api/v1/items/{id}/edit requests.
func (h *RESTHandler) EditItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.tracker.EditClick(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "edit item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item))
}

// GetCurrent handles GET /api/v1/current requests.
func (h *RESTHandler) GetCurrent(w http.ResponseWriter, _ *http.Request) {
	item, ok := h.tracker.Current()
	if !ok {
		h.writeError(w, http.StatusNotFound, "no item selected")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item))
}

// UpdateCurrent handles PUT /api/v1/current requests.
func (h *RESTHandler) UpdateCurrent(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	item, err := h.tracker.Update(r.Context(), input)
	if err != nil {
		h.handleError(w, err, "update item")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(item))
}

// DeleteCurrent handles DELETE /api/v1/current requests.
func (h *RESTHandler) DeleteCurrent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.tracker.DeleteSubmit(r.Context()); err != nil {
		h.handleError(w, err, "delete item")
		return
	}

	h.writeJSON(w, http.StatusNoContent, nil)
}

// Back handles POST /api/v1/current/back requests.
func (h *RESTHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.tracker.BackClick(r.Context())
	h.writeJSON(w, http.StatusNoContent, nil)
}

// GetTotal handles GET /api/v1/total requests.
func (h *RESTHandler) GetTotal(w http.ResponseWriter, _ *http.Request) {
	response := model.TotalResponse{
		Total: h.tracker.Total(),
		Count: len(h.tracker.Items()),
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// GetView handles GET /api/v1/view requests.
func (h *RESTHandler) GetView(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.views.Snapshot()))
}

// itemID parses the {id} path variable and writes a 400 response when it
// is not an integer.
func (h *RESTHandler) itemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid item ID")
		return 0, false
	}
	return id, true
}

func (h *RESTHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.ItemInput, bool) {
	var input model.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return model.ItemInput{}, false
	}
	return input, true
}

// handleError maps command errors to HTTP responses.
func (h *RESTHandler) handleError(w http.ResponseWriter, err error, operation string) {
	var validationErr *tracker.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.logger.Warn("validation failed", zap.String("operation", operation), zap.Error(err))
		h.writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "validation failed",
			Details: validationErr.Fields,
		})
	case errors.Is(err, tracker.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, tracker.ErrNoCurrentItem):
		h.writeError(w, http.StatusConflict, "no item selected")
	default:
		h.logger.Error("command failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
