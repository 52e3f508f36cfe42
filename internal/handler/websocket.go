package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/auth"
	"github.com/vyrodovalexey/itemtracker/internal/model"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	replyBuffer    = 16
)

// WebSocketHandler streams view snapshots to clients and runs the
// commands they send.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	tracker    Tracker
	views      ViewSource
	subscriber Subscriber
	logger     *zap.Logger
	mu         sync.RWMutex
	clients    map[*websocket.Conn]context.CancelFunc
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(t Tracker, views ViewSource, subscriber Subscriber, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		tracker:    t,
		views:      views,
		subscriber: subscriber,
		logger:     logger,
		clients:    make(map[*websocket.Conn]context.CancelFunc),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket handles WebSocket connection requests.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// Auth middleware, when enabled, has already stored the caller.
	caller, _ := auth.FromContext(r.Context())

	// The request context is canceled once this handler returns.
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := h.subscriber.Subscribe(ctx)
	if err != nil {
		cancel()
		h.logger.Error("failed to subscribe to view updates", zap.Error(err))
		if closeErr := conn.Close(); closeErr != nil {
			h.logger.Debug("error closing connection", zap.Error(closeErr))
		}
		return
	}

	h.mu.Lock()
	h.clients[conn] = cancel
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	replies := make(chan model.WebSocketMessage, replyBuffer)

	go h.writePump(ctx, conn, updates, replies)
	go h.readPump(ctx, conn, cancel, caller, replies)
}

// readPump decodes commands from the connection and dispatches them.
func (h *WebSocketHandler) readPump(
	ctx context.Context,
	conn *websocket.Conn,
	cancel context.CancelFunc,
	caller *auth.Identity,
	replies chan<- model.WebSocketMessage,
) {
	defer func() {
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
			h.handleCommand(ctx, caller, message, replies)
		}
	}
}

func (h *WebSocketHandler) handleCommand(
	ctx context.Context,
	caller *auth.Identity,
	message []byte,
	replies chan<- model.WebSocketMessage,
) {
	var cmd model.Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		h.logger.Debug("invalid websocket command", zap.ByteString("message", message), zap.Error(err))
		h.reply(replies, model.NewErrorMessage("invalid command"))
		return
	}

	if !caller.CanEdit() {
		h.logger.Warn("read-only websocket caller sent a command",
			zap.String("subject", caller.Subject),
			zap.String("type", cmd.Type),
		)
		h.reply(replies, model.NewErrorMessage(auth.ErrReadOnly.Error()))
		return
	}

	if err := h.tracker.Dispatch(ctx, cmd); err != nil {
		h.logger.Debug("websocket command failed", zap.String("type", cmd.Type), zap.Error(err))
		h.reply(replies, model.NewErrorMessage(err.Error()))
	}
}

// reply queues a message for the write pump, dropping it when the client
// is not keeping up.
func (h *WebSocketHandler) reply(replies chan<- model.WebSocketMessage, msg model.WebSocketMessage) {
	select {
	case replies <- msg:
	default:
		h.logger.Warn("dropping websocket reply", zap.String("type", msg.Type))
	}
}

// writePump owns all writes to the connection. It sends the current view
// first, then every newer snapshot, command errors and pings.
func (h *WebSocketHandler) writePump(
	ctx context.Context,
	conn *websocket.Conn,
	updates <-chan model.ViewState,
	replies <-chan model.WebSocketMessage,
) {
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	current := h.views.Snapshot()
	lastSeq := current.Seq
	if err := h.send(conn, model.NewViewMessage(current)); err != nil {
		h.logger.Debug("failed to send initial view", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn)
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			// The bus does not preserve order; never move a client backwards.
			if state.Seq <= lastSeq {
				continue
			}
			lastSeq = state.Seq
			if err := h.send(conn, model.NewViewMessage(state)); err != nil {
				h.logger.Debug("failed to send view update", zap.Error(err))
				return
			}
		case msg := <-replies:
			if err := h.send(conn, msg); err != nil {
				h.logger.Debug("failed to send reply", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg model.WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// sendPing sends a ping message to the connection.
func (h *WebSocketHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// sendCloseMessage sends a close message to the connection.
func (h *WebSocketHandler) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *WebSocketHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, exists := h.clients[conn]; exists {
		cancel()
		delete(h.clients, conn)
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAllConnections closes all active WebSocket connections.
func (h *WebSocketHandler) CloseAllConnections() {
	h.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(h.clients))
	for _, cancel := range h.clients {
		cancels = append(cancels, cancel)
	}
	h.mu.Unlock()

	// Canceling makes each write pump send a close frame.
	for _, cancel := range cancels {
		cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
