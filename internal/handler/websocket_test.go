package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemtracker/internal/app"
	"github.com/vyrodovalexey/itemtracker/internal/auth"
	"github.com/vyrodovalexey/itemtracker/internal/kv"
	"github.com/vyrodovalexey/itemtracker/internal/model"
	"github.com/vyrodovalexey/itemtracker/internal/storage"
	"github.com/vyrodovalexey/itemtracker/internal/tracker"
	"github.com/vyrodovalexey/itemtracker/internal/view"
)

// wsStack is a WebSocket handler wired to a real controller, view and bus.
type wsStack struct {
	handler *WebSocketHandler
	server  *httptest.Server
	bus     *view.Bus
	surface *view.View
	ctrl    *app.Controller
}

func newWSStack(t *testing.T, items ...model.Item) *wsStack {
	t.Helper()
	ctx := context.Background()

	backend := storage.NewItems(kv.NewMemoryStore(), storage.DefaultKey)
	for _, item := range items {
		if err := backend.Save(ctx, item); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	bus := view.NewBus(zap.NewNop())
	surface := view.New(bus, zap.NewNop())
	ctrl, err := app.New(ctx, backend, surface, zap.NewNop())
	if err != nil {
		t.Fatalf("app.New() unexpected error: %v", err)
	}

	handler := NewWebSocketHandler(ctrl, surface, bus, zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))

	s := &wsStack{handler: handler, server: server, bus: bus, surface: surface, ctrl: ctrl}
	t.Cleanup(func() {
		handler.CloseAllConnections()
		server.Close()
		_ = bus.Close()
	})
	return s
}

func (s *wsStack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) model.WebSocketMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	var msg model.WebSocketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// readUntil reads messages until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(model.WebSocketMessage) bool) model.WebSocketMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		msg := readMessage(t, conn)
		if match(msg) {
			return msg
		}
	}
	t.Fatal("expected message not received")
	return model.WebSocketMessage{}
}

func TestNewWebSocketHandler(t *testing.T) {
	// Act
	handler := NewWebSocketHandler(&mockTracker{}, view.New(nil, nil), view.NewBus(zap.NewNop()), zap.NewNop())

	// Assert
	if handler == nil {
		t.Fatal("NewWebSocketHandler() returned nil")
	}
	if handler.clients == nil {
		t.Error("clients map should be initialized")
	}
	if handler.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", handler.ClientCount())
	}
}

func TestWebSocketHandler_RegisterRoutes(t *testing.T) {
	// Arrange
	handler := NewWebSocketHandler(&mockTracker{}, view.New(nil, nil), view.NewBus(zap.NewNop()), zap.NewNop())
	router := mux.NewRouter()

	// Act
	handler.RegisterRoutes(router)

	// Assert
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// The upgrade fails without websocket headers, but the route exists.
	if rr.Code == http.StatusNotFound {
		t.Error("Route /ws not found")
	}
}

func TestWebSocketHandler_InvalidUpgrade(t *testing.T) {
	// Arrange
	handler := NewWebSocketHandler(&mockTracker{}, view.New(nil, nil), view.NewBus(zap.NewNop()), zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rr := httptest.NewRecorder()

	// Act
	handler.HandleWebSocket(rr, req)

	// Assert
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if handler.ClientCount() != 0 {
		t.Error("failed upgrade should not register a client")
	}
}

func TestWebSocketHandler_SendsInitialView(t *testing.T) {
	// Arrange
	stack := newWSStack(t, model.Item{ID: 0, Name: "Steak", Quantity: 1200})

	// Act
	conn := stack.dial(t)
	msg := readMessage(t, conn)

	// Assert
	if msg.Type != model.WSMessageTypeView || msg.View == nil {
		t.Fatalf("message = %+v, want a view", msg)
	}
	if len(msg.View.Rows) != 1 || msg.View.Total != 1200 {
		t.Errorf("view = %+v", msg.View)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should not be zero")
	}
}

func TestWebSocketHandler_CommandsUpdateView(t *testing.T) {
	// Arrange
	stack := newWSStack(t, model.Item{ID: 0, Name: "Steak", Quantity: 1200})
	conn := stack.dial(t)
	readMessage(t, conn)

	// Act
	err := conn.WriteJSON(model.Command{Type: model.CommandEdit, ElementID: "item-0"})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// Assert
	msg := readUntil(t, conn, func(m model.WebSocketMessage) bool {
		return m.View != nil && m.View.Mode == model.ModeEditing
	})
	if msg.View.Input.Name != "Steak" || !msg.View.Affordances.Update {
		t.Errorf("view = %+v", msg.View)
	}
	if cur, ok := stack.ctrl.Current(); !ok || cur.ID != 0 {
		t.Error("controller should have the item selected")
	}
}

func TestWebSocketHandler_AddCommand(t *testing.T) {
	// Arrange
	stack := newWSStack(t)
	conn := stack.dial(t)
	readMessage(t, conn)

	// Act
	err := conn.WriteJSON(model.Command{
		Type:  model.CommandAdd,
		Input: &model.ItemInput{Name: "Cookie", Quantity: "400"},
	})
	if err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// Assert
	readUntil(t, conn, func(m model.WebSocketMessage) bool {
		return m.View != nil && m.View.Total == 400 && len(m.View.Rows) == 1
	})
	if stack.ctrl.Total() != 400 {
		t.Errorf("Total() = %d, want 400", stack.ctrl.Total())
	}
}

func TestWebSocketHandler_CommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "invalid json", payload: `{"type":`, want: "invalid command"},
		{name: "precondition", payload: `{"type":"delete"}`, want: tracker.ErrNoCurrentItem.Error()},
		{name: "validation", payload: `{"type":"add","input":{"name":"","quantity":"1"}}`, want: tracker.ErrValidation.Error()},
		{name: "unknown", payload: `{"type":"explode"}`, want: app.ErrUnknownCommand.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			stack := newWSStack(t)
			conn := stack.dial(t)
			readMessage(t, conn)

			// Act
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)); err != nil {
				t.Fatalf("WriteMessage: %v", err)
			}

			// Assert
			msg := readUntil(t, conn, func(m model.WebSocketMessage) bool {
				return m.Type == model.WSMessageTypeError
			})
			if !strings.Contains(msg.Error, tt.want) {
				t.Errorf("Error = %q, want it to contain %q", msg.Error, tt.want)
			}
		})
	}
}

func TestWebSocketHandler_ReadOnlyCaller(t *testing.T) {
	// Arrange
	stack := newWSStack(t, model.Item{ID: 0, Name: "Steak", Quantity: 1200})
	viewer := &auth.Identity{Scheme: auth.SchemeAPIKey, Subject: "dashboard", ReadOnly: true}
	withViewer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stack.handler.HandleWebSocket(w, r.WithContext(auth.WithIdentity(r.Context(), viewer)))
	})
	server := httptest.NewServer(withViewer)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	initial := readMessage(t, conn)

	// Act
	if err := conn.WriteJSON(model.Command{Type: model.CommandClear}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	// Assert
	msg := readUntil(t, conn, func(m model.WebSocketMessage) bool {
		return m.Type == model.WSMessageTypeError
	})
	if msg.Error != auth.ErrReadOnly.Error() {
		t.Errorf("Error = %q, want %q", msg.Error, auth.ErrReadOnly.Error())
	}
	if initial.View == nil || len(initial.View.Rows) != 1 {
		t.Errorf("viewer should still receive the view, got %+v", initial)
	}
	if stack.ctrl.Total() != 1200 {
		t.Errorf("Total() = %d, want 1200", stack.ctrl.Total())
	}
}

func TestWebSocketHandler_BroadcastsRESTChanges(t *testing.T) {
	// Arrange
	stack := newWSStack(t)
	first := stack.dial(t)
	second := stack.dial(t)
	readMessage(t, first)
	readMessage(t, second)

	// Act
	if _, err := stack.ctrl.Add(context.Background(), model.ItemInput{Name: "Eggs", Quantity: "300"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Assert
	for _, conn := range []*websocket.Conn{first, second} {
		readUntil(t, conn, func(m model.WebSocketMessage) bool {
			return m.View != nil && m.View.Total == 300
		})
	}
}

func TestWebSocketHandler_SequenceNeverDecreases(t *testing.T) {
	// Arrange
	stack := newWSStack(t)
	conn := stack.dial(t)
	last := readMessage(t, conn).View.Seq
	ctx := context.Background()

	// Act
	for i := 0; i < 5; i++ {
		if _, err := stack.ctrl.Add(ctx, model.ItemInput{Name: "Snack", Quantity: "10"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	// Assert
	for {
		msg := readMessage(t, conn)
		if msg.View == nil {
			continue
		}
		if msg.View.Seq <= last {
			t.Fatalf("seq %d after %d", msg.View.Seq, last)
		}
		last = msg.View.Seq
		if msg.View.Total == 50 {
			return
		}
	}
}

func TestWebSocketHandler_ClientDisconnect(t *testing.T) {
	// Arrange
	stack := newWSStack(t)
	conn := stack.dial(t)
	readMessage(t, conn)

	// Act
	_ = conn.Close()

	// Assert
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stack.handler.ClientCount() == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("ClientCount() = %d, want 0", stack.handler.ClientCount())
}

func TestWebSocketHandler_CloseAllConnections(t *testing.T) {
	// Arrange
	stack := newWSStack(t)
	conn := stack.dial(t)
	readMessage(t, conn)

	// Act
	stack.handler.CloseAllConnections()

	// Assert
	if stack.handler.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", stack.handler.ClientCount())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebSocketHandler_CloseAllConnections_Empty(t *testing.T) {
	handler := NewWebSocketHandler(&mockTracker{}, view.New(nil, nil), view.NewBus(zap.NewNop()), zap.NewNop())

	handler.CloseAllConnections()

	if handler.ClientCount() != 0 {
		t.Error("ClientCount() should stay 0")
	}
}

func TestWebSocketConstants(t *testing.T) {
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod (%v) must be less than pongWait (%v)", pingPeriod, pongWait)
	}
	if maxMessageSize <= 0 || replyBuffer <= 0 {
		t.Error("buffer sizes must be positive")
	}
}
