package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/autoannotate/internal/server/api"
	"github.com/ayusman/autoannotate/internal/store"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// uploadEvent is sent to every client once an upload is recorded.
type uploadEvent struct {
	Type   string             `json:"type"`
	Upload api.UploadResponse `json:"upload"`
}

// EventHub pushes upload events to WebSocket clients.
type EventHub struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
	logger  *zap.SugaredLogger
}

// NewEventHub creates an EventHub with no clients.
func NewEventHub(logger *zap.SugaredLogger) *EventHub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventHub{
		clients: make(map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends u to every connected client. Clients that cannot be
// written to are dropped.
func (h *EventHub) Broadcast(u *store.Upload) {
	msg, err := json.Marshal(uploadEvent{Type: "upload", Upload: api.NewUploadResponse(u)})
	if err != nil {
		h.logger.Errorw("Failed to encode upload event", "id", u.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debugw("Dropping event client", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
