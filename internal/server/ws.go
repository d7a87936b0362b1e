package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// TelemetryHandler pushes pipeline telemetry to websocket clients at a
// fixed rate. Each connection has its own writer loop, so a slow client
// only delays itself.
type TelemetryHandler struct {
	pipeline Pipeline
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewTelemetryHandler creates a handler sending hz messages a second.
func NewTelemetryHandler(p Pipeline, hz int, logger *slog.Logger) *TelemetryHandler {
	if hz <= 0 {
		hz = DefaultTelemetryHz
	}
	return &TelemetryHandler{
		pipeline: p,
		interval: time.Second / time.Duration(hz),
		logger:   logger,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TelemetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
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

	// Drain client messages so close frames are seen.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}

		t, ok := h.pipeline.Telemetry()
		if !ok {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(t); err != nil {
			h.logger.Debug("telemetry client gone", "error", err)
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *TelemetryHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
