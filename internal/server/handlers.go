// Package server exposes HTTP handlers: the WebSocket transport for chat
// sessions and a health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocketHandler upgrades GET requests and attaches the connection to hub
// as an ordinary session speaking one command per text frame.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	policy := newOriginPolicy(hub.cfg.AllowedOrigins, hub.logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warn("WebSocket upgrade failed", "error", err)
			return
		}

		t := NewWebSocketTransport(conn, r.RemoteAddr, hub.cfg.maxLineSize())
		if _, err := hub.Attach(t); err != nil {
			reject(t, hub.cfg.WriteTimeout)
		}
	}
}

// HealthHandler reports that the relay is up and how many sessions it holds.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "talkrelay is running! sessions=%d", hub.registry.Len())
	}
}
