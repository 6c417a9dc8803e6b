// Package server wires HTTP handlers into a router via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes returns the HTTP surface of hub: health at "/", the WebSocket
// transport at "/ws" and Prometheus metrics at "/metrics".
func SetupRoutes(hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Get("/", HealthHandler(hub))
	r.HandleFunc("/ws", WebSocketHandler(hub))
	r.Handle("/metrics", promhttp.HandlerFor(hub.Gatherer(), promhttp.HandlerOpts{}))
	return r
}
