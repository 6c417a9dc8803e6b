// Package server binds and serves the relay's HTTP surface: health, the
// WebSocket transport and metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// httpSurface is the optional HTTP side of a Server. Upgraded WebSocket
// connections leave it at hijack time; their deadlines belong to the worker.
type httpSurface struct {
	srv    *http.Server
	logger *slog.Logger
}

func newHTTPSurface(hub *Hub) *httpSurface {
	return &httpSurface{
		srv: &http.Server{
			Addr:              hub.cfg.HTTPAddr,
			Handler:           SetupRoutes(hub),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: hub.logger.With("component", "http"),
	}
}

// listen binds the configured address so that a busy port fails Run before
// any session is accepted.
func (h *httpSurface) listen() (net.Listener, error) {
	return net.Listen("tcp", h.srv.Addr)
}

// serve blocks until the surface is shut down, which is not an error.
func (h *httpSurface) serve(ln net.Listener) error {
	h.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *httpSurface) shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	h.logger.Info("HTTP server stopped")
	return nil
}
