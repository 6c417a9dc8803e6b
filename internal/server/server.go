// Package server implements the chat relay: a registry of sessions, one
// worker per connected client speaking the poll-based line protocol, a
// router fanning messages out into session mailboxes, and the TCP and
// WebSocket transports that feed them.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// Server runs a hub behind its TCP listener and, when HTTPAddr is set, the
// HTTP surface.
type Server struct {
	cfg      Config
	hub      *Hub
	listener *Listener
	http     *httpSurface
	logger   *slog.Logger
}

// New builds a server from cfg. Nothing is bound until Run.
func New(cfg Config, opts ...HubOption) *Server {
	hub := NewHub(cfg, opts...)
	s := &Server{
		cfg:      hub.cfg,
		hub:      hub,
		listener: NewListener(hub),
		logger:   hub.logger,
	}
	if s.cfg.HTTPAddr != "" {
		s.http = newHTTPSurface(hub)
	}
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub { return s.hub }

// Listener returns the server's TCP listener.
func (s *Server) Listener() *Listener { return s.listener }

// Run binds the listeners and serves until ctx is cancelled or a listener
// fails, then shuts everything down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := s.listener.Listen(s.cfg.Addr()); err != nil {
		return err
	}
	var httpLn net.Listener
	if s.http != nil {
		ln, err := s.http.listen()
		if err != nil {
			_ = s.listener.Close()
			return err
		}
		httpLn = ln
	}

	errc := make(chan error, 2)
	go func() {
		errc <- s.listener.Serve()
	}()
	if httpLn != nil {
		go func() {
			errc <- s.http.serve(httpLn)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		if runErr != nil {
			s.logger.Error("Listener failed", "error", runErr)
		}
	}

	return errors.Join(runErr, s.Shutdown(shutdownTimeout))
}

// Shutdown stops accepting connections, closes the HTTP server and
// terminates every session.
func (s *Server) Shutdown(timeout time.Duration) error {
	var errs []error
	if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
		errs = append(errs, err)
	}
	if s.http != nil {
		if err := s.http.shutdown(timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
