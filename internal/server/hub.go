// Package server coordinates session registration, message routing and
// worker lifecycle for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Hub owns the session registry, the router and every running worker.
// Transports (the TCP listener, the WebSocket handler) hand connections to
// Attach; Shutdown stops all workers.
type Hub struct {
	cfg      Config
	registry *Registry
	router   *Router
	metrics  *metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// HubOption configures a Hub.
type HubOption func(*hubOptions)

type hubOptions struct {
	logger   *slog.Logger
	registry *prometheus.Registry
}

// WithLogger sets the logger used by the hub and its sessions.
func WithLogger(logger *slog.Logger) HubOption {
	return func(o *hubOptions) {
		o.logger = logger
	}
}

// WithMetricsRegistry registers the hub's collectors with reg instead of a
// private registry.
func WithMetricsRegistry(reg *prometheus.Registry) HubOption {
	return func(o *hubOptions) {
		o.registry = reg
	}
}

// NewHub creates a hub ready to accept sessions.
func NewHub(cfg Config, opts ...HubOption) *Hub {
	o := hubOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	cfg = cfg.withDefaults()
	m := newMetrics(o.registry)
	registry := NewRegistry(cfg, m, o.logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		cfg:      cfg,
		registry: registry,
		router:   NewRouter(registry, cfg.Echo, m, o.logger),
		metrics:  m,
		gatherer: o.registry,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry returns the hub's session registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Router returns the hub's message router.
func (h *Hub) Router() *Router { return h.router }

// Gatherer returns the metrics source for the hub's collectors.
func (h *Hub) Gatherer() prometheus.Gatherer { return h.gatherer }

// Config returns the effective configuration.
func (h *Hub) Config() Config { return h.cfg }

// Attach registers a session for t and starts its worker. It returns
// ErrRegistryFull when the hub is at capacity and context.Canceled after
// Shutdown; in both cases t is left open for the caller to deal with.
func (h *Hub) Attach(t Transport) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ctx.Err(); err != nil {
		return nil, err
	}

	s, err := h.registry.Register(t)
	if err != nil {
		h.logger.Warn("Rejecting connection", "addr", t.RemoteAddr(), "error", err)
		return nil, err
	}

	w := newWorker(s, h.registry, h.router, h.cfg, h.metrics)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		w.run(h.ctx)
	}()
	return s, nil
}

// Shutdown asks every worker to send TRM and close, interrupting reads that
// are blocked on idle clients, then waits for the workers up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("Initiating hub shutdown...")

	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.interruptSessions()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("Hub shutdown timeout reached, some workers may still be running")
		return context.DeadlineExceeded
	}
}

// interruptSessions unblocks every worker waiting on its client.
func (h *Hub) interruptSessions() {
	count := 0
	h.registry.ForEach(func(s *Session) {
		s.interrupt()
		count++
	})
	h.logger.Info("Interrupted sessions", "count", count)
}
