package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
)

// Listener accepts TCP connections and attaches each one to the hub.
// Connections beyond the hub's capacity receive TRM and are closed.
type Listener struct {
	hub    *Hub
	logger *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewListener returns a listener feeding hub.
func NewListener(hub *Hub) *Listener {
	return &Listener{
		hub:    hub,
		logger: hub.logger,
	}
}

// Listen binds addr. Use Serve to start accepting.
func (l *Listener) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	l.logger.Info("Listening for chat clients", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve runs the accept loop until Close. It returns nil after Close.
func (l *Listener) Serve() error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			l.logger.Warn("Accept error; retrying", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		l.accept(conn)
	}
}

// Close stops accepting. Attached sessions keep running until the hub shuts down.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *Listener) accept(conn net.Conn) {
	t := NewStreamTransport(conn, l.hub.cfg.maxLineSize())
	if _, err := l.hub.Attach(t); err != nil {
		reject(t, l.hub.cfg.WriteTimeout)
	}
}

// reject tells a connection that could not be admitted to go away.
func reject(t Transport, timeout time.Duration) {
	_ = t.SetWriteDeadline(time.Now().Add(timeout))
	_ = t.WriteCommand(protocol.Terminate)
	_ = t.Close()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
