// Package server runs one worker per session. The worker alternates between
// flushing the session mailbox to the client and asking the client for input,
// and owns the session's teardown.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
	"github.com/gorilla/websocket"
)

type step int

const (
	// stepNext polls the client again right away.
	stepNext step = iota
	// stepIdle waits for mail, the idle interval or shutdown before polling.
	stepIdle
	// stepClose ends the session.
	stepClose
)

type worker struct {
	session  *Session
	conn     Transport
	registry *Registry
	router   *Router
	cfg      Config
	metrics  *metrics
	logger   *slog.Logger
}

func newWorker(s *Session, registry *Registry, router *Router, cfg Config, m *metrics) *worker {
	return &worker{
		session:  s,
		conn:     s.conn,
		registry: registry,
		router:   router,
		cfg:      cfg,
		metrics:  m,
		logger:   s.logger,
	}
}

// run drives the session until the client leaves, the connection fails or
// ctx is cancelled. On the way out the session is removed from the registry
// before its connection is closed.
func (w *worker) run(ctx context.Context) {
	defer w.close()

	for {
		if ctx.Err() != nil {
			w.terminate()
			return
		}

		if err := w.flush(); err != nil {
			w.handleWriteError(err)
			return
		}

		cmd, err := w.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.terminate()
				return
			}
			w.handleReadError(err)
			return
		}

		switch w.handle(ctx, cmd) {
		case stepClose:
			return
		case stepIdle:
			w.idle(ctx)
		}
	}
}

// flush writes every queued envelope in FIFO order and then discards
// exactly those, so arrivals during the flush stay queued.
func (w *worker) flush() error {
	pending := w.session.snapshot()
	if len(pending) == 0 {
		return nil
	}

	for _, env := range pending {
		err := w.write(protocol.Message(env.Format()))
		if errors.Is(err, protocol.ErrNewline) {
			w.logger.Warn("Skipping undeliverable message", "from", env.From)
			continue
		}
		if err != nil {
			return err
		}
	}

	w.session.discard(len(pending))
	return nil
}

// poll sends RTT and waits for the client's answer.
func (w *worker) poll(ctx context.Context) (protocol.Command, error) {
	if err := w.write(protocol.RequestToTalk); err != nil {
		return protocol.Command{}, err
	}

	if err := w.conn.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout)); err != nil {
		return protocol.Command{}, err
	}
	// Shutdown cancels before interrupting reads, so a deadline set after
	// the interrupt is caught here.
	if err := ctx.Err(); err != nil {
		return protocol.Command{}, err
	}

	return w.conn.ReadCommand()
}

func (w *worker) handle(ctx context.Context, cmd protocol.Command) step {
	switch cmd.Kind {
	case protocol.KindNothing:
		return stepIdle

	case protocol.KindMessage:
		if cmd.Payload == "" {
			return stepIdle
		}
		if !w.checkText(cmd.Payload) {
			w.protocolError("bad_message", cmd)
			return stepIdle
		}
		n := w.router.Broadcast(w.session.id, cmd.Payload)
		w.logger.Debug("Received message", "delivered", n)
		w.throttle(ctx)
		return stepNext

	case protocol.KindPrivate:
		return w.handlePrivate(ctx, cmd)

	case protocol.KindRegister:
		return w.handleRegister(cmd)

	case protocol.KindTerminate:
		w.logger.Info("Client requested termination")
		return stepClose

	default:
		w.protocolError("unknown_command", cmd)
		return stepIdle
	}
}

func (w *worker) handlePrivate(ctx context.Context, cmd protocol.Command) step {
	dst, text, ok := cmd.PrivateTarget()
	if !ok || !w.checkText(text) {
		w.protocolError("bad_private", cmd)
		return stepIdle
	}
	if text == "" {
		return stepIdle
	}
	if err := w.router.SendPrivate(w.session.id, dst, text); err != nil {
		w.logger.Info("Private message not delivered", "to", dst, "error", err)
	}
	w.throttle(ctx)
	return stepNext
}

// handleRegister sets the alias and answers with the session id, or with
// the failure sentinel when the alias is unusable.
func (w *worker) handleRegister(cmd protocol.Command) step {
	reply := protocol.ID(w.session.id)

	alias, ok := validAlias(cmd.Payload, w.cfg.MaxAliasLength)
	if ok {
		w.session.setAlias(alias)
		w.logger.Info("Client set alias", "alias", alias)
	} else {
		w.protocolError("bad_register", cmd)
		reply = protocol.ID(protocol.NoSession)
	}

	if err := w.write(reply); err != nil {
		w.handleWriteError(err)
		return stepClose
	}
	return stepNext
}

func (w *worker) checkText(text string) bool {
	return !strings.ContainsAny(text, "\r\n")
}

// throttle holds back the next poll until the session's limiter has a token
// for it. The message just relayed has already been routed.
func (w *worker) throttle(ctx context.Context) {
	if w.session.limiter == nil {
		return
	}
	delay := w.session.limiter.Reserve().Delay()
	if delay <= 0 {
		return
	}

	if w.metrics != nil {
		w.metrics.messagesThrottled.Inc()
	}
	w.logger.Debug("Rate limit reached; delaying next poll", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *worker) protocolError(kind string, cmd protocol.Command) {
	if w.metrics != nil {
		w.metrics.protocolErrors.WithLabelValues(kind).Inc()
	}
	w.logger.Debug("Ignoring command", "kind", kind, "command", cmd.Kind.String(), "payload", cmd.Payload)
}

// idle blocks until mail arrives, the idle interval passes or ctx is done.
func (w *worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.cfg.IdlePoll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-w.session.wake():
	case <-timer.C:
	}
}

func (w *worker) write(cmd protocol.Command) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout)); err != nil {
		return err
	}
	return w.conn.WriteCommand(cmd)
}

// terminate tells the client the server is going away.
func (w *worker) terminate() {
	if err := w.write(protocol.Terminate); err != nil && !isExpectedCloseError(err) {
		w.logger.Debug("Error writing termination", "error", err)
	}
	w.logger.Info("Session terminated by server")
}

func (w *worker) close() {
	w.registry.Remove(w.session.id)
	if err := w.conn.Close(); err != nil && !isExpectedCloseError(err) {
		w.logger.Warn("Error closing connection", "error", err)
	}
}

// handleReadError logs a read failure at a level matching how expected it is.
func (w *worker) handleReadError(err error) {
	var netErr net.Error

	switch {
	case errors.Is(err, protocol.ErrLineTooLong):
		w.logger.Warn("Message exceeded maximum size", "limit", w.cfg.MaxMessageSize)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		w.logger.Info("Client connection closed")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		w.logger.Info("Client disconnected", "reason", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		w.logger.Warn("Client did not answer in time", "timeout", w.cfg.ReadTimeout)
	default:
		w.logger.Warn("Read error", "error", err)
	}
}

func (w *worker) handleWriteError(err error) {
	if isExpectedCloseError(err) {
		w.logger.Info("Client connection closed")
		return
	}
	w.logger.Warn("Write error", "error", err)
}
