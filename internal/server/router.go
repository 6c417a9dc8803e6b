package server

import (
	"errors"
	"log/slog"
)

// Router fans client messages out into session mailboxes.
type Router struct {
	registry *Registry
	echo     bool
	metrics  *metrics
	logger   *slog.Logger
}

// NewRouter returns a router over registry. With echo set the sender also
// receives its own broadcasts.
func NewRouter(registry *Registry, echo bool, m *metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		registry: registry,
		echo:     echo,
		metrics:  m,
		logger:   logger,
	}
}

// Broadcast queues text, tagged with the sender's alias, for every other
// session. It returns the number of mailboxes that accepted the message;
// an unknown sender delivers nothing.
func (rt *Router) Broadcast(srcID uint64, text string) int {
	src, ok := rt.registry.Get(srcID)
	if !ok {
		return 0
	}
	env := Envelope{From: src.Alias(), Text: text}

	exclude := srcID
	if rt.echo {
		exclude = 0
	}

	delivered := 0
	targets := 0
	rt.registry.ForEachOther(exclude, func(s *Session) {
		targets++
		if err := s.Deliver(env); err != nil {
			rt.drop(s, err)
			return
		}
		delivered++
	})

	if rt.metrics != nil {
		rt.metrics.messagesRelayed.WithLabelValues("broadcast").Inc()
	}
	rt.logger.Debug("Broadcasting message", "from", srcID, "targets", targets, "delivered", delivered)
	return delivered
}

// SendPrivate queues text for dstID only. It returns ErrNoSuchSession when
// dstID is not registered and ErrMailboxFull when the message was dropped.
func (rt *Router) SendPrivate(srcID, dstID uint64, text string) error {
	src, ok := rt.registry.Get(srcID)
	if !ok {
		return ErrNoSuchSession
	}
	dst, ok := rt.registry.Get(dstID)
	if !ok {
		return ErrNoSuchSession
	}

	if err := dst.Deliver(Envelope{From: src.Alias(), Text: text}); err != nil {
		rt.drop(dst, err)
		if errors.Is(err, ErrSessionClosed) {
			return ErrNoSuchSession
		}
		return err
	}

	if rt.metrics != nil {
		rt.metrics.messagesRelayed.WithLabelValues("private").Inc()
	}
	return nil
}

func (rt *Router) drop(s *Session, err error) {
	if rt.metrics != nil {
		rt.metrics.dropped(err)
	}
	s.logger.Warn("Dropped delivery", "error", err)
}
