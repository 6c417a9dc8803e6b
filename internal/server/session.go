package server

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Session is the server-side state of one connected client: its identity,
// its mailbox of pending deliveries and the transport its worker owns.
//
// Any goroutine may append to the mailbox; only the session's own worker
// drains it.
type Session struct {
	id      uint64
	token   string
	addr    string
	conn    Transport
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	alias   string
	mailbox *queue.Queue
	limit   int
	closed  bool
	notify  chan struct{}
}

func newSession(id uint64, conn Transport, cfg Config, logger *slog.Logger) *Session {
	token := uuid.NewString()
	addr := conn.RemoteAddr()
	return &Session{
		id:      id,
		token:   token,
		addr:    addr,
		conn:    conn,
		limiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		logger:  logger.With("session", id, "conn", token, "addr", addr),
		alias:   cfg.DefaultAlias,
		mailbox: queue.New(),
		limit:   cfg.MailboxLimit,
		notify:  make(chan struct{}, 1),
	}
}

// ID returns the session id.
func (s *Session) ID() uint64 { return s.id }

// Token returns the connection token used to correlate log lines.
func (s *Session) Token() string { return s.token }

// Addr returns the peer address.
func (s *Session) Addr() string { return s.addr }

// Alias returns the current display name.
func (s *Session) Alias() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alias
}

func (s *Session) setAlias(alias string) {
	s.mu.Lock()
	s.alias = alias
	s.mu.Unlock()
}

// Deliver appends env to the mailbox and wakes the worker if it is idle.
func (s *Session) Deliver(env Envelope) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.mailbox.Length() >= s.limit {
		s.mu.Unlock()
		return ErrMailboxFull
	}
	s.mailbox.Add(env)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of undelivered envelopes.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailbox.Length()
}

// snapshot copies the mailbox in FIFO order without removing anything.
func (s *Session) snapshot() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.mailbox.Length()
	if n == 0 {
		return nil
	}
	out := make([]Envelope, n)
	for i := 0; i < n; i++ {
		out[i] = s.mailbox.Get(i).(Envelope)
	}
	return out
}

// discard drops the n oldest envelopes once they have been written.
func (s *Session) discard(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n && s.mailbox.Length() > 0; i++ {
		s.mailbox.Remove()
	}
}

// wake is signalled after every successful Deliver.
func (s *Session) wake() <-chan struct{} {
	return s.notify
}

// markClosed refuses further deliveries. Called by the registry on removal.
func (s *Session) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) interrupt() {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil && !isExpectedCloseError(err) {
		s.logger.Debug("Error interrupting read", "error", err)
	}
}

// validAlias trims alias and reports whether it can be displayed.
func validAlias(alias string, maxLen int) (string, bool) {
	alias = strings.TrimSpace(alias)
	if alias == "" || utf8.RuneCountInString(alias) > maxLen {
		return "", false
	}
	for _, r := range alias {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return "", false
		}
	}
	return alias, true
}
