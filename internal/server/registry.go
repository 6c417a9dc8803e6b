package server

import (
	"log/slog"
	"slices"
	"sync"
)

// Registry is the set of live sessions keyed by id. Ids start at 1, grow
// monotonically and are never reused within one registry.
//
// Lock order is registry then session: callbacks run by ForEach and
// ForEachOther may take a session's lock but must never block on I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	lastID   uint64
	capacity int

	cfg     Config
	metrics *metrics
	logger  *slog.Logger
}

// NewRegistry returns an empty registry admitting at most cfg.MaxClients sessions.
func NewRegistry(cfg Config, m *metrics, logger *slog.Logger) *Registry {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[uint64]*Session),
		capacity: cfg.MaxClients,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Register creates a session for conn with the next id and an empty mailbox.
// It returns ErrRegistryFull without consuming an id when at capacity.
func (r *Registry) Register(conn Transport) (*Session, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.capacity {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.sessionsRejected.Inc()
		}
		return nil, ErrRegistryFull
	}
	r.lastID++
	s := newSession(r.lastID, conn, r.cfg, r.logger)
	r.sessions[s.id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.sessionsTotal.Inc()
		r.metrics.activeSessions.Set(float64(count))
	}
	s.logger.Info("Client registered", "total", count)
	return s, nil
}

// Remove deletes the session and refuses further deliveries to it. It
// reports whether the session was present; removing twice is a no-op.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	s.markClosed()
	count := len(r.sessions)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.activeSessions.Set(float64(count))
	}
	s.logger.Info("Client unregistered", "total", count)
	return true
}

// Get returns the session with id.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ForEachOther calls fn for every session whose id differs from excludeID.
func (r *Registry) ForEachOther(excludeID uint64, fn func(*Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		if id != excludeID {
			fn(s)
		}
	}
}

// ForEach calls fn for every session.
func (r *Registry) ForEach(fn func(*Session)) {
	r.ForEachOther(0, fn)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.RLock()
	ids := make([]uint64, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}
