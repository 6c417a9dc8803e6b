// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the allow-list applied to WebSocket upgrades. Entries are
// kept as lower-case "scheme://host[:port]"; "*" admits any well-formed origin.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
	logger  *slog.Logger
}

func newOriginPolicy(origins []string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}
	for _, origin := range origins {
		p.add(origin)
	}
	return p
}

func (p *originPolicy) add(origin string) {
	origin = strings.TrimSpace(origin)
	switch origin {
	case "":
		return
	case "*":
		p.any = true
		return
	}

	key, ok := originKey(origin)
	if !ok {
		p.logger.Warn("Ignoring invalid origin in configuration", "origin", origin)
		return
	}
	p.allowed[key] = struct{}{}
}

// originKey reduces an origin to the form stored in the allow-list.
func originKey(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// check is the websocket.Upgrader CheckOrigin hook. Requests without an
// Origin header are refused: the relay has no same-origin page of its own.
func (p *originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if key, ok := originKey(origin); ok {
		if p.any {
			return true
		}
		if _, allowed := p.allowed[key]; allowed {
			return true
		}
	}

	p.logger.Warn("Blocked WebSocket connection from disallowed origin", "origin", origin)
	return false
}
