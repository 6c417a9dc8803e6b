// Package server defines shared message types, sentinel errors and utility
// helpers reused across the registry, router and worker.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrRegistryFull is returned when a connection arrives while MaxClients
	// sessions are already registered.
	ErrRegistryFull = errors.New("server: session registry is full")
	// ErrNoSuchSession is returned when a private message targets an id that
	// is not registered.
	ErrNoSuchSession = errors.New("server: no such session")
	// ErrMailboxFull is returned when a recipient's mailbox cannot take more
	// messages; the message is dropped.
	ErrMailboxFull = errors.New("server: mailbox is full")
	// ErrSessionClosed is returned when delivering to a session that has
	// already been removed from the registry.
	ErrSessionClosed = errors.New("server: session is closed")
)

// Envelope is one pending delivery in a session mailbox. The sender alias is
// captured when the message is routed and formatted only when it is written.
type Envelope struct {
	From string
	Text string
}

// Format renders the envelope as the client displays it: "(alias) text".
func (e Envelope) Format() string {
	return "(" + e.From + ") " + e.Text
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "io: read/write on closed pipe")
}
