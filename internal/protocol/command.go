// Package protocol implements the line-oriented command set spoken between
// the relay server and its clients.
//
// Every command is a single newline-terminated line made of a three-letter,
// case-sensitive prefix, optionally followed by one space and a payload.
// A bare decimal line is the server's reply to a registration request.
package protocol

import (
	"strconv"
	"strings"
)

// Kind identifies a command on the wire.
type Kind int

const (
	// KindUnknown is any line that does not match a known prefix. Receivers
	// ignore it so that the command set can be extended by new prefixes.
	KindUnknown Kind = iota
	// KindRegister carries a display alias (client to server).
	KindRegister
	// KindID carries the session id assigned to a registered client.
	KindID
	// KindMessage carries chat text in either direction.
	KindMessage
	// KindRequestToTalk asks the client whether it has something to send.
	KindRequestToTalk
	// KindNothing answers KindRequestToTalk when the client is idle.
	KindNothing
	// KindTerminate requests an orderly end of the session.
	KindTerminate
	// KindPrivate carries text addressed to one session id.
	KindPrivate
)

// NoSession is the id the server replies with when registration fails.
const NoSession uint64 = 0

const (
	prefixRegister = "REG"
	prefixMessage  = "MSG"
	prefixRTT      = "RTT"
	prefixNothing  = "NOP"
	prefixTerm     = "TRM"
	prefixPrivate  = "PRV"
)

var prefixes = map[string]Kind{
	prefixRegister: KindRegister,
	prefixMessage:  KindMessage,
	prefixRTT:      KindRequestToTalk,
	prefixNothing:  KindNothing,
	prefixTerm:     KindTerminate,
	prefixPrivate:  KindPrivate,
}

// String returns the wire prefix of k, or "UNKNOWN".
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return prefixRegister
	case KindID:
		return "ID"
	case KindMessage:
		return prefixMessage
	case KindRequestToTalk:
		return prefixRTT
	case KindNothing:
		return prefixNothing
	case KindTerminate:
		return prefixTerm
	case KindPrivate:
		return prefixPrivate
	default:
		return "UNKNOWN"
	}
}

// Command is one decoded protocol line.
type Command struct {
	Kind    Kind
	Payload string
}

var (
	// RequestToTalk is the server's poll for client input.
	RequestToTalk = Command{Kind: KindRequestToTalk}
	// Nothing is the client's idle answer to RequestToTalk.
	Nothing = Command{Kind: KindNothing}
	// Terminate ends a session from either side.
	Terminate = Command{Kind: KindTerminate}
)

// Message returns a MSG command carrying text.
func Message(text string) Command {
	return Command{Kind: KindMessage, Payload: text}
}

// Register returns a REG command carrying alias.
func Register(alias string) Command {
	return Command{Kind: KindRegister, Payload: alias}
}

// ID returns the registration reply for id.
func ID(id uint64) Command {
	return Command{Kind: KindID, Payload: strconv.FormatUint(id, 10)}
}

// Private returns a PRV command addressed to the session id dst.
func Private(dst uint64, text string) Command {
	return Command{Kind: KindPrivate, Payload: strconv.FormatUint(dst, 10) + " " + text}
}

// IDValue parses the payload of a KindID command.
func (c Command) IDValue() (uint64, bool) {
	if c.Kind != KindID {
		return 0, false
	}
	id, err := strconv.ParseUint(c.Payload, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// PrivateTarget splits a PRV payload into the destination id and the text.
// It reports false when the payload does not start with a valid id.
func (c Command) PrivateTarget() (uint64, string, bool) {
	if c.Kind != KindPrivate {
		return 0, "", false
	}
	idPart, text, _ := strings.Cut(c.Payload, " ")
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == NoSession {
		return 0, "", false
	}
	return id, text, true
}
