package server

import (
	"errors"
	"net"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
	"github.com/gorilla/websocket"
)

// Transport carries protocol commands for one session. A worker owns its
// transport: reads and writes come from that goroutine only, while
// SetReadDeadline may also be called by the hub to interrupt a blocked read.
type Transport interface {
	ReadCommand() (protocol.Command, error)
	WriteCommand(cmd protocol.Command) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

// streamTransport speaks newline-terminated commands over a byte stream.
type streamTransport struct {
	conn net.Conn
	r    *protocol.Reader
	w    *protocol.Writer
}

// NewStreamTransport wraps a stream connection such as TCP. Lines longer
// than maxLine bytes end the session.
func NewStreamTransport(conn net.Conn, maxLine int) Transport {
	return &streamTransport{
		conn: conn,
		r:    protocol.NewReader(conn, maxLine),
		w:    protocol.NewWriter(conn),
	}
}

func (t *streamTransport) ReadCommand() (protocol.Command, error) { return t.r.ReadCommand() }

func (t *streamTransport) WriteCommand(cmd protocol.Command) error { return t.w.WriteCommand(cmd) }

func (t *streamTransport) SetReadDeadline(d time.Time) error { return t.conn.SetReadDeadline(d) }

func (t *streamTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }

func (t *streamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func (t *streamTransport) Close() error { return t.conn.Close() }

// wsTransport carries one command per WebSocket text frame.
type wsTransport struct {
	conn *websocket.Conn
	addr string
}

// NewWebSocketTransport wraps an upgraded WebSocket connection. Frames
// larger than maxFrame bytes end the session.
func NewWebSocketTransport(conn *websocket.Conn, addr string, maxFrame int) Transport {
	conn.SetReadLimit(int64(maxFrame))
	return &wsTransport{conn: conn, addr: addr}
}

func (t *wsTransport) ReadCommand() (protocol.Command, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return protocol.Command{}, protocol.ErrLineTooLong
		}
		return protocol.Command{}, err
	}
	if msgType != websocket.TextMessage {
		return protocol.Command{Kind: protocol.KindUnknown}, nil
	}
	return protocol.Decode(string(data)), nil
}

func (t *wsTransport) WriteCommand(cmd protocol.Command) error {
	line, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// SetReadDeadline goes to the underlying connection so the hub can
// interrupt a read without racing the worker inside the websocket reader.
func (t *wsTransport) SetReadDeadline(d time.Time) error {
	return t.conn.NetConn().SetReadDeadline(d)
}

func (t *wsTransport) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }

func (t *wsTransport) RemoteAddr() string { return t.addr }

func (t *wsTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		_ = t.conn.Close()
		return err
	}
	return t.conn.Close()
}
