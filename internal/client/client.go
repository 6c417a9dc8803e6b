// Package client is the peer side of the relay protocol. It answers the
// server's requests to talk with queued outbound messages and reports every
// delivered message through a callback.
package client

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
	"github.com/eapache/queue"
)

var (
	// ErrNotConnected is returned when sending without a live connection.
	ErrNotConnected = errors.New("client: not connected")
	// ErrAlreadyConnected is returned by Connect on a live client.
	ErrAlreadyConnected = errors.New("client: already connected")
)

// Client is one chat participant.
type Client struct {
	alias       string
	onMessage   func(string)
	logger      *slog.Logger
	dialTimeout time.Duration

	// wmu serializes writes to conn.
	wmu sync.Mutex

	mu         sync.Mutex
	conn       net.Conn
	w          *protocol.Writer
	outbox     *queue.Queue
	id         uint64
	registered bool
	done       chan struct{}
	err        error
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialTimeout bounds Connect.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// New returns a disconnected client. A non-empty alias is registered with
// the server on the first request to talk. onMessage is called from the
// client's reader goroutine once per delivered message and may be nil.
func New(alias string, onMessage func(displayText string), opts ...Option) *Client {
	c := &Client{
		alias:       strings.TrimSpace(alias),
		onMessage:   onMessage,
		logger:      slog.Default(),
		dialTimeout: 5 * time.Second,
		outbox:      queue.New(),
		done:        closedChan(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server at host:port and starts answering its polls.
func (c *Client) Connect(host string, port int) error {
	return c.Dial(net.JoinHostPort(host, strconv.Itoa(port)))
}

// Dial is Connect for a ready-made "host:port" address.
func (c *Client) Dial(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	conn, err := net.DialTimeout("tcp", addr, c.dialTimeout)
	if err != nil {
		return err
	}

	c.conn = conn
	c.w = protocol.NewWriter(conn)
	c.outbox = queue.New()
	c.id = protocol.NoSession
	c.registered = false
	c.err = nil
	c.done = make(chan struct{})

	go c.readLoop(conn, c.done)
	c.logger.Info("Connected to relay", "addr", addr)
	return nil
}

// Disconnect sends TRM and closes the connection. It waits for the reader
// goroutine to finish.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, w, done := c.conn, c.w, c.done
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = w.WriteCommand(protocol.Terminate)
	c.wmu.Unlock()

	err := conn.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// SendBroadcast queues text for delivery to every other participant. One
// queued message is sent per request to talk, oldest first.
func (c *Client) SendBroadcast(text string) error {
	return c.enqueue(protocol.Message(text))
}

// SendPrivate queues text for the participant with session id dst.
func (c *Client) SendPrivate(dst uint64, text string) error {
	return c.enqueue(protocol.Private(dst, text))
}

func (c *Client) enqueue(cmd protocol.Command) error {
	if strings.ContainsAny(cmd.Payload, "\r\n") {
		return protocol.ErrNewline
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.outbox.Add(cmd)
	return nil
}

// ID returns the session id confirmed by the server, or 0 before
// registration completes or when it failed.
func (c *Client) ID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Pending returns the number of queued outbound messages.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.Length()
}

// Done is closed when the connection ends, by either side.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err returns the error that ended the last connection; nil after an
// orderly termination.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	r := protocol.NewReader(conn, 0)
	var err error
	defer func() { c.finish(conn, done, err) }()

	for {
		var cmd protocol.Command
		cmd, err = r.ReadCommand()
		if err != nil {
			return
		}

		switch cmd.Kind {
		case protocol.KindMessage:
			if c.onMessage != nil {
				c.onMessage(cmd.Payload)
			}
		case protocol.KindRequestToTalk:
			if err = c.answer(conn); err != nil {
				return
			}
		case protocol.KindID:
			c.setID(cmd)
		case protocol.KindTerminate:
			c.logger.Info("Server terminated the session")
			return
		default:
			c.logger.Debug("Ignoring command", "command", cmd.Kind.String(), "payload", cmd.Payload)
		}
	}
}

// answer replies to RTT: registration first, then one queued message, else NOP.
func (c *Client) answer(conn net.Conn) error {
	c.mu.Lock()
	var reply protocol.Command
	switch {
	case c.alias != "" && !c.registered:
		c.registered = true
		reply = protocol.Register(c.alias)
	case c.outbox.Length() > 0:
		reply = c.outbox.Remove().(protocol.Command)
	default:
		reply = protocol.Nothing
	}
	w := c.w
	c.mu.Unlock()

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.WriteCommand(reply)
}

func (c *Client) setID(cmd protocol.Command) {
	id, ok := cmd.IDValue()
	if !ok {
		return
	}
	if id == protocol.NoSession {
		c.logger.Warn("Registration rejected", "alias", c.alias)
	}

	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *Client) finish(conn net.Conn, done chan struct{}, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.w = nil
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.err = err
	}
	c.mu.Unlock()

	close(done)
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
