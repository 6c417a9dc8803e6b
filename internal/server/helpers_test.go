package server

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig polls quickly and admits plenty of sessions.
func testConfig() Config {
	cfg := *NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.MaxClients = 16
	cfg.IdlePoll = 10 * time.Millisecond
	cfg.ReadTimeout = 5 * time.Second
	cfg.HTTPAddr = ""
	cfg.AllowedOrigins = []string{"http://localhost:8080"}
	return cfg
}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	hub := NewHub(cfg, WithLogger(discardLogger()))
	t.Cleanup(func() {
		_ = hub.Shutdown(waitTimeout)
	})
	return hub
}

// stubTransport satisfies Transport for registry and router tests that never
// run a worker.
type stubTransport struct {
	addr   string
	closed atomic.Bool
}

func (s *stubTransport) ReadCommand() (protocol.Command, error) { return protocol.Command{}, io.EOF }
func (s *stubTransport) WriteCommand(protocol.Command) error    { return nil }
func (s *stubTransport) SetReadDeadline(time.Time) error        { return nil }
func (s *stubTransport) SetWriteDeadline(time.Time) error       { return nil }
func (s *stubTransport) RemoteAddr() string                     { return s.addr }
func (s *stubTransport) Close() error                           { s.closed.Store(true); return nil }

func newStubRegistry(t *testing.T, capacity int) *Registry {
	t.Helper()
	cfg := testConfig()
	cfg.MaxClients = capacity
	return NewRegistry(cfg, nil, discardLogger())
}

func mustRegister(t *testing.T, r *Registry) *Session {
	t.Helper()
	s, err := r.Register(&stubTransport{addr: "stub"})
	require.NoError(t, err)
	return s
}

// peer is a scripted protocol client. It answers every RTT with the next
// queued command, or NOP when nothing is queued, and collects deliveries.
type peer struct {
	conn     net.Conn
	w        *protocol.Writer
	outgoing chan protocol.Command
	messages chan string
	ids      chan uint64
	rtts     atomic.Int64

	gotTRM     atomic.Bool
	terminated chan struct{}
	once       sync.Once
}

func startPeer(t *testing.T, conn net.Conn) *peer {
	t.Helper()
	p := &peer{
		conn:       conn,
		w:          protocol.NewWriter(conn),
		outgoing:   make(chan protocol.Command, 32),
		messages:   make(chan string, 128),
		ids:        make(chan uint64, 8),
		terminated: make(chan struct{}),
	}
	go p.loop()
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

// pipePeer attaches one end of an in-memory pipe to hub and scripts the other.
func pipePeer(t *testing.T, hub *Hub) (*Session, *peer) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	s, err := hub.Attach(NewStreamTransport(serverSide, hub.cfg.maxLineSize()))
	require.NoError(t, err)
	return s, startPeer(t, clientSide)
}

func (p *peer) loop() {
	defer p.done()
	r := protocol.NewReader(p.conn, 0)
	for {
		cmd, err := r.ReadCommand()
		if err != nil {
			return
		}
		switch cmd.Kind {
		case protocol.KindRequestToTalk:
			p.rtts.Add(1)
			reply := protocol.Nothing
			select {
			case reply = <-p.outgoing:
			default:
			}
			if err := p.reply(reply); err != nil {
				return
			}
		case protocol.KindMessage:
			p.messages <- cmd.Payload
		case protocol.KindID:
			id, _ := cmd.IDValue()
			p.ids <- id
		case protocol.KindTerminate:
			p.gotTRM.Store(true)
			return
		}
	}
}

// reply writes cmd; a KindUnknown payload is written verbatim so tests can
// send lines the codec would refuse to encode.
func (p *peer) reply(cmd protocol.Command) error {
	if cmd.Kind == protocol.KindUnknown {
		_, err := io.WriteString(p.conn, cmd.Payload+"\n")
		return err
	}
	return p.w.WriteCommand(cmd)
}

func (p *peer) done() {
	p.once.Do(func() { close(p.terminated) })
}

func (p *peer) send(cmd protocol.Command) {
	p.outgoing <- cmd
}

func (p *peer) kill() {
	_ = p.conn.Close()
}

func (p *peer) expectMessage(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-p.messages:
		require.Equal(t, want, got)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for message %q", want)
	}
}

func (p *peer) expectNoMessage(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-p.messages:
		t.Fatalf("unexpected message %q", got)
	case <-time.After(d):
	}
}

func (p *peer) expectID(t *testing.T) uint64 {
	t.Helper()
	select {
	case id := <-p.ids:
		return id
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for registration reply")
		return 0
	}
}

func (p *peer) waitTerminated(t *testing.T) {
	t.Helper()
	select {
	case <-p.terminated:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the session to end")
	}
}

// waitPolls blocks until the server has sent at least n more RTTs.
func (p *peer) waitPolls(t *testing.T, n int64) {
	t.Helper()
	target := p.rtts.Load() + n
	require.Eventually(t, func() bool {
		return p.rtts.Load() >= target
	}, waitTimeout, time.Millisecond)
}

// register sends REG alias and returns the id the server answers with.
func (p *peer) register(t *testing.T, alias string) uint64 {
	t.Helper()
	p.send(protocol.Register(alias))
	return p.expectID(t)
}
