package client

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/Tyrowin/talkrelay/internal/protocol"
	"github.com/Tyrowin/talkrelay/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startRelay runs a hub behind a loopback listener and returns host and port.
func startRelay(t *testing.T) (*server.Hub, string, int) {
	t.Helper()
	cfg := *server.NewConfig()
	cfg.IdlePoll = 10 * time.Millisecond
	cfg.MaxClients = 8
	cfg.HTTPAddr = ""

	hub := server.NewHub(cfg, server.WithLogger(quietLogger()))
	l := server.NewListener(hub)
	require.NoError(t, l.Listen("127.0.0.1:0"))
	go func() { _ = l.Serve() }()
	t.Cleanup(func() {
		_ = l.Close()
		_ = hub.Shutdown(waitTimeout)
	})

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return hub, host, port
}

type inbox chan string

func (in inbox) receive(text string) { in <- text }

func (in inbox) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-in:
		assert.Equal(t, want, got)
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func (in inbox) expectNothing(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case got := <-in:
		t.Fatalf("unexpected message %q", got)
	case <-time.After(d):
	}
}

func connect(t *testing.T, alias, host string, port int) (*Client, inbox) {
	t.Helper()
	in := make(inbox, 32)
	c := New(alias, in.receive, WithLogger(quietLogger()), WithDialTimeout(waitTimeout))
	require.NoError(t, c.Connect(host, port))
	t.Cleanup(func() { _ = c.Disconnect() })

	if alias != "" {
		require.Eventually(t, func() bool { return c.ID() != protocol.NoSession }, waitTimeout, time.Millisecond)
	}
	return c, in
}

func TestClientsExchangeBroadcasts(t *testing.T) {
	_, host, port := startRelay(t)
	alice, aliceIn := connect(t, "alice", host, port)
	bob, bobIn := connect(t, "bob", host, port)

	assert.Equal(t, uint64(1), alice.ID())
	assert.Equal(t, uint64(2), bob.ID())

	require.NoError(t, alice.SendBroadcast("hi"))
	bobIn.expect(t, "(alice) hi")
	aliceIn.expectNothing(t, 100*time.Millisecond)
}

func TestClientOutboxIsFIFO(t *testing.T) {
	_, host, port := startRelay(t)
	alice, _ := connect(t, "alice", host, port)
	_, bobIn := connect(t, "bob", host, port)

	for _, text := range []string{"a", "b", "c"} {
		require.NoError(t, alice.SendBroadcast(text))
	}
	bobIn.expect(t, "(alice) a")
	bobIn.expect(t, "(alice) b")
	bobIn.expect(t, "(alice) c")
	require.Eventually(t, func() bool { return alice.Pending() == 0 }, waitTimeout, time.Millisecond)
}

func TestClientSendPrivate(t *testing.T) {
	_, host, port := startRelay(t)
	alice, _ := connect(t, "alice", host, port)
	bob, bobIn := connect(t, "bob", host, port)
	_, carolIn := connect(t, "carol", host, port)

	require.NoError(t, alice.SendPrivate(bob.ID(), "just you"))
	bobIn.expect(t, "(alice) just you")
	carolIn.expectNothing(t, 100*time.Millisecond)
}

func TestClientDisconnectRemovesSession(t *testing.T) {
	hub, host, port := startRelay(t)
	alice, _ := connect(t, "alice", host, port)
	require.Equal(t, 1, hub.Registry().Len())

	require.NoError(t, alice.Disconnect())
	select {
	case <-alice.Done():
	default:
		t.Fatal("Done not closed after Disconnect")
	}
	require.Eventually(t, func() bool { return hub.Registry().Len() == 0 }, waitTimeout, time.Millisecond)

	assert.ErrorIs(t, alice.SendBroadcast("late"), ErrNotConnected)
	assert.ErrorIs(t, alice.Disconnect(), ErrNotConnected)
}

func TestClientReconnectGetsNewID(t *testing.T) {
	_, host, port := startRelay(t)
	alice, _ := connect(t, "alice", host, port)
	first := alice.ID()

	require.NoError(t, alice.Disconnect())
	require.NoError(t, alice.Connect(host, port))
	require.Eventually(t, func() bool { return alice.ID() != protocol.NoSession }, waitTimeout, time.Millisecond)
	assert.Greater(t, alice.ID(), first)
}

func TestClientSeesServerShutdown(t *testing.T) {
	hub, host, port := startRelay(t)
	alice, _ := connect(t, "alice", host, port)

	require.NoError(t, hub.Shutdown(waitTimeout))
	select {
	case <-alice.Done():
	case <-time.After(waitTimeout):
		t.Fatal("client did not notice the server going away")
	}
	assert.ErrorIs(t, alice.SendBroadcast("gone"), ErrNotConnected)
}

func TestClientWithoutAliasIsAnonymous(t *testing.T) {
	_, host, port := startRelay(t)
	quiet, _ := connect(t, "", host, port)
	_, bobIn := connect(t, "bob", host, port)

	require.NoError(t, quiet.SendBroadcast("who am I"))
	bobIn.expect(t, "(anonymous) who am I")
	assert.Equal(t, protocol.NoSession, quiet.ID())
}

func TestClientRejectsBadInput(t *testing.T) {
	c := New("x", nil, WithLogger(quietLogger()))
	assert.ErrorIs(t, c.SendBroadcast("offline"), ErrNotConnected)
	assert.ErrorIs(t, c.SendBroadcast("two\nlines"), protocol.ErrNewline)

	_, host, port := startRelay(t)
	require.NoError(t, c.Connect(host, port))
	defer c.Disconnect()
	assert.ErrorIs(t, c.Connect(host, port), ErrAlreadyConnected)
}
