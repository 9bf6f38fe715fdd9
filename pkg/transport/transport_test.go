package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newPair(t *testing.T) (*Transport, *Transport) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := New(serverConn, Config{Role: RoleServer})
	client := New(clientConn, Config{Role: RoleClient})
	server.Start()
	client.Start()
	t.Cleanup(func() {
		server.Close(true)
		client.Close(true)
	})
	return server, client
}

func waitVerified(t *testing.T, tr *Transport) {
	t.Helper()
	select {
	case <-tr.verified:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never reached VERIFIED")
	}
}

func TestHandshakeReachesVerifiedBothSides(t *testing.T) {
	server, client := newPair(t)
	waitVerified(t, server)
	waitVerified(t, client)
	require.True(t, server.Verified())
	require.True(t, client.Verified())
	require.Equal(t, "anonymous", server.selectedPlugin)
	require.Equal(t, "anonymous", client.selectedPlugin)
}

func TestCloseIsIdempotentAndUnblocksSendWorker(t *testing.T) {
	server, client := newPair(t)
	waitVerified(t, server)
	waitVerified(t, client)

	require.NoError(t, server.Close(true))
	require.NoError(t, server.Close(true))
	server.wg.Wait()
}

func TestCloseNotifiesRegisteredDisconnectCallbacks(t *testing.T) {
	server, client := newPair(t)
	waitVerified(t, server)
	waitVerified(t, client)

	fired := make(chan struct{}, 1)
	server.OnDisconnect(func() { fired <- struct{}{} })
	server.Close(true)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("disconnect callback never fired")
	}
}

func TestDestroyAllRunsOnChannelRegistryAtClose(t *testing.T) {
	server, client := newPair(t)
	waitVerified(t, server)
	waitVerified(t, client)

	destroyed := make(chan struct{}, 1)
	id := server.Channels.Preallocate()
	server.Channels.Register(id, destroyerFunc(func() { destroyed <- struct{}{} }))

	server.Close(true)

	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("channel was never destroyed on transport close")
	}
}

type destroyerFunc func()

func (f destroyerFunc) Destroy() { f() }

func TestHeartbeatEchoRoundTripKeepsConnectionAlive(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	server := New(serverConn, Config{Role: RoleServer, ConnectionTimeout: 80 * time.Millisecond})
	client := New(clientConn, Config{Role: RoleClient, ConnectionTimeout: 80 * time.Millisecond})
	server.Start()
	client.Start()
	t.Cleanup(func() {
		server.Close(true)
		client.Close(true)
	})

	waitVerified(t, server)
	waitVerified(t, client)

	// Long enough for several heartbeat periods to elapse; the RX
	// watchdog would fire well before this if echoes stopped flowing.
	time.Sleep(250 * time.Millisecond)
	require.True(t, server.Verified())
	require.True(t, client.Verified())
}
