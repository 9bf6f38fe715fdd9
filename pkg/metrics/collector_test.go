package metrics

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/transport"
)

func newTCPPair(t *testing.T) (*transport.Transport, *transport.Transport) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	serverConn := <-accepted

	server := transport.New(serverConn, transport.Config{Role: transport.RoleServer})
	client := transport.New(clientConn, transport.Config{Role: transport.RoleClient})
	server.Start()
	client.Start()
	t.Cleanup(func() {
		server.Close(true)
		client.Close(true)
	})
	return server, client
}

func TestDescribeEmitsEveryMetricDescriptor(t *testing.T) {
	c := NewCollector()
	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var got int
	for range ch {
		got++
	}
	require.Equal(t, 6, got)
}

func TestCollectReportsZeroConnectionsWhenUntracked(t *testing.T) {
	c := NewCollector()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var metrics []prometheus.Metric
	for m := range ch {
		metrics = append(metrics, m)
	}
	require.Len(t, metrics, 1, "only the connection-count gauge, and it should read zero")
}

func TestTrackAddsConnectionAndUntrackOnDisconnectRemovesIt(t *testing.T) {
	server, client := newTCPPair(t)

	c := NewCollector()
	c.Track(server)

	c.mu.Lock()
	require.Len(t, c.tracked, 1)
	c.mu.Unlock()

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	var metrics []prometheus.Metric
	for m := range ch {
		metrics = append(metrics, m)
	}
	require.NotEmpty(t, metrics)

	require.NoError(t, server.Close(true))
	require.NoError(t, client.Close(true))

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.tracked) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUntrackIsIdempotent(t *testing.T) {
	server, _ := newTCPPair(t)
	c := NewCollector()
	c.Track(server)
	c.Untrack(server)
	c.Untrack(server)

	c.mu.Lock()
	require.Empty(t, c.tracked)
	c.mu.Unlock()
}
