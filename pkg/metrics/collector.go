// Package metrics implements a prometheus.Collector over live transports:
// connection/channel/operation counts and, where the kernel exposes it,
// per-connection TCP_INFO. It is grounded on
// runZeroInc-conniver/pkg/exporter's TCPInfoCollector shape (an Add/Remove-
// tracked map of net.Conn, netfd.GetFdFromConn extracting the raw
// descriptor, prometheus.NewDesc/MustNewConstMetric per sample) adapted
// from that package's cgo-based TCPInfo reader to golang.org/x/sys/unix's
// GetsockoptTCPInfo.
package metrics

import (
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/higebu/netfd"

	"github.com/go-pvaccess/pva/pkg/transport"
)

var (
	connectionsDesc = prometheus.NewDesc(
		"pva_connections", "Number of live transports this process is tracking.", nil, nil)
	channelsDesc = prometheus.NewDesc(
		"pva_transport_channels", "Open server channels on a transport.", []string{"remote_addr"}, nil)
	operationsDesc = prometheus.NewDesc(
		"pva_transport_operations", "In-flight operations on a transport.", []string{"remote_addr"}, nil)
	tcpRTTDesc = prometheus.NewDesc(
		"pva_tcp_rtt_microseconds", "Smoothed round-trip time, from TCP_INFO.", []string{"remote_addr"}, nil)
	tcpRetransmitsDesc = prometheus.NewDesc(
		"pva_tcp_retransmits", "Pending retransmission timeouts, from TCP_INFO.", []string{"remote_addr"}, nil)
	tcpCwndDesc = prometheus.NewDesc(
		"pva_tcp_snd_cwnd_segments", "Congestion window, from TCP_INFO.", []string{"remote_addr"}, nil)
)

type entry struct {
	t   *transport.Transport
	fd  int
	addr string
}

// Collector tracks a set of live transports and reports their
// channel/operation counts and socket-level TCP_INFO as Prometheus
// samples. The zero value is not usable; build one with NewCollector.
type Collector struct {
	mu      sync.Mutex
	tracked map[*transport.Transport]*entry
}

// NewCollector returns an empty Collector ready to register with a
// prometheus.Registry and Track transports as they're accepted.
func NewCollector() *Collector {
	return &Collector{tracked: make(map[*transport.Transport]*entry)}
}

// Track begins reporting metrics for t, and arranges for it to be
// automatically Untracked once the transport disconnects.
func (c *Collector) Track(t *transport.Transport) {
	conn := t.Conn()
	e := &entry{t: t, fd: netfd.GetFdFromConn(conn), addr: remoteAddrString(conn)}

	c.mu.Lock()
	c.tracked[t] = e
	c.mu.Unlock()

	t.OnDisconnect(func() { c.Untrack(t) })
}

// Untrack stops reporting metrics for t. Safe to call more than once.
func (c *Collector) Untrack(t *transport.Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, t)
}

// Snapshot summarizes the tracked set as plain counters, for callers (the
// debug HTTP gateway, say) that want the numbers without also pulling in
// the prometheus.Metric plumbing.
func (c *Collector) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels, operations := 0, 0
	for _, e := range c.tracked {
		channels += e.t.Channels.Len()
		operations += e.t.Operations.Len()
	}
	return map[string]int{
		"connections": len(c.tracked),
		"channels":    channels,
		"operations":  operations,
	}
}

func remoteAddrString(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return "unknown"
	}
	return conn.RemoteAddr().String()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- connectionsDesc
	ch <- channelsDesc
	ch <- operationsDesc
	ch <- tcpRTTDesc
	ch <- tcpRetransmitsDesc
	ch <- tcpCwndDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.tracked))
	for _, e := range c.tracked {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	ch <- prometheus.MustNewConstMetric(connectionsDesc, prometheus.GaugeValue, float64(len(entries)))

	for _, e := range entries {
		ch <- prometheus.MustNewConstMetric(channelsDesc, prometheus.GaugeValue, float64(e.t.Channels.Len()), e.addr)
		ch <- prometheus.MustNewConstMetric(operationsDesc, prometheus.GaugeValue, float64(e.t.Operations.Len()), e.addr)

		stats, err := readTCPInfo(e.fd)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(tcpRTTDesc, prometheus.GaugeValue, float64(stats.rtt), e.addr)
		ch <- prometheus.MustNewConstMetric(tcpRetransmitsDesc, prometheus.GaugeValue, float64(stats.retransmits), e.addr)
		ch <- prometheus.MustNewConstMetric(tcpCwndDesc, prometheus.GaugeValue, float64(stats.sndCwnd), e.addr)
	}
}

// tcpStats is the handful of TCP_INFO fields this collector reports,
// platform-independent so Collect never needs to know which OS it's on.
type tcpStats struct {
	rtt         uint32
	retransmits uint32
	sndCwnd     uint32
}
