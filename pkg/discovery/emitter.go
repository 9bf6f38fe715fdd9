package discovery

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rs/xid"
)

// EmitterConfig configures a beacon emitter.
type EmitterConfig struct {
	// ServerGUID identifies this server process across restarts of its
	// listening socket. Generated fresh if zero.
	ServerGUID xid.ID
	// ServerPort is the TCP port this process accepts pvAccess
	// connections on, advertised in every beacon.
	ServerPort uint16
	// Targets are the destination addresses (broadcast or unicast "ip:
	// port" strings) each beacon is sent to.
	Targets []string
	// Period is the interval between beacons. Defaults to 15s.
	Period time.Duration
	Logger *slog.Logger
}

func (c *EmitterConfig) setDefaults() {
	if c.ServerGUID == xid.NilID() {
		c.ServerGUID = xid.New()
	}
	if c.Period == 0 {
		c.Period = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Emitter periodically sends a BEACON datagram to every configured
// target, so clients on the same segment can discover this server without
// prior configuration.
type Emitter struct {
	cfg  EmitterConfig
	conn net.PacketConn

	changeCount uint16
}

// NewEmitter opens an ephemeral UDP socket to send beacons from.
func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	cfg.setDefaults()
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}
	return &Emitter{cfg: cfg, conn: conn}, nil
}

// Bump increments the change count carried in future beacons, signaling
// to listening clients that this server's channel list may have changed
// (a new StaticProvider.Add, say).
func (e *Emitter) Bump() { e.changeCount++ }

// Run sends beacons on cfg.Period until ctx is canceled.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Period)
	defer ticker.Stop()
	e.sendOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sendOnce()
		}
	}
}

func (e *Emitter) sendOnce() {
	pkt := beaconPacket{ServerGUID: e.cfg.ServerGUID, ChangeCount: e.changeCount, ServerPort: e.cfg.ServerPort}
	b := pkt.marshal()
	for _, target := range e.cfg.Targets {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			e.cfg.Logger.Warn("discovery: bad beacon target", "target", target, "error", err)
			continue
		}
		if _, err := e.conn.WriteTo(b, addr); err != nil {
			e.cfg.Logger.Warn("discovery: beacon send failed", "target", target, "error", err)
		}
	}
}

// Close releases the emitter's socket.
func (e *Emitter) Close() error { return e.conn.Close() }
