package discovery

import (
	"errors"
	"log/slog"
	"net"

	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/rs/xid"
)

// ResponderConfig configures a search responder.
type ResponderConfig struct {
	ServerGUID xid.ID
	ServerPort uint16
	Logger     *slog.Logger
}

// Responder listens for SEARCH datagrams and answers with
// SEARCH_RESPONSE for whichever asked-for channels this process hosts.
type Responder struct {
	cfg  ResponderConfig
	conn net.PacketConn
	reg  *provider.Registry
}

// NewResponder binds a UDP listener on addr (e.g. ":5076") and returns a
// Responder ready to Serve.
func NewResponder(addr string, reg *provider.Registry, cfg ResponderConfig) (*Responder, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Responder{cfg: cfg, conn: conn, reg: reg}, nil
}

// Serve reads and answers SEARCH datagrams until the responder's socket
// is closed (by Close, typically from another goroutine).
func (r *Responder) Serve() error {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		r.handle(buf[:n], addr)
	}
}

func (r *Responder) handle(b []byte, from net.Addr) {
	cmd, body, err := command(b)
	if err != nil || cmd != cmdSearch {
		return
	}
	req, err := unmarshalSearch(body)
	if err != nil {
		r.cfg.Logger.Debug("discovery: malformed search datagram", "from", from, "error", err)
		return
	}
	var found []string
	for _, name := range req.Channels {
		if _, ok := r.reg.Find(name); ok {
			found = append(found, name)
		}
	}
	if len(found) == 0 {
		return
	}
	resp := searchResponsePacket{
		SearchID:   req.SearchID,
		ServerGUID: r.cfg.ServerGUID,
		ServerPort: r.cfg.ServerPort,
		Found:      found,
	}
	replyAddr := from
	if udpAddr, ok := from.(*net.UDPAddr); ok && req.ReplyPort != 0 {
		replyAddr = &net.UDPAddr{IP: udpAddr.IP, Port: int(req.ReplyPort)}
	}
	if _, err := r.conn.WriteTo(resp.marshal(), replyAddr); err != nil {
		r.cfg.Logger.Warn("discovery: search response send failed", "to", replyAddr, "error", err)
	}
}

// Close unblocks Serve and releases the responder's socket.
func (r *Responder) Close() error { return r.conn.Close() }
