package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/rs/xid"
)

// FoundChannel is one SEARCH_RESPONSE result: a channel name and the
// server that answered for it.
type FoundChannel struct {
	Name       string
	ServerGUID xid.ID
	ServerAddr *net.UDPAddr
}

// Searcher sends SEARCH datagrams and collects SEARCH_RESPONSE replies.
// One Searcher can run many concurrent Search calls over its single
// socket; replies are matched back to the call that sent the matching
// SearchID.
type Searcher struct {
	conn net.PacketConn

	mu      sync.Mutex
	pending map[xid.ID]chan FoundChannel
}

// NewSearcher opens an ephemeral UDP socket and starts its background
// receive loop.
func NewSearcher() (*Searcher, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, err
	}
	s := &Searcher{conn: conn, pending: make(map[xid.ID]chan FoundChannel)}
	go s.receiveLoop()
	return s, nil
}

func (s *Searcher) receiveLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		cmd, body, err := command(buf[:n])
		if err != nil || cmd != cmdSearchResponse {
			continue
		}
		resp, err := unmarshalSearchResponse(body)
		if err != nil {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.SearchID]
		s.mu.Unlock()
		if !ok {
			continue
		}
		udpAddr, _ := addr.(*net.UDPAddr)
		for _, name := range resp.Found {
			ch <- FoundChannel{Name: name, ServerGUID: resp.ServerGUID, ServerAddr: udpAddr}
		}
	}
}

// Search broadcasts/unicasts a SEARCH for channels to every address in
// targets and returns a channel of results; it closes the result channel
// once timeout elapses. The caller is expected to range over it.
func (s *Searcher) Search(channels []string, targets []string, timeout time.Duration) <-chan FoundChannel {
	id := xid.New()
	results := make(chan FoundChannel, 16)

	s.mu.Lock()
	s.pending[id] = results
	s.mu.Unlock()

	pkt := searchPacket{SearchID: id, Channels: channels}
	b := pkt.marshal()
	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err != nil {
			continue
		}
		_, _ = s.conn.WriteTo(b, addr)
	}

	go func() {
		time.Sleep(timeout)
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		close(results)
	}()

	return results
}

// Close releases the searcher's socket and stops its receive loop.
func (s *Searcher) Close() error {
	return s.conn.Close()
}
