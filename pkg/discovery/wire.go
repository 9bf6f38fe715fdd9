// Package discovery implements the UDP side of channel discovery: periodic
// BEACON emission advertising a server's existence, and a SEARCH /
// SEARCH_RESPONSE request/response loop a client uses to find which
// server hosts a given channel name. The datagram layout here is a
// minimal, name-indexed request/response loop in the spirit of real
// pvAccess discovery, not a byte-exact port of its wire format.
package discovery

import (
	"encoding/binary"
	"errors"

	"github.com/rs/xid"
)

const (
	magic0 byte = 'P'
	magic1 byte = 'V'
	magic2 byte = 'A'

	protocolVersion byte = 1

	cmdBeacon         byte = 0
	cmdSearch         byte = 1
	cmdSearchResponse byte = 2
)

var errBadMagic = errors.New("discovery: not a discovery datagram")
var errTruncated = errors.New("discovery: truncated datagram")

// beaconPacket is broadcast/multicast periodically by a server: "I exist,
// here is my identity and where to reach me."
type beaconPacket struct {
	ServerGUID  xid.ID
	ChangeCount uint16
	ServerPort  uint16
}

func (p beaconPacket) marshal() []byte {
	buf := make([]byte, 0, 3+1+1+12+2+2)
	buf = append(buf, magic0, magic1, magic2, protocolVersion, cmdBeacon)
	buf = append(buf, p.ServerGUID.Bytes()...)
	buf = binary.BigEndian.AppendUint16(buf, p.ChangeCount)
	buf = binary.BigEndian.AppendUint16(buf, p.ServerPort)
	return buf
}

// searchPacket asks "does anyone host any of these channel names?" The
// guid here is a per-search transaction id a responder echoes back so the
// asking client can pair replies up with outstanding searches.
type searchPacket struct {
	SearchID xid.ID
	ReplyPort uint16
	Channels []string
}

func (p searchPacket) marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, magic0, magic1, magic2, protocolVersion, cmdSearch)
	buf = append(buf, p.SearchID.Bytes()...)
	buf = binary.BigEndian.AppendUint16(buf, p.ReplyPort)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Channels)))
	for _, name := range p.Channels {
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
	}
	return buf
}

func unmarshalSearch(b []byte) (searchPacket, error) {
	var p searchPacket
	if len(b) < 12+2+2 {
		return p, errTruncated
	}
	guid, err := xid.FromBytes(b[:12])
	if err != nil {
		return p, err
	}
	p.SearchID = guid
	b = b[12:]
	p.ReplyPort = binary.BigEndian.Uint16(b[:2])
	b = b[2:]
	count := binary.BigEndian.Uint16(b[:2])
	b = b[2:]
	for i := 0; i < int(count); i++ {
		if len(b) < 1 {
			return p, errTruncated
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n {
			return p, errTruncated
		}
		p.Channels = append(p.Channels, string(b[:n]))
		b = b[n:]
	}
	return p, nil
}

// searchResponsePacket answers a searchPacket: "I host these channels, at
// this port."
type searchResponsePacket struct {
	SearchID   xid.ID
	ServerGUID xid.ID
	ServerPort uint16
	Found      []string
}

func (p searchResponsePacket) marshal() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, magic0, magic1, magic2, protocolVersion, cmdSearchResponse)
	buf = append(buf, p.SearchID.Bytes()...)
	buf = append(buf, p.ServerGUID.Bytes()...)
	buf = binary.BigEndian.AppendUint16(buf, p.ServerPort)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(p.Found)))
	for _, name := range p.Found {
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)
	}
	return buf
}

func unmarshalSearchResponse(b []byte) (searchResponsePacket, error) {
	var p searchResponsePacket
	if len(b) < 12+12+2+2 {
		return p, errTruncated
	}
	searchID, err := xid.FromBytes(b[:12])
	if err != nil {
		return p, err
	}
	p.SearchID = searchID
	b = b[12:]
	serverGUID, err := xid.FromBytes(b[:12])
	if err != nil {
		return p, err
	}
	p.ServerGUID = serverGUID
	b = b[12:]
	p.ServerPort = binary.BigEndian.Uint16(b[:2])
	b = b[2:]
	count := binary.BigEndian.Uint16(b[:2])
	b = b[2:]
	for i := 0; i < int(count); i++ {
		if len(b) < 1 {
			return p, errTruncated
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n {
			return p, errTruncated
		}
		p.Found = append(p.Found, string(b[:n]))
		b = b[n:]
	}
	return p, nil
}

// command peeks the 5-byte header shared by every datagram this package
// sends and returns the command byte, or errBadMagic if b isn't one of
// ours.
func command(b []byte) (byte, []byte, error) {
	if len(b) < 5 || b[0] != magic0 || b[1] != magic1 || b[2] != magic2 {
		return 0, nil, errBadMagic
	}
	return b[4], b[5:], nil
}
