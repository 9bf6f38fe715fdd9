package discovery

import (
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/provider"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
)

func TestBeaconPacketRoundTrips(t *testing.T) {
	pkt := beaconPacket{ServerGUID: xid.New(), ChangeCount: 3, ServerPort: 5075}
	b := pkt.marshal()

	cmd, body, err := command(b)
	require.NoError(t, err)
	require.Equal(t, cmdBeacon, cmd)
	require.Len(t, body, 12+2+2)
}

func TestSearchPacketRoundTrips(t *testing.T) {
	pkt := searchPacket{SearchID: xid.New(), ReplyPort: 6000, Channels: []string{"foo", "bar"}}
	b := pkt.marshal()

	cmd, body, err := command(b)
	require.NoError(t, err)
	require.Equal(t, cmdSearch, cmd)

	got, err := unmarshalSearch(body)
	require.NoError(t, err)
	require.Equal(t, pkt.SearchID, got.SearchID)
	require.Equal(t, pkt.ReplyPort, got.ReplyPort)
	require.Equal(t, pkt.Channels, got.Channels)
}

func TestSearchResponsePacketRoundTrips(t *testing.T) {
	pkt := searchResponsePacket{
		SearchID:   xid.New(),
		ServerGUID: xid.New(),
		ServerPort: 5075,
		Found:      []string{"foo"},
	}
	b := pkt.marshal()

	cmd, body, err := command(b)
	require.NoError(t, err)
	require.Equal(t, cmdSearchResponse, cmd)

	got, err := unmarshalSearchResponse(body)
	require.NoError(t, err)
	require.Equal(t, pkt.SearchID, got.SearchID)
	require.Equal(t, pkt.ServerGUID, got.ServerGUID)
	require.Equal(t, pkt.ServerPort, got.ServerPort)
	require.Equal(t, pkt.Found, got.Found)
}

func TestCommandRejectsNonDiscoveryDatagram(t *testing.T) {
	_, _, err := command([]byte("garbage"))
	require.ErrorIs(t, err, errBadMagic)
}

func TestSearcherFindsChannelViaResponder(t *testing.T) {
	pv := sharedpv.NewMailbox(sharedpv.Config{})
	sp := provider.NewStaticProvider("test")
	sp.Add("counter", pv)
	reg := provider.NewRegistry()
	reg.Register(sp)

	responder, err := NewResponder("127.0.0.1:0", reg, ResponderConfig{ServerGUID: xid.New(), ServerPort: 5075})
	require.NoError(t, err)
	defer responder.Close()
	go responder.Serve()

	searcher, err := NewSearcher()
	require.NoError(t, err)
	defer searcher.Close()

	results := searcher.Search([]string{"counter", "missing"}, []string{responder.conn.LocalAddr().String()}, 500*time.Millisecond)

	var found []FoundChannel
	for f := range results {
		found = append(found, f)
	}
	require.Len(t, found, 1)
	require.Equal(t, "counter", found[0].Name)
}

func TestSearcherGetsNoReplyWhenNothingMatches(t *testing.T) {
	reg := provider.NewRegistry()
	responder, err := NewResponder("127.0.0.1:0", reg, ResponderConfig{ServerGUID: xid.New(), ServerPort: 5075})
	require.NoError(t, err)
	defer responder.Close()
	go responder.Serve()

	searcher, err := NewSearcher()
	require.NoError(t, err)
	defer searcher.Close()

	results := searcher.Search([]string{"nope"}, []string{responder.conn.LocalAddr().String()}, 200*time.Millisecond)

	var found []FoundChannel
	for f := range results {
		found = append(found, f)
	}
	require.Empty(t, found)
}
