package provider

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
	"github.com/go-pvaccess/pva/pkg/transport"

	pva "github.com/go-pvaccess/pva"
)

func scalarStruct() *pvdata.Structure {
	return &pvdata.Structure{
		ID:     "scalar",
		Fields: []pvdata.Field{{Name: "value", Type: pvdata.KindInt32}},
	}
}

func openedMailbox(t *testing.T) *sharedpv.SharedPV {
	t.Helper()
	pv := sharedpv.NewMailbox(sharedpv.Config{})
	v := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, v.Set("value", int32(41)))
	valid := pvdata.NewBitSet(1)
	valid.Set(0)
	require.NoError(t, pv.Open(v, valid))
	return pv
}

func newInstalledPair(t *testing.T, reg *Registry, setupClient func(*transport.Transport)) (*transport.Transport, *transport.Transport) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	server := transport.New(serverConn, transport.Config{Role: transport.RoleServer})
	client := transport.New(clientConn, transport.Config{Role: transport.RoleClient})
	Install(server, reg)
	if setupClient != nil {
		setupClient(client)
	}
	server.Start()
	client.Start()
	t.Cleanup(func() {
		server.Close(true)
		client.Close(true)
	})

	select {
	case <-waitVerified(server):
	case <-time.After(2 * time.Second):
		t.Fatal("server never reached VERIFIED")
	}
	select {
	case <-waitVerified(client):
	case <-time.After(2 * time.Second):
		t.Fatal("client never reached VERIFIED")
	}
	return server, client
}

// waitVerified polls Verified via a short-lived channel; Transport does
// not export its internal verified channel outside the package, so tests
// here settle for a small wait loop instead of reaching in.
func waitVerified(tr *transport.Transport) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for !tr.Verified() {
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	return done
}

func TestStaticProviderCreateChannelRoundTrip(t *testing.T) {
	pv := openedMailbox(t)
	sp := NewStaticProvider("test")
	sp.Add("counter", pv)
	reg := NewRegistry()
	reg.Register(sp)

	replies := make(chan codec.Header, 4)
	server, client := newInstalledPair(t, reg, func(client *transport.Transport) {
		client.SetHandler(pva.CmdCreateChannel, func(tr *transport.Transport, h codec.Header) error {
			replies <- h
			_, err := tr.Reader().GetBytes(int(h.PayloadSize))
			return err
		})
	})

	client.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdCreateChannel); err != nil {
			return err
		}
		if err := w.PutUint32(1); err != nil {
			return err
		}
		return putSizedString(w, "counter")
	}))

	select {
	case <-replies:
	case <-time.After(2 * time.Second):
		t.Fatal("never received CREATE_CHANNEL reply")
	}

	require.Equal(t, 1, server.Channels.Len())
}

func TestCreateChannelUnknownNameRepliesNotFound(t *testing.T) {
	reg := NewRegistry()
	statusText := make(chan string, 1)
	server, client := newInstalledPair(t, reg, func(client *transport.Transport) {
		client.SetHandler(pva.CmdCreateChannel, func(tr *transport.Transport, h codec.Header) error {
			r := tr.Reader()
			if _, err := r.GetUint32(); err != nil {
				return err
			}
			if _, err := r.GetUint32(); err != nil {
				return err
			}
			s, err := getSizedString(r)
			if err != nil {
				return err
			}
			statusText <- s
			return nil
		})
	})

	client.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdCreateChannel); err != nil {
			return err
		}
		if err := w.PutUint32(1); err != nil {
			return err
		}
		return putSizedString(w, "nonexistent")
	}))

	select {
	case s := <-statusText:
		require.NotEmpty(t, s)
	case <-time.After(2 * time.Second):
		t.Fatal("never received CREATE_CHANNEL reply")
	}
	require.Equal(t, 0, server.Channels.Len())
}

func TestServerChannelDestroyMarksChannelDestroyed(t *testing.T) {
	pv := openedMailbox(t)
	sp := NewStaticProvider("test")
	sp.Add("counter", pv)
	reg := NewRegistry()
	reg.Register(sp)

	server, _ := newInstalledPair(t, reg, nil)
	ch := newServerChannel(server, pv, 1, 7)
	server.Channels.Register(7, ch)
	require.Equal(t, 1, server.Channels.Len())

	ch.Destroy()
	require.True(t, ch.destroyed)
}
