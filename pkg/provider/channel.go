package provider

import (
	"log/slog"
	"sync"

	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
	"github.com/go-pvaccess/pva/pkg/transport"

	pva "github.com/go-pvaccess/pva"
)

// serverChannel is one CREATE_CHANNEL's worth of server-side state: the
// client-chosen id, the server-allocated id, and the SharedPV it names. It
// satisfies transport.Destroyer and transport.Disconnecter so the owning
// transport's Channels registry can tear it down uniformly, and
// sharedpv.ChannelSubscriber so the PV can tell it about open/close/destroy.
type serverChannel struct {
	pv  *sharedpv.SharedPV
	log *slog.Logger

	cid uint32
	sid uint32

	mu        sync.Mutex
	pvChanID  uint32
	destroyed bool
}

func newServerChannel(t *transport.Transport, pv *sharedpv.SharedPV, cid, sid uint32) *serverChannel {
	ch := &serverChannel{pv: pv, log: t.Log().With("component", "provider", "sid", sid), cid: cid, sid: sid}
	ch.pvChanID = pv.AddChannel(ch)
	return ch
}

// StateChange implements sharedpv.ChannelSubscriber: when the PV reports
// that it disconnected or was destroyed, the channel unhooks itself from
// the PV via Destroy. Nothing is sent to the client, and ChannelConnected
// is ignored.
func (ch *serverChannel) StateChange(state sharedpv.ChannelState) {
	if state == sharedpv.ChannelDisconnected || state == sharedpv.ChannelDestroyed {
		ch.Destroy()
	}
}

// Disconnect implements transport.Disconnecter: the transport itself went
// away, so unhook from the PV without trying to reply to a dead peer.
func (ch *serverChannel) Disconnect() {
	ch.mu.Lock()
	if ch.destroyed {
		ch.mu.Unlock()
		return
	}
	ch.destroyed = true
	ch.mu.Unlock()
	ch.log.Debug("channel destroyed", "cid", ch.cid)
	ch.pv.RemoveChannel(ch.pvChanID)
}

// Destroy implements transport.Destroyer.
func (ch *serverChannel) Destroy() {
	ch.Disconnect()
}

// serverOperation is the minimal Destroyer every in-flight get/put/monitor/
// rpc request is registered as, so Transport.Close tears down in-flight
// operations the same way it tears down channels.
type serverOperation struct {
	cancel func()
}

func (op *serverOperation) Destroy() {
	if op.cancel != nil {
		op.cancel()
	}
}

// Install wires the provider registry's CREATE_CHANNEL/DESTROY_CHANNEL/GET/
// PUT/MONITOR/RPC/GET_FIELD/CANCEL_REQUEST handlers onto t, replacing the
// transport's built-in badResponse fallback for those commands. Call this
// once per accepted server connection, after transport.New and before
// transport.Start.
func Install(t *transport.Transport, reg *Registry) {
	t.SetHandler(pva.CmdCreateChannel, func(t *transport.Transport, h codec.Header) error {
		return handleCreateChannel(t, reg, h)
	})
	t.SetHandler(pva.CmdDestroyChannel, handleDestroyChannel)
	t.SetHandler(pva.CmdGet, handleGet)
	t.SetHandler(pva.CmdPut, handlePut)
	t.SetHandler(pva.CmdMonitor, handleMonitor)
	t.SetHandler(pva.CmdRPC, handleRPC)
	t.SetHandler(pva.CmdGetField, handleGetField)
	t.SetHandler(pva.CmdDestroyRequest, handleDestroyRequest)
	t.SetHandler(pva.CmdCancelRequest, handleDestroyRequest)
}

func handleCreateChannel(t *transport.Transport, reg *Registry, h codec.Header) error {
	r := t.Reader()
	cid, err := r.GetUint32()
	if err != nil {
		return err
	}
	name, err := getSizedString(r)
	if err != nil {
		return err
	}

	pv, ok := reg.Find(name)
	var sid uint32
	if ok {
		sid = t.Channels.Preallocate()
	}

	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdCreateChannel); err != nil {
			return err
		}
		if err := w.PutUint32(cid); err != nil {
			return err
		}
		if err := w.PutUint32(sid); err != nil {
			return err
		}
		if !ok {
			return writeStatusFor(w, pva.ErrNotFound)
		}
		return writeStatusOK(w)
	}))

	if ok {
		ch := newServerChannel(t, pv, cid, sid)
		t.Channels.Register(sid, ch)
	}
	return nil
}

func handleDestroyChannel(t *transport.Transport, h codec.Header) error {
	r := t.Reader()
	sid, err := r.GetUint32()
	if err != nil {
		return err
	}
	cid, err := r.GetUint32()
	if err != nil {
		return err
	}
	if ch, ok := t.Channels.Unregister(sid); ok {
		if d, ok := ch.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdDestroyChannel); err != nil {
			return err
		}
		if err := w.PutUint32(sid); err != nil {
			return err
		}
		return w.PutUint32(cid)
	}))
	return nil
}

func channelFor(t *transport.Transport, sid uint32) (*serverChannel, bool) {
	item, ok := t.Channels.Get(sid)
	if !ok {
		return nil, false
	}
	ch, ok := item.(*serverChannel)
	return ch, ok
}

func handleDestroyRequest(t *transport.Transport, h codec.Header) error {
	ioid, err := t.Reader().GetUint32()
	if err != nil {
		return err
	}
	if op, ok := t.Operations.Unregister(ioid); ok {
		if d, ok := op.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	return nil
}
