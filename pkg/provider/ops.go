package provider

import (
	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/pvrequest"
	"github.com/go-pvaccess/pva/pkg/sharedpv"
	"github.com/go-pvaccess/pva/pkg/transport"

	pva "github.com/go-pvaccess/pva"
)

func readRequestHeader(r *codec.Reader) (sid, ioid uint32, pvReq string, err error) {
	if sid, err = r.GetUint32(); err != nil {
		return
	}
	if ioid, err = r.GetUint32(); err != nil {
		return
	}
	pvReq, err = getSizedString(r)
	return
}

func replyStatusOnly(t *transport.Transport, command byte, ioid uint32, err error) {
	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if werr := w.StartMessage(command); werr != nil {
			return werr
		}
		if werr := w.PutUint32(ioid); werr != nil {
			return werr
		}
		return writeStatusFor(w, err)
	}))
}

// handleGet implements a synchronous, single-shot GET: fetch the PV's
// current value filtered by the pvRequest field list and reply with a
// name/value snapshot. Real pvAccess splits GET into an INIT phase and a
// separate get phase; this module collapses them since nothing here
// depends on introspection round-tripping separately from data.
func handleGet(t *transport.Transport, h codec.Header) error {
	sid, ioid, raw, err := readRequestHeader(t.Reader())
	if err != nil {
		return err
	}
	ch, ok := channelFor(t, sid)
	if !ok {
		replyStatusOnly(t, pva.CmdGet, ioid, pva.ErrNotFound)
		return nil
	}
	value, _ := ch.pv.Fetch()
	if value == nil {
		replyStatusOnly(t, pva.CmdGet, ioid, pva.ErrNotOpen)
		return nil
	}
	req, _ := pvrequest.Parse(raw)
	sel := req.BitSet(value.Struct)
	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdGet); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		if err := writeStatusOK(w); err != nil {
			return err
		}
		return writeSnapshot(w, value, sel)
	}))
	return nil
}

// handlePut reads a field-name/value snapshot and a pvRequest field
// selector, maps the string values onto the channel's structure type, and
// runs the PV's put handler. The completion callback fires the wire
// reply, which may arrive well after this handler returns.
func handlePut(t *transport.Transport, h codec.Header) error {
	sid, ioid, raw, err := readRequestHeader(t.Reader())
	if err != nil {
		return err
	}
	fields, err := readSnapshot(t.Reader())
	if err != nil {
		return err
	}
	ch, ok := channelFor(t, sid)
	if !ok {
		replyStatusOnly(t, pva.CmdPut, ioid, pva.ErrNotFound)
		return nil
	}
	template := ch.pv.Build()
	if template == nil {
		replyStatusOnly(t, pva.CmdPut, ioid, pva.ErrNotOpen)
		return nil
	}
	req, _ := pvrequest.Parse(raw)
	allowed := req.BitSet(template.Struct)
	changed := pvdata.NewBitSet(len(template.Struct.Fields))
	for name, val := range fields {
		idx := template.Struct.FieldIndex(name)
		if idx < 0 || !allowed.Test(idx) {
			continue
		}
		v, err := coerce(template.Struct.Fields[idx].Type, val)
		if err != nil {
			replyStatusOnly(t, pva.CmdPut, ioid, pva.ErrIllegalArgument)
			return nil
		}
		_ = template.Set(name, v)
		changed.Set(idx)
	}

	ch.pv.Put(template, changed, func(status pva.Status) {
		t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
			if err := w.StartMessage(pva.CmdPut); err != nil {
				return err
			}
			if err := w.PutUint32(ioid); err != nil {
				return err
			}
			return writeStatusValue(w, status)
		}))
	})
	return nil
}

// handleRPC reads an argument snapshot and invokes the channel's RPC
// handler, replying with the result snapshot on completion.
func handleRPC(t *transport.Transport, h codec.Header) error {
	sid, ioid, _, err := readRequestHeader(t.Reader())
	if err != nil {
		return err
	}
	args, err := readSnapshot(t.Reader())
	if err != nil {
		return err
	}
	ch, ok := channelFor(t, sid)
	if !ok {
		replyStatusOnly(t, pva.CmdRPC, ioid, pva.ErrNotFound)
		return nil
	}
	argStruct := ch.pv.Build()
	if argStruct != nil {
		for name, raw := range args {
			if idx := argStruct.Struct.FieldIndex(name); idx >= 0 {
				v, _ := coerce(argStruct.Struct.Fields[idx].Type, raw)
				_ = argStruct.Set(name, v)
			}
		}
	}
	ch.pv.RPC(argStruct, func(status pva.Status, result *pvdata.PVStructure) {
		t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
			if err := w.StartMessage(pva.CmdRPC); err != nil {
				return err
			}
			if err := w.PutUint32(ioid); err != nil {
				return err
			}
			if err := writeStatusValue(w, status); err != nil {
				return err
			}
			if result == nil {
				return w.PutUint16(0)
			}
			return writeSnapshot(w, result, nil)
		}))
	})
	return nil
}

// monitorSub bridges one MONITOR subscription: a poll-and-push pump that
// fires whenever SharedPV.Post notifies it, draining every queued update
// onto the transport.
type monitorSub struct {
	t    *transport.Transport
	pv   *sharedpv.SharedPV
	ioid uint32
	req  pvrequest.Request
	id   uint32
}

func (m *monitorSub) Request() pvrequest.Request { return m.req }

func (m *monitorSub) Notify() {
	for {
		value, ok := m.pv.PollMonitor(m.id)
		if !ok {
			return
		}
		v := value
		m.t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
			if err := w.StartMessage(pva.CmdMonitor); err != nil {
				return err
			}
			if err := w.PutUint32(m.ioid); err != nil {
				return err
			}
			if err := writeStatusOK(w); err != nil {
				return err
			}
			return writeSnapshot(w, v, v.Changed)
		}))
	}
}

func (m *monitorSub) Unlisten() {}

// handleMonitor starts a monitor subscription on its INIT subcommand;
// every later snapshot flows back through monitorSub.Notify. Stopping a
// monitor goes through CANCEL_REQUEST/DESTROY_REQUEST like any other
// in-flight operation, rather than a dedicated subcommand here.
func handleMonitor(t *transport.Transport, h codec.Header) error {
	r := t.Reader()
	sid, err := r.GetUint32()
	if err != nil {
		return err
	}
	ioid, err := r.GetUint32()
	if err != nil {
		return err
	}
	subcommand, err := r.GetByte()
	if err != nil {
		return err
	}
	raw, err := getSizedString(r)
	if err != nil {
		return err
	}

	const subInit = 0x08
	if subcommand != subInit {
		return nil
	}

	ch, ok := channelFor(t, sid)
	if !ok {
		replyStatusOnly(t, pva.CmdMonitor, ioid, pva.ErrNotFound)
		return nil
	}
	req, _ := pvrequest.Parse(raw)
	sub := &monitorSub{t: t, pv: ch.pv, ioid: ioid, req: req}
	sub.id = ch.pv.AddMonitor(sub)
	t.Operations.Register(ioid, &serverOperation{cancel: func() { ch.pv.RemoveMonitor(sub.id) }})
	replyStatusOnly(t, pva.CmdMonitor, ioid, nil)
	return nil
}

// handleGetField returns the structure descriptor for a channel: since
// pvdata's structures are not deeply nested, this returns the whole
// top-level field list rather than resolving a sub-field path.
func handleGetField(t *transport.Transport, h codec.Header) error {
	r := t.Reader()
	sid, err := r.GetUint32()
	if err != nil {
		return err
	}
	ioid, err := r.GetUint32()
	if err != nil {
		return err
	}
	if _, err := getSizedString(r); err != nil {
		return err
	}

	ch, ok := channelFor(t, sid)
	if !ok {
		replyStatusOnly(t, pva.CmdGetField, ioid, pva.ErrNotFound)
		return nil
	}
	value, _ := ch.pv.Fetch()
	t.EnqueueSender(transport.NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdGetField); err != nil {
			return err
		}
		if err := w.PutUint32(ioid); err != nil {
			return err
		}
		if value == nil {
			return writeStatusFor(w, pva.ErrNotOpen)
		}
		if err := writeStatusOK(w); err != nil {
			return err
		}
		if err := w.PutUint16(uint16(len(value.Struct.Fields))); err != nil {
			return err
		}
		for _, f := range value.Struct.Fields {
			if err := putSizedString(w, f.Name); err != nil {
				return err
			}
			if err := putSizedString(w, f.Type.String()); err != nil {
				return err
			}
		}
		return nil
	}))
	return nil
}
