package transport

import (
	"github.com/go-pvaccess/pva/pkg/auth"
	"github.com/go-pvaccess/pva/pkg/codec"

	pva "github.com/go-pvaccess/pva"
)

// sendServerHello writes the SET_ENDIANESS control frame followed by the
// server's CONNECTION_VALIDATION offer, and advances the state machine to
// StateAwaitPeerResponse.
func (t *Transport) sendServerHello(w *codec.Writer) error {
	if err := w.SendSetEndianess(true); err != nil {
		return err
	}
	if err := w.StartMessage(pva.CmdConnectionValidation); err != nil {
		return err
	}
	hello := serverHello{
		RecvBufferSize:     uint32(t.cfg.RecvBufferSize),
		IntrospectionLimit: t.cfg.IntrospectionSize,
		OfferedPlugins:     t.cfg.OfferedPlugins,
	}
	if err := hello.write(w); err != nil {
		return err
	}
	t.setState(StateAwaitPeerResponse)
	return nil
}

// serverHandleConnectionValidation handles the client's CONNECTION_VALIDATION
// reply: it records the selected plugin, starts an auth session with the
// client's init data, and drives it to completion, sending CONNECTION_VALIDATED
// once authentication succeeds or closing on failure.
func serverHandleConnectionValidation(t *Transport, h codec.Header) error {
	reply, err := readClientHello(t.reader)
	if err != nil {
		return err
	}
	plugin, ok := auth.Lookup(reply.SelectedPlugin)
	if !ok {
		plugin, _ = auth.Lookup("anonymous")
	}
	t.selectedPlugin = plugin.Name()
	t.setState(StateAuthenticating)
	t.authSession = plugin.NewSession(reply.InitData, true)
	return t.driveAuth(nil)
}

// serverHandleAuthNZ feeds one more AUTHNZ round into the in-progress auth
// session.
func serverHandleAuthNZ(t *Transport, h codec.Header) error {
	payload, err := t.reader.GetBytes(int(h.PayloadSize))
	if err != nil {
		return err
	}
	return t.driveAuth(payload)
}

// driveAuth steps the current auth session, sends any AUTHNZ payload it
// produces, and on completion sends CONNECTION_VALIDATED (server) and
// transitions to StateVerified, or closes the transport on failure.
func (t *Transport) driveAuth(received []byte) error {
	toSend, done, st := t.authSession.Step(received)
	if len(toSend) > 0 {
		t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
			if err := w.StartMessage(pva.CmdAuthNZ); err != nil {
				return err
			}
			return w.PutBytes(toSend)
		}))
	}
	if !done {
		return nil
	}
	if !st.IsOK() {
		t.log.Warn("authentication failed", "plugin", t.selectedPlugin, "status", st.Error())
		return pva.ErrUnsupported
	}
	if t.cfg.Role == RoleServer {
		t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
			if err := w.StartMessage(pva.CmdConnectionValidated); err != nil {
				return err
			}
			return writeStatus(w, st)
		}))
	}
	t.setState(StateVerified)
	t.markVerified()
	return nil
}

// clientHandleConnectionValidation handles the server's initial offer: it
// picks a plugin per the preference rule, starts a session, and replies
// with its own CONNECTION_VALIDATION.
func clientHandleConnectionValidation(t *Transport, h codec.Header) error {
	offer, err := readServerHello(t.reader)
	if err != nil {
		return err
	}
	name := auth.Choose(offer.OfferedPlugins)
	plugin, ok := auth.Lookup(name)
	if !ok {
		plugin, _ = auth.Lookup("anonymous")
		name = plugin.Name()
	}
	t.selectedPlugin = name
	t.authSession = plugin.NewSession(nil, false)
	initData, _, _ := t.authSession.Step(nil)

	t.setState(StateAuthenticating)
	t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdConnectionValidation); err != nil {
			return err
		}
		reply := clientHello{
			RecvBufferSize:     uint32(t.cfg.RecvBufferSize),
			IntrospectionLimit: t.cfg.IntrospectionSize,
			Priority:           0,
			SelectedPlugin:     name,
			InitData:           initData,
		}
		return reply.write(w)
	}))
	return nil
}

// clientHandleAuthNZ feeds a server-originated AUTHNZ round into the
// client's auth session.
func clientHandleAuthNZ(t *Transport, h codec.Header) error {
	payload, err := t.reader.GetBytes(int(h.PayloadSize))
	if err != nil {
		return err
	}
	toSend, _, _ := t.authSession.Step(payload)
	if len(toSend) == 0 {
		return nil
	}
	t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdAuthNZ); err != nil {
			return err
		}
		return w.PutBytes(toSend)
	}))
	return nil
}

// clientHandleConnectionValidated marks the handshake complete on the
// client side once the server signals CONNECTION_VALIDATED.
func clientHandleConnectionValidated(t *Transport, h codec.Header) error {
	st, err := readStatus(t.reader)
	if err != nil {
		return err
	}
	if !st.IsOK() {
		t.log.Warn("server rejected connection", "status", st.Error())
		return pva.ErrUnsupported
	}
	t.setState(StateVerified)
	t.markVerified()
	return nil
}
