package transport

import (
	"github.com/go-pvaccess/pva/pkg/codec"

	pva "github.com/go-pvaccess/pva"
)

// HandlerFunc processes one dispatched application message. The reader is
// positioned just past the 8-byte header when the handler runs; the
// dispatch loop calls Finish after it returns (success or error) so a
// handler that errors out of the middle of its own payload never desyncs
// the stream.
type HandlerFunc func(t *Transport, h codec.Header) error

// dispatchTable is the command-byte-indexed handler array. Index
// pva.NumCommands-1 is the highest valid command; a zero entry falls back
// to badResponse.
type dispatchTable [pva.NumCommands]HandlerFunc

// badResponse logs and discards an unrecognized or unimplemented command's
// payload rather than tearing down the transport over it.
func badResponse(t *Transport, h codec.Header) error {
	t.log.Warn("unhandled command", "command", h.Command, "payload_size", h.PayloadSize)
	return nil
}

func (t *Transport) dispatch(h codec.Header) error {
	fn := t.table[h.Command]
	if fn == nil {
		fn = badResponse
	}
	err := fn(t, h)
	if ferr := t.reader.Finish(); err == nil {
		err = ferr
	}
	return err
}

// serverHandleEcho bounces an ECHO straight back with the same payload:
// the client originates heartbeats, the server just turns them around.
func serverHandleEcho(t *Transport, h codec.Header) error {
	payload, err := t.reader.GetBytes(int(h.PayloadSize))
	if err != nil {
		return err
	}
	t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
		if err := w.StartMessage(pva.CmdEcho); err != nil {
			return err
		}
		return w.PutBytes(payload)
	}))
	return nil
}

// clientHandleEcho consumes the server's bounced-back ECHO. The receive
// loop already refreshed lastRecv before dispatching; there is nothing
// further to do, and in particular the client must not bounce it again.
func clientHandleEcho(t *Transport, h codec.Header) error {
	_, err := t.reader.GetBytes(int(h.PayloadSize))
	return err
}

// handleMessage logs a peer-originated diagnostic MESSAGE command.
func handleMessage(t *Transport, h codec.Header) error {
	msg, err := getSizedString(t.reader)
	if err != nil {
		return err
	}
	t.log.Info("peer message", "message", msg)
	return nil
}

func defaultServerTable() *dispatchTable {
	var table dispatchTable
	table[pva.CmdEcho] = serverHandleEcho
	table[pva.CmdConnectionValidation] = serverHandleConnectionValidation
	table[pva.CmdAuthNZ] = serverHandleAuthNZ
	table[pva.CmdMessage] = handleMessage
	return &table
}

func defaultClientTable() *dispatchTable {
	var table dispatchTable
	table[pva.CmdEcho] = clientHandleEcho
	table[pva.CmdConnectionValidation] = clientHandleConnectionValidation
	table[pva.CmdConnectionValidated] = clientHandleConnectionValidated
	table[pva.CmdAuthNZ] = clientHandleAuthNZ
	table[pva.CmdMessage] = handleMessage
	return &table
}

// SetHandler installs fn for command, overriding any built-in entry. This
// is how a provider wires CREATE_CHANNEL, GET, PUT, MONITOR and the rest of
// the channel/operation commands onto a transport.
func (t *Transport) SetHandler(command byte, fn HandlerFunc) {
	t.table[command] = fn
}
