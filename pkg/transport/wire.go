package transport

import (
	"github.com/go-pvaccess/pva/pkg/codec"

	pva "github.com/go-pvaccess/pva"
)

// putSizedString and getSizedString implement a size-prefixed string
// primitive without pulling in a full introspection type system. Size is a
// single byte for every string; there is no extended-length form, so only
// strings of up to 255 bytes round-trip. CONNECTION_VALIDATION, CmdMessage
// and AUTHNZ text all use this convention.
func putSizedString(w *codec.Writer, s string) error {
	if err := w.PutByte(byte(len(s))); err != nil {
		return err
	}
	return w.PutBytes([]byte(s))
}

func getSizedString(r *codec.Reader) (string, error) {
	n, err := r.GetByte()
	if err != nil {
		return "", err
	}
	b, err := r.GetBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// serverHello is the server->client CONNECTION_VALIDATION payload.
type serverHello struct {
	RecvBufferSize     uint32
	IntrospectionLimit uint16
	OfferedPlugins     []string
}

func (h serverHello) write(w *codec.Writer) error {
	if err := w.PutUint32(h.RecvBufferSize); err != nil {
		return err
	}
	if err := w.PutUint16(h.IntrospectionLimit); err != nil {
		return err
	}
	if err := w.PutUint16(uint16(len(h.OfferedPlugins))); err != nil {
		return err
	}
	for _, p := range h.OfferedPlugins {
		if err := putSizedString(w, p); err != nil {
			return err
		}
	}
	return nil
}

func readServerHello(r *codec.Reader) (serverHello, error) {
	var h serverHello
	var err error
	if h.RecvBufferSize, err = r.GetUint32(); err != nil {
		return h, err
	}
	if h.IntrospectionLimit, err = r.GetUint16(); err != nil {
		return h, err
	}
	count, err := r.GetUint16()
	if err != nil {
		return h, err
	}
	h.OfferedPlugins = make([]string, count)
	for i := range h.OfferedPlugins {
		if h.OfferedPlugins[i], err = getSizedString(r); err != nil {
			return h, err
		}
	}
	return h, nil
}

// clientHello is the client->server CONNECTION_VALIDATION reply.
type clientHello struct {
	RecvBufferSize     uint32
	IntrospectionLimit uint16
	Priority           uint16
	SelectedPlugin     string
	InitData           []byte
}

func (h clientHello) write(w *codec.Writer) error {
	if err := w.PutUint32(h.RecvBufferSize); err != nil {
		return err
	}
	if err := w.PutUint16(h.IntrospectionLimit); err != nil {
		return err
	}
	if err := w.PutUint16(h.Priority); err != nil {
		return err
	}
	if err := putSizedString(w, h.SelectedPlugin); err != nil {
		return err
	}
	if err := w.PutUint32(uint32(len(h.InitData))); err != nil {
		return err
	}
	return w.PutBytes(h.InitData)
}

func readClientHello(r *codec.Reader) (clientHello, error) {
	var h clientHello
	var err error
	if h.RecvBufferSize, err = r.GetUint32(); err != nil {
		return h, err
	}
	if h.IntrospectionLimit, err = r.GetUint16(); err != nil {
		return h, err
	}
	if h.Priority, err = r.GetUint16(); err != nil {
		return h, err
	}
	if h.SelectedPlugin, err = getSizedString(r); err != nil {
		return h, err
	}
	n, err := r.GetUint32()
	if err != nil {
		return h, err
	}
	if h.InitData, err = r.GetBytes(int(n)); err != nil {
		return h, err
	}
	return h, nil
}

// writeStatus/readStatus serialize the Status envelope CONNECTION_VALIDATED
// carries, and that AUTHNZ plugin payloads are free to reuse.
func writeStatus(w *codec.Writer, st pva.Status) error {
	if err := w.PutByte(byte(st.Type)); err != nil {
		return err
	}
	if err := putSizedString(w, st.Message); err != nil {
		return err
	}
	return putSizedString(w, st.StackTrace)
}

func readStatus(r *codec.Reader) (pva.Status, error) {
	var st pva.Status
	t, err := r.GetByte()
	if err != nil {
		return st, err
	}
	st.Type = pva.StatusType(t)
	if st.Message, err = getSizedString(r); err != nil {
		return st, err
	}
	if st.StackTrace, err = getSizedString(r); err != nil {
		return st, err
	}
	return st, nil
}
