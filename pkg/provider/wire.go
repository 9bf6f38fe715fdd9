package provider

import (
	"fmt"
	"strconv"

	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/pvdata"

	pva "github.com/go-pvaccess/pva"
)

// putSizedString/getSizedString mirror pkg/transport's handshake encoding:
// a one-byte length prefix followed by the raw bytes. No component in
// this module claims wire compatibility with real pvAccess clients, so
// every payload here uses this same minimal convention rather than the
// full structured-type introspection format (out of scope).
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

// writeFieldValue renders one field's value as a string (its kind decides
// how to parse it back) and writes name/value as two sized strings.
func writeFieldValue(w *codec.Writer, name string, value any) error {
	if err := putSizedString(w, name); err != nil {
		return err
	}
	return putSizedString(w, fmt.Sprint(value))
}

// writeSnapshot encodes the fields named in sel (or every field, if sel is
// empty) as a count followed by name/value pairs. This stands in for the
// full structured-type GET/MONITOR wire payload.
func writeSnapshot(w *codec.Writer, pv *pvdata.PVStructure, sel *pvdata.BitSet) error {
	fields := pv.Struct.Fields
	names := make([]string, 0, len(fields))
	for i, f := range fields {
		if sel == nil || sel.IsEmpty() || sel.Test(i) {
			names = append(names, f.Name)
		}
	}
	if err := w.PutUint16(uint16(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		v, _ := pv.Get(name)
		if err := writeFieldValue(w, name, v); err != nil {
			return err
		}
	}
	return nil
}

// readSnapshot parses writeSnapshot's wire format back into a name/string
// map, leaving type coercion against the PV's structure to the caller.
func readSnapshot(r *codec.Reader) (map[string]string, error) {
	count, err := r.GetUint16()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		name, err := getSizedString(r)
		if err != nil {
			return nil, err
		}
		value, err := getSizedString(r)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// coerce converts a wire string into the Go type a field of kind k stores.
func coerce(k pvdata.Kind, s string) (any, error) {
	switch k {
	case pvdata.KindBool:
		return strconv.ParseBool(s)
	case pvdata.KindByte:
		v, err := strconv.ParseInt(s, 10, 8)
		return byte(v), err
	case pvdata.KindInt32:
		v, err := strconv.ParseInt(s, 10, 32)
		return int32(v), err
	case pvdata.KindInt64:
		return strconv.ParseInt(s, 10, 64)
	case pvdata.KindFloat64:
		return strconv.ParseFloat(s, 64)
	case pvdata.KindString:
		return s, nil
	default:
		return s, nil
	}
}

func writeStatusOK(w *codec.Writer) error {
	return putSizedString(w, "")
}

// writeStatusFor serializes a plain Go error (from the transport/registry
// layer, not from a handler's own Status) as a one-line message, or
// writes an empty OK marker for nil.
func writeStatusFor(w *codec.Writer, err error) error {
	if err == nil {
		return writeStatusOK(w)
	}
	return putSizedString(w, pva.StatusOf(err).Error())
}

// writeStatusValue serializes a Status produced by a SharedPV handler,
// preserving its Type/Message instead of re-wrapping it through StatusOf.
func writeStatusValue(w *codec.Writer, st pva.Status) error {
	if st.IsOK() {
		return writeStatusOK(w)
	}
	return putSizedString(w, st.Error())
}
