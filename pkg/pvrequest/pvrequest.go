// Package pvrequest parses the pvRequest mini-language a get/put/monitor
// operation sends to select which fields of a channel's structure it
// wants: a comma-separated, optionally nested field-path list such as
// "value,alarm.severity" or "field(value,timestamp)". The wire-exact
// grammar (record(), putField(), etc.) is out of scope per spec.md
// section 1; this implements the subset needed to build a field BitSet
// against a pkg/pvdata Structure.
package pvrequest

import (
	"strings"

	"github.com/go-pvaccess/pva/pkg/pvdata"

	pva "github.com/go-pvaccess/pva"
)

// Request is a parsed pvRequest: the set of top-level field names the
// caller asked for. An empty Request (no fields named) means "everything".
type Request struct {
	Fields []string
}

// Parse splits a raw pvRequest string into top-level field names. It
// strips one optional "field(...)" wrapper and any dotted sub-field
// suffix, keeping only the top-level name — sufficient for the BitSet
// selection pkg/pvdata.PVStructure.ApplyBitSet operates on.
func Parse(raw string) (Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Request{}, nil
	}
	if strings.HasPrefix(raw, "field(") {
		if !strings.HasSuffix(raw, ")") {
			return Request{}, pva.ErrInvalidDataStream
		}
		raw = raw[len("field(") : len(raw)-1]
	}
	var fields []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dot := strings.IndexByte(part, '.'); dot >= 0 {
			part = part[:dot]
		}
		fields = append(fields, part)
	}
	return Request{Fields: fields}, nil
}

// BitSet builds a pkg/pvdata.BitSet over s selecting exactly the fields
// named in r, or every field when r names none.
func (r Request) BitSet(s *pvdata.Structure) *pvdata.BitSet {
	sel := pvdata.NewBitSet(len(s.Fields))
	if len(r.Fields) == 0 {
		for i := range s.Fields {
			sel.Set(i)
		}
		return sel
	}
	for _, name := range r.Fields {
		if idx := s.FieldIndex(name); idx >= 0 {
			sel.Set(idx)
		}
	}
	return sel
}
