// Package pvdata implements just enough of a structured-data type system
// for the core protocol packages (transport, registry, sharedpv) to have a
// concrete value to get/put/monitor/rpc against. Wire-exact introspection
// encoding is explicitly out of scope (spec.md section 1 / SPEC_FULL.md
// section 4); this package only needs to behave like one consistently.
package pvdata

import "fmt"

// Kind enumerates the scalar field kinds this minimal type system
// supports, plus Structure for nesting.
type Kind int

const (
	KindBool Kind = iota
	KindByte
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindStructure
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindByte:
		return "byte"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindStructure:
		return "structure"
	default:
		return "unknown"
	}
}

// Field is one introspection entry: a name, its kind, and (for
// KindStructure) its nested fields. This is the Structure descriptor
// GetField (command 17) returns.
type Field struct {
	Name     string
	Type     Kind
	ID       string  // structure type id, e.g. "epics:nt/NTScalar:1.0"
	Children []Field
}

// Structure is a flat, ordered list of top-level fields — the minimal
// introspection data a PVStructure carries.
type Structure struct {
	ID     string
	Fields []Field
}

// FieldIndex returns the position of name in the structure's field list,
// or -1. Field order is the index space BitSet operates over.
func (s *Structure) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// PVStructure is a structure's introspection plus its current values,
// keyed by field name. It is the cached value type SharedPV stores, and
// the payload of every get/put/monitor/rpc exchange in this module.
type PVStructure struct {
	Struct  *Structure
	Values  map[string]any
	Changed *BitSet
}

// NewPVStructure builds an empty-valued PVStructure for the given
// structure descriptor.
func NewPVStructure(s *Structure) *PVStructure {
	return &PVStructure{
		Struct:  s,
		Values:  make(map[string]any, len(s.Fields)),
		Changed: NewBitSet(len(s.Fields)),
	}
}

// Get returns the value stored for name, or an error if the structure has
// no such field.
func (p *PVStructure) Get(name string) (any, error) {
	idx := p.Struct.FieldIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("pvdata: no such field %q", name)
	}
	return p.Values[name], nil
}

// Set stores value under name and marks it changed. It returns an error if
// the structure has no such field.
func (p *PVStructure) Set(name string, value any) error {
	idx := p.Struct.FieldIndex(name)
	if idx < 0 {
		return fmt.Errorf("pvdata: no such field %q", name)
	}
	p.Values[name] = value
	p.Changed.Set(idx)
	return nil
}

// Clone returns a deep-enough copy for a subscriber to hold independently:
// a fresh Values map (same value types, which this package treats as
// immutable once stored) and a cloned Changed bitset.
func (p *PVStructure) Clone() *PVStructure {
	values := make(map[string]any, len(p.Values))
	for k, v := range p.Values {
		values[k] = v
	}
	return &PVStructure{
		Struct:  p.Struct,
		Values:  values,
		Changed: p.Changed.Clone(),
	}
}

// ApplyBitSet copies every field selected by sel from src into p, the
// operation a PUT-with-bitset or a pvRequest field-subset mapper performs.
func (p *PVStructure) ApplyBitSet(src *PVStructure, sel *BitSet) {
	for i, f := range p.Struct.Fields {
		if sel.Test(i) {
			p.Values[f.Name] = src.Values[f.Name]
			p.Changed.Set(i)
		}
	}
}
