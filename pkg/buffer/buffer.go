// Package buffer implements the fixed-capacity byte region used by the
// framing codec: position/limit cursors, endian-aware scalar and array
// access, and alignment padding (spec.md section 4.A).
package buffer

import (
	"encoding/binary"
	"math"

	pva "github.com/go-pvaccess/pva"
)

// Buffer is a contiguous, fixed-capacity byte region with position and
// limit cursors, modeled after java.nio.ByteBuffer as described in
// spec.md. It is not safe for concurrent use; the codec that owns it is
// responsible for synchronization (only one worker goroutine touches a
// given buffer).
type Buffer struct {
	data     []byte
	position int
	limit    int
	bigEndian bool
}

// New allocates a Buffer with the given fixed capacity.
func New(capacity int) *Buffer {
	return &Buffer{
		data:  make([]byte, capacity),
		limit: capacity,
	}
}

// Wrap builds a Buffer around an existing slice, positioned at 0 with
// limit == len(b). Used to read directly from already-received bytes.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b, limit: len(b)}
}

func (b *Buffer) Bytes() []byte   { return b.data }
func (b *Buffer) Capacity() int   { return len(b.data) }
func (b *Buffer) Position() int   { return b.position }
func (b *Buffer) Limit() int      { return b.limit }
func (b *Buffer) Remaining() int  { return b.limit - b.position }

func (b *Buffer) SetPosition(pos int) { b.position = pos }
func (b *Buffer) SetLimit(limit int)  { b.limit = limit }

// SetBigEndian switches the endian mode used by every subsequent scalar
// accessor. The mode may change between messages on the same buffer, per
// the peer's flags byte (spec.md section 3).
func (b *Buffer) SetBigEndian(v bool) { b.bigEndian = v }
func (b *Buffer) BigEndian() bool     { return b.bigEndian }

func (b *Buffer) order() binary.ByteOrder {
	if b.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Flip prepares the buffer to be read after writing: limit = position,
// position = 0.
func (b *Buffer) Flip() {
	b.limit = b.position
	b.position = 0
}

// Clear resets the buffer to be written into from the start.
func (b *Buffer) Clear() {
	b.position = 0
	b.limit = len(b.data)
}

// EnsureCapacity fails with ErrBufferOverflow unless at least n bytes
// remain between position and limit.
func (b *Buffer) EnsureCapacity(n int) error {
	if b.limit-b.position < n {
		return pva.ErrBufferOverflow
	}
	return nil
}

func (b *Buffer) GetByte() (byte, error) {
	if err := b.EnsureCapacity(1); err != nil {
		return 0, err
	}
	v := b.data[b.position]
	b.position++
	return v, nil
}

func (b *Buffer) PutByte(v byte) error {
	if err := b.EnsureCapacity(1); err != nil {
		return err
	}
	b.data[b.position] = v
	b.position++
	return nil
}

func (b *Buffer) GetUint16() (uint16, error) {
	if err := b.EnsureCapacity(2); err != nil {
		return 0, err
	}
	v := b.order().Uint16(b.data[b.position:])
	b.position += 2
	return v, nil
}

func (b *Buffer) PutUint16(v uint16) error {
	if err := b.EnsureCapacity(2); err != nil {
		return err
	}
	b.order().PutUint16(b.data[b.position:], v)
	b.position += 2
	return nil
}

func (b *Buffer) GetUint32() (uint32, error) {
	if err := b.EnsureCapacity(4); err != nil {
		return 0, err
	}
	v := b.order().Uint32(b.data[b.position:])
	b.position += 4
	return v, nil
}

func (b *Buffer) PutUint32(v uint32) error {
	if err := b.EnsureCapacity(4); err != nil {
		return err
	}
	b.order().PutUint32(b.data[b.position:], v)
	b.position += 4
	return nil
}

func (b *Buffer) GetUint64() (uint64, error) {
	if err := b.EnsureCapacity(8); err != nil {
		return 0, err
	}
	v := b.order().Uint64(b.data[b.position:])
	b.position += 8
	return v, nil
}

func (b *Buffer) PutUint64(v uint64) error {
	if err := b.EnsureCapacity(8); err != nil {
		return err
	}
	b.order().PutUint64(b.data[b.position:], v)
	b.position += 8
	return nil
}

func (b *Buffer) GetInt32() (int32, error) {
	v, err := b.GetUint32()
	return int32(v), err
}

func (b *Buffer) PutInt32(v int32) error { return b.PutUint32(uint32(v)) }

func (b *Buffer) GetFloat64() (float64, error) {
	v, err := b.GetUint64()
	return math.Float64frombits(v), err
}

func (b *Buffer) PutFloat64(v float64) error { return b.PutUint64(math.Float64bits(v)) }

// GetBytes copies n bytes out of the buffer, advancing position.
func (b *Buffer) GetBytes(n int) ([]byte, error) {
	if err := b.EnsureCapacity(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.position:b.position+n])
	b.position += n
	return out, nil
}

// PutBytes bulk-copies src into the buffer, advancing position.
func (b *Buffer) PutBytes(src []byte) error {
	if err := b.EnsureCapacity(len(src)); err != nil {
		return err
	}
	copy(b.data[b.position:], src)
	b.position += len(src)
	return nil
}

// Align advances position to the next multiple of n. On encode this
// writes 0xFF padding bytes; on decode it simply skips them. spec.md's
// design notes call out that the real alignment constant is 1 with a
// TODO in the original source — callers should honor whatever n the
// peer negotiates and default to 1 until proven otherwise.
func (b *Buffer) Align(n int, write bool) error {
	if n <= 1 {
		return nil
	}
	pad := (n - (b.position % n)) % n
	if pad == 0 {
		return nil
	}
	if err := b.EnsureCapacity(pad); err != nil {
		return err
	}
	if write {
		for i := 0; i < pad; i++ {
			b.data[b.position+i] = 0xFF
		}
	}
	b.position += pad
	return nil
}

// Compact shifts the unread region [from, limit) down to the start of
// the buffer, at offset preserveFrom. Used by the codec's SPLIT state to
// make room for more socket data without ever touching the reserved
// pre-prefix region (spec.md section 4.B, Design notes: "Buffer
// aliasing"). It returns the number of bytes moved.
func (b *Buffer) Compact(from, preserveFrom int) int {
	n := copy(b.data[preserveFrom:], b.data[from:b.limit])
	b.position = preserveFrom + (b.position - from)
	if b.position < preserveFrom {
		b.position = preserveFrom
	}
	b.limit = preserveFrom + n
	return n
}
