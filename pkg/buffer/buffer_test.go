package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pva "github.com/go-pvaccess/pva"
)

func TestScalarRoundTrip(t *testing.T) {
	b := New(16)
	assert.Nil(t, b.PutUint32(0x01020304))
	assert.Nil(t, b.PutByte(0xAB))
	b.Flip()

	v, err := b.GetUint32()
	assert.Nil(t, err)
	assert.EqualValues(t, 0x01020304, v)

	bt, err := b.GetByte()
	assert.Nil(t, err)
	assert.EqualValues(t, 0xAB, bt)
}

func TestBigEndianSwitch(t *testing.T) {
	b := New(8)
	b.SetBigEndian(true)
	assert.Nil(t, b.PutUint16(0x0102))
	b.Flip()
	raw := b.Bytes()[:2]
	assert.EqualValues(t, []byte{0x01, 0x02}, raw)
}

func TestEnsureCapacityOverflow(t *testing.T) {
	b := New(2)
	err := b.PutUint32(1)
	assert.ErrorIs(t, err, pva.ErrBufferOverflow)
}

func TestAlign(t *testing.T) {
	b := New(16)
	assert.Nil(t, b.PutByte(1))
	assert.Nil(t, b.Align(8, true))
	assert.Equal(t, 8, b.Position())
	for _, p := range b.Bytes()[1:8] {
		assert.EqualValues(t, 0xFF, p)
	}
}

func TestCompactPreservesPrefixRegion(t *testing.T) {
	b := New(32)
	payload := []byte("hello world this is unread data")
	copy(b.Bytes()[10:], payload[:22])
	b.SetPosition(10)
	b.SetLimit(10 + 22)

	moved := b.Compact(10, 4)
	assert.Equal(t, 22, moved)
	assert.Equal(t, 4, b.Position())
	assert.Equal(t, 4+22, b.Limit())
	assert.EqualValues(t, payload[:22], b.Bytes()[4:4+22])
}
