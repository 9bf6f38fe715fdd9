package pvdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStruct() *Structure {
	return &Structure{
		ID: "epics:nt/NTScalar:1.0",
		Fields: []Field{
			{Name: "value", Type: KindFloat64},
			{Name: "alarm", Type: KindInt32},
			{Name: "timestamp", Type: KindString},
		},
	}
}

func TestSetMarksChanged(t *testing.T) {
	p := NewPVStructure(testStruct())
	require.NoError(t, p.Set("value", 3.14))

	v, err := p.Get("value")
	require.NoError(t, err)
	assert.Equal(t, 3.14, v)
	assert.True(t, p.Changed.Test(0))
	assert.False(t, p.Changed.Test(1))
}

func TestSetUnknownFieldErrors(t *testing.T) {
	p := NewPVStructure(testStruct())
	err := p.Set("bogus", 1)
	assert.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	p := NewPVStructure(testStruct())
	require.NoError(t, p.Set("value", 1.0))

	clone := p.Clone()
	require.NoError(t, p.Set("value", 2.0))

	v, _ := clone.Get("value")
	assert.Equal(t, 1.0, v)
	assert.True(t, clone.Changed.Test(0))
}

func TestApplyBitSetOnlyCopiesSelectedFields(t *testing.T) {
	dst := NewPVStructure(testStruct())
	require.NoError(t, dst.Set("alarm", int32(0)))

	src := NewPVStructure(testStruct())
	require.NoError(t, src.Set("value", 9.0))
	require.NoError(t, src.Set("alarm", int32(2)))

	sel := NewBitSet(3)
	sel.Set(0) // value only

	dst.ApplyBitSet(src, sel)

	v, _ := dst.Get("value")
	assert.Equal(t, 9.0, v)
	a, _ := dst.Get("alarm")
	assert.Equal(t, int32(0), a, "alarm was not selected, must be untouched")
}

func TestBitSetOrAndCount(t *testing.T) {
	a := NewBitSet(8)
	a.Set(1)
	b := NewBitSet(8)
	b.Set(1)
	b.Set(5)

	a.Or(b)
	assert.True(t, a.Test(1))
	assert.True(t, a.Test(5))
	assert.Equal(t, 2, a.Count())
	assert.False(t, a.IsEmpty())
}
