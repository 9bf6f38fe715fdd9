package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopOrder(t *testing.T) {
	f := New[int](3)
	f.Push(1)
	f.Push(2)
	v, ok := f.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, f.Occupied())
}

func TestPushOverwritesOldestWhenFull(t *testing.T) {
	f := New[int](2)
	f.Push(1)
	f.Push(2)
	assert.True(t, f.Full())
	f.Push(3) // drops 1

	v1, _ := f.Pop()
	v2, _ := f.Pop()
	assert.Equal(t, 2, v1)
	assert.Equal(t, 3, v2)
	_, ok := f.Pop()
	assert.False(t, ok)
}

func TestPeekDoesNotRemove(t *testing.T) {
	f := New[string](2)
	f.Push("a")
	v, ok := f.Peek()
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, f.Occupied())
}
