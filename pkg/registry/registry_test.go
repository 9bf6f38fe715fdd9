package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	name    string
	closed  bool
}

func TestPreallocateSkipsOccupiedIDs(t *testing.T) {
	r := New[*fakeChannel](1)
	id1 := r.Preallocate()
	r.Register(id1, &fakeChannel{name: "a"})

	id2 := r.Preallocate()
	assert.NotEqual(t, id1, id2)
	_, occupied := r.Get(id1)
	assert.True(t, occupied)
}

func TestUnregisterRemovesItem(t *testing.T) {
	r := New[*fakeChannel](1)
	id := r.Preallocate()
	r.Register(id, &fakeChannel{name: "x"})

	item, ok := r.Unregister(id)
	assert.True(t, ok)
	assert.Equal(t, "x", item.name)

	_, ok = r.Get(id)
	assert.False(t, ok)
}

func TestDestroyAllRunsCallbackOutsideLock(t *testing.T) {
	r := New[*fakeChannel](1)
	for i := 0; i < 5; i++ {
		id := r.Preallocate()
		r.Register(id, &fakeChannel{name: "c"})
	}
	assert.Equal(t, 5, r.Len())

	destroyed := 0
	r.DestroyAll(func(c *fakeChannel) {
		// A destroy callback that re-enters the registry must not
		// deadlock: Preallocate/Get take the same mutex DestroyAll held.
		c.closed = true
		destroyed++
		_ = r.Preallocate()
	})

	assert.Equal(t, 5, destroyed)
	assert.Equal(t, 0, r.Len())
}
