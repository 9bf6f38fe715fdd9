package sharedpv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/pvdata"
	"github.com/go-pvaccess/pva/pkg/pvrequest"

	pva "github.com/go-pvaccess/pva"
)

func scalarStruct() *pvdata.Structure {
	return &pvdata.Structure{
		Fields: []pvdata.Field{{Name: "value", Type: pvdata.KindInt32}},
	}
}

type fakeChannel struct{ states []ChannelState }

func (f *fakeChannel) StateChange(s ChannelState) { f.states = append(f.states, s) }

type fakeMonitorSub struct{ notified int }

func (f *fakeMonitorSub) Request() pvrequest.Request { return pvrequest.Request{} }
func (f *fakeMonitorSub) Notify()                    { f.notified++ }
func (f *fakeMonitorSub) Unlisten()                  {}

type countingWrapper struct {
	DefaultHandler
	onFirst func()
	onLast  func()
}

func (c *countingWrapper) OnFirstConnect(*SharedPV)   { c.onFirst() }
func (c *countingWrapper) OnLastDisconnect(*SharedPV) { c.onLast() }

func openedPV(t *testing.T, h Handler) (*SharedPV, *pvdata.PVStructure) {
	t.Helper()
	pv := New(h, Config{})
	v := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, v.Set("value", int32(7)))
	valid := pvdata.NewBitSet(1)
	valid.Set(0)
	require.NoError(t, pv.Open(v, valid))
	return pv, v
}

func TestOpenTwiceFailsAndLeavesPVUnchanged(t *testing.T) {
	pv, _ := openedPV(t, DefaultHandler{})
	before, _ := pv.Fetch()

	err := pv.Open(pvdata.NewPVStructure(scalarStruct()), pvdata.NewBitSet(1))
	assert.ErrorIs(t, err, pva.ErrAlreadyOpen)

	after, _ := pv.Fetch()
	v1, _ := before.Get("value")
	v2, _ := after.Get("value")
	assert.Equal(t, v1, v2)
}

func TestFirstAndLastConnectFireOnce(t *testing.T) {
	var firstCount, lastCount int
	h := &countingWrapper{onFirst: func() { firstCount++ }, onLast: func() { lastCount++ }}
	pv := New(h, Config{})

	ch := &fakeChannel{}
	id1 := pv.AddChannel(ch)
	id2 := pv.AddChannel(ch)
	assert.Equal(t, 1, firstCount)

	pv.RemoveChannel(id1)
	assert.Equal(t, 0, lastCount)
	pv.RemoveChannel(id2)
	assert.Equal(t, 1, lastCount)
}

func TestPostUpdatesCacheAndNotifiesMonitors(t *testing.T) {
	pv, _ := openedPV(t, DefaultHandler{})

	fm := &fakeMonitorSub{}
	id := pv.AddMonitor(fm)
	assert.Equal(t, 1, fm.notified) // initial value on open

	update := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, update.Set("value", int32(9)))
	changed := pvdata.NewBitSet(1)
	changed.Set(0)
	require.NoError(t, pv.Post(update, changed))
	assert.Equal(t, 2, fm.notified)

	first, ok := pv.PollMonitor(id)
	require.True(t, ok)
	v, _ := first.Get("value")
	assert.Equal(t, int32(7), v)

	second, ok := pv.PollMonitor(id)
	require.True(t, ok)
	v2, _ := second.Get("value")
	assert.Equal(t, int32(9), v2)
	assert.True(t, second.Changed.Test(0))
}

func TestCloseDestroyClearsChannelsAndResetsFirstConnect(t *testing.T) {
	var firstCount int
	h := &countingWrapper{onFirst: func() { firstCount++ }, onLast: func() {}}
	pv := New(h, Config{})

	ch := &fakeChannel{}
	pv.AddChannel(ch)
	v := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, pv.Open(v, pvdata.NewBitSet(1)))

	require.NoError(t, pv.Close(true))
	assert.Equal(t, []ChannelState{ChannelDestroyed}, ch.states)

	ch2 := &fakeChannel{}
	pv.AddChannel(ch2)
	assert.Equal(t, 2, firstCount, "destroy must reset notifiedConn so the next channel refires OnFirstConnect")
}

func TestMonitorStopsPostingWhenFullAndNotDropOnFull(t *testing.T) {
	pv := New(DefaultHandler{}, Config{DropOnFull: false})
	v := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, v.Set("value", int32(0)))
	require.NoError(t, pv.Open(v, pvdata.NewBitSet(1)))

	fm := &fakeMonitorSub{}
	id := pv.AddMonitor(fm)
	pv.PollMonitor(id) // drain the initial seed

	for i := 0; i < defaultMonitorQueueDepth+5; i++ {
		u := pvdata.NewPVStructure(scalarStruct())
		require.NoError(t, u.Set("value", int32(i)))
		sel := pvdata.NewBitSet(1)
		sel.Set(0)
		require.NoError(t, pv.Post(u, sel))
	}

	count := 0
	for {
		if _, ok := pv.PollMonitor(id); !ok {
			break
		}
		count++
	}
	assert.Equal(t, defaultMonitorQueueDepth, count)
}

func TestMailboxPutPostsAndCompletes(t *testing.T) {
	pv := NewMailbox(Config{})
	v := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, v.Set("value", int32(1)))
	require.NoError(t, pv.Open(v, pvdata.NewBitSet(1)))

	put := pvdata.NewPVStructure(scalarStruct())
	require.NoError(t, put.Set("value", int32(5)))
	sel := pvdata.NewBitSet(1)
	sel.Set(0)

	var status pva.Status
	pv.Put(put, sel, func(s pva.Status) { status = s })
	assert.True(t, status.IsOK())

	cache, _ := pv.Fetch()
	got, _ := cache.Get("value")
	assert.Equal(t, int32(5), got)
}

func TestReadOnlyRejectsPut(t *testing.T) {
	pv := NewReadOnly(Config{})
	require.NoError(t, pv.Open(pvdata.NewPVStructure(scalarStruct()), pvdata.NewBitSet(1)))

	var status pva.Status
	pv.Put(pvdata.NewPVStructure(scalarStruct()), pvdata.NewBitSet(1), func(s pva.Status) { status = s })
	assert.False(t, status.IsOK())
}
