// Package sharedpv implements the shared-state broker: a cached
// structured value plus the put/rpc/monitor/channel subscriber lists that
// react to it (spec.md section 4.E). It is grounded on
// original_source/src/server/pva/sharedstate.h and its sibling
// sharedstate_{pv,put,rpc,channel}.cpp, which is the ground truth spec.md
// itself distills, and its monitor congestion window is generalized from
// the teacher's internal/fifo ring buffer.
package sharedpv

import (
	"log/slog"
	"sync"

	"github.com/go-pvaccess/pva/internal/fifo"
	"github.com/go-pvaccess/pva/pkg/pvdata"

	pva "github.com/go-pvaccess/pva"
)

// Config carries the per-PV behavior knobs ported from sharedstate.h's
// Config struct.
type Config struct {
	// DropEmptyUpdates skips posting a monitor update when the supplied
	// changed bitset is empty.
	DropEmptyUpdates bool
	// DropOnFull controls what a full monitor FIFO does: drop the
	// oldest queued update (true) or stop posting until the subscriber
	// acknowledges (false).
	DropOnFull bool
	// MapperMode is a placeholder for the pvRequest-to-subtype mapping
	// strategy; this module's minimal pvdata type system always maps
	// successfully, so only one mode is meaningful today.
	MapperMode string
}

// SharedPV is a structured value plus its put/rpc/monitor/channel
// subscriber lists. The zero value is not usable; build one with New,
// NewReadOnly, or NewMailbox.
type SharedPV struct {
	mu sync.Mutex

	cfg     Config
	handler Handler
	log     *slog.Logger

	isOpen       bool
	notifiedConn bool
	structType   *pvdata.Structure
	cache        *pvdata.PVStructure
	valid        *pvdata.BitSet

	nextID   uint32
	puts     map[uint32]*putEntry
	rpcs     map[uint32]*rpcEntry
	monitors map[uint32]*monitorEntry
	channels map[uint32]*channelEntry
}

func newSharedPV(handler Handler, cfg Config) *SharedPV {
	return &SharedPV{
		cfg:      cfg,
		handler:  handler,
		log:      slog.Default().With("component", "sharedpv"),
		puts:     make(map[uint32]*putEntry),
		rpcs:     make(map[uint32]*rpcEntry),
		monitors: make(map[uint32]*monitorEntry),
		channels: make(map[uint32]*channelEntry),
	}
}

// New builds a SharedPV driven by a caller-supplied Handler.
func New(handler Handler, cfg Config) *SharedPV {
	return newSharedPV(handler, cfg)
}

// NewReadOnly builds a SharedPV whose put and RPC operations always fail
// with an unsupported-access status (SharedPV::buildReadOnly).
func NewReadOnly(cfg Config) *SharedPV {
	return newSharedPV(readOnlyHandler{}, cfg)
}

// NewMailbox builds a SharedPV whose put operations post straight into
// the cache and complete; RPC stays unsupported (SharedPV::buildMailbox).
func NewMailbox(cfg Config) *SharedPV {
	return newSharedPV(mailboxHandler{}, cfg)
}

func (pv *SharedPV) allocID() uint32 {
	pv.nextID++
	return pv.nextID
}

// AddChannel registers a channel subscriber and fires OnFirstConnect the
// first time any channel is created against this PV.
func (pv *SharedPV) AddChannel(sub ChannelSubscriber) uint32 {
	pv.mu.Lock()
	id := pv.allocID()
	pv.channels[id] = &channelEntry{sub: sub}
	first := len(pv.channels) == 1 && !pv.notifiedConn
	if first {
		pv.notifiedConn = true
	}
	pv.mu.Unlock()

	if first {
		pv.handler.OnFirstConnect(pv)
	}
	return id
}

// RemoveChannel unregisters a channel subscriber and fires
// OnLastDisconnect when it was the last one.
func (pv *SharedPV) RemoveChannel(id uint32) {
	pv.mu.Lock()
	delete(pv.channels, id)
	last := len(pv.channels) == 0 && pv.notifiedConn
	pv.mu.Unlock()

	if last {
		pv.handler.OnLastDisconnect(pv)
	}
}

// AddPut registers a put subscriber. If the PV is already open, the
// subscriber is connected immediately.
func (pv *SharedPV) AddPut(sub PutSubscriber) uint32 {
	pv.mu.Lock()
	id := pv.allocID()
	entry := &putEntry{sub: sub}
	pv.puts[id] = entry
	st := pv.structType
	open := pv.isOpen
	if open {
		entry.mapped = true
	}
	pv.mu.Unlock()

	if open {
		sub.Connect(pva.StatusOf(nil), st)
	}
	return id
}

func (pv *SharedPV) RemovePut(id uint32) {
	pv.mu.Lock()
	delete(pv.puts, id)
	pv.mu.Unlock()
}

// AddRPC registers an RPC subscriber. If the PV is already open, the
// subscriber is connected immediately.
func (pv *SharedPV) AddRPC(sub RPCSubscriber) uint32 {
	pv.mu.Lock()
	id := pv.allocID()
	entry := &rpcEntry{sub: sub}
	pv.rpcs[id] = entry
	open := pv.isOpen
	if open {
		entry.connected = true
	}
	pv.mu.Unlock()

	if open {
		sub.Connect(pva.StatusOf(nil))
	}
	return id
}

func (pv *SharedPV) RemoveRPC(id uint32) {
	pv.mu.Lock()
	delete(pv.rpcs, id)
	pv.mu.Unlock()
}

// AddMonitor registers a monitor subscriber. If the PV is already open,
// its FIFO is opened and seeded with the current value immediately.
func (pv *SharedPV) AddMonitor(sub MonitorSubscriber) uint32 {
	pv.mu.Lock()
	id := pv.allocID()
	entry := &monitorEntry{sub: sub}
	pv.monitors[id] = entry
	var initial *pvdata.PVStructure
	if pv.isOpen {
		entry.queue = fifo.New[*pvdata.PVStructure](defaultMonitorQueueDepth)
		initial = pv.cache.Clone()
		initial.Changed = pv.valid.Clone()
		entry.queue.Push(initial)
	}
	pv.mu.Unlock()

	if initial != nil {
		sub.Notify()
	}
	return id
}

func (pv *SharedPV) RemoveMonitor(id uint32) {
	pv.mu.Lock()
	delete(pv.monitors, id)
	pv.mu.Unlock()
}

// PollMonitor pops the oldest queued update for a monitor subscriber, if
// any.
func (pv *SharedPV) PollMonitor(id uint32) (*pvdata.PVStructure, bool) {
	pv.mu.Lock()
	entry, ok := pv.monitors[id]
	pv.mu.Unlock()
	if !ok || entry.queue == nil {
		return nil, false
	}
	return entry.queue.Pop()
}

// AckMonitor reopens a monitor's congestion window by draining up to n
// queued updates the subscriber has already consumed off-band.
func (pv *SharedPV) AckMonitor(id uint32, n int) {
	pv.mu.Lock()
	entry, ok := pv.monitors[id]
	pv.mu.Unlock()
	if !ok || entry.queue == nil {
		return
	}
	for i := 0; i < n; i++ {
		if _, ok := entry.queue.Pop(); !ok {
			break
		}
	}
}

// Open transitions closed to open, stamping the PV's type and cache and
// connecting every existing subscriber (spec.md section 4.E).
func (pv *SharedPV) Open(value *pvdata.PVStructure, validBitset *pvdata.BitSet) error {
	pv.mu.Lock()
	if pv.isOpen {
		pv.mu.Unlock()
		return pva.ErrAlreadyOpen
	}
	pv.isOpen = true
	pv.structType = value.Struct
	pv.cache = value.Clone()
	pv.valid = validBitset.Clone()

	puts := make([]*putEntry, 0, len(pv.puts))
	for _, e := range pv.puts {
		e.mapped = true
		puts = append(puts, e)
	}
	rpcs := make([]*rpcEntry, 0, len(pv.rpcs))
	for _, e := range pv.rpcs {
		if !e.connected {
			e.connected = true
			rpcs = append(rpcs, e)
		}
	}
	type monitorSeed struct {
		entry *monitorEntry
		value *pvdata.PVStructure
	}
	monitors := make([]monitorSeed, 0, len(pv.monitors))
	for _, e := range pv.monitors {
		e.queue = fifo.New[*pvdata.PVStructure](defaultMonitorQueueDepth)
		initial := pv.cache.Clone()
		initial.Changed = pv.valid.Clone()
		e.queue.Push(initial)
		monitors = append(monitors, monitorSeed{entry: e, value: initial})
	}
	st := pv.structType
	pv.mu.Unlock()

	for _, e := range puts {
		e.sub.Connect(pva.StatusOf(nil), st)
	}
	for _, e := range rpcs {
		e.sub.Connect(pva.StatusOf(nil))
	}
	for _, m := range monitors {
		m.entry.sub.Notify()
	}
	return nil
}

// Close transitions open to closed (or is a no-op if already closed),
// disconnecting every subscriber. If destroy is true, every subscriber
// list is cleared so a later channel create against this PV starts fresh.
func (pv *SharedPV) Close(destroy bool) error {
	pv.mu.Lock()
	if !pv.isOpen {
		pv.mu.Unlock()
		return nil
	}
	pv.isOpen = false

	puts := make([]*putEntry, 0, len(pv.puts))
	for _, e := range pv.puts {
		e.mapped = false
		puts = append(puts, e)
	}
	monitors := make([]*monitorEntry, 0, len(pv.monitors))
	for _, e := range pv.monitors {
		e.queue = nil
		monitors = append(monitors, e)
	}
	channels := make([]*channelEntry, 0, len(pv.channels))
	for _, e := range pv.channels {
		channels = append(channels, e)
	}

	if destroy {
		pv.puts = make(map[uint32]*putEntry)
		pv.rpcs = make(map[uint32]*rpcEntry)
		pv.monitors = make(map[uint32]*monitorEntry)
		pv.channels = make(map[uint32]*channelEntry)
		pv.notifiedConn = false
	}
	pv.mu.Unlock()

	for _, e := range puts {
		e.sub.Disconnect()
	}
	for _, e := range monitors {
		e.sub.Unlisten()
	}
	state := ChannelDisconnected
	if destroy {
		state = ChannelDestroyed
	}
	for _, e := range channels {
		e.sub.StateChange(state)
	}
	return nil
}

// Post copies the fields marked in changed from value into the cache,
// ORs changed into the PV's valid set, and enqueues a monitor update for
// every monitor subscriber.
func (pv *SharedPV) Post(value *pvdata.PVStructure, changed *pvdata.BitSet) error {
	pv.mu.Lock()
	if !pv.isOpen {
		pv.mu.Unlock()
		return pva.ErrNotOpen
	}
	if changed.IsEmpty() && pv.cfg.DropEmptyUpdates {
		pv.mu.Unlock()
		return nil
	}
	pv.cache.ApplyBitSet(value, changed)
	pv.valid.Or(changed)

	update := pv.cache.Clone()
	update.Changed = changed.Clone()

	type delivery struct {
		sub MonitorSubscriber
	}
	var deliveries []delivery
	for _, e := range pv.monitors {
		if e.queue == nil {
			continue
		}
		if e.queue.Full() && !pv.cfg.DropOnFull {
			continue
		}
		e.queue.Push(update)
		deliveries = append(deliveries, delivery{sub: e.sub})
	}
	pv.mu.Unlock()

	for _, d := range deliveries {
		d.sub.Notify()
	}
	return nil
}

// Fetch returns a snapshot copy of the cached value and valid-bitset, or
// nil if the PV is not open.
func (pv *SharedPV) Fetch() (*pvdata.PVStructure, *pvdata.BitSet) {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if !pv.isOpen {
		return nil, nil
	}
	return pv.cache.Clone(), pv.valid.Clone()
}

// Build allocates a new, empty-valued structure of the PV's current type.
func (pv *SharedPV) Build() *pvdata.PVStructure {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	if pv.structType == nil {
		return nil
	}
	return pvdata.NewPVStructure(pv.structType)
}

// Put runs the handler's OnPut entry point for a single put request.
func (pv *SharedPV) Put(value *pvdata.PVStructure, changed *pvdata.BitSet, done func(pva.Status)) {
	pv.handler.OnPut(pv, &PutOperation{pv: pv, value: value, changed: changed, done: done})
}

// RPC runs the handler's OnRPC entry point for a single RPC request.
func (pv *SharedPV) RPC(args *pvdata.PVStructure, done func(pva.Status, *pvdata.PVStructure)) {
	pv.handler.OnRPC(pv, &RPCOperation{pv: pv, args: args, done: done})
}
