// Package provider implements the process-wide channel provider registry
// and the CREATE_CHANNEL / DESTROY_CHANNEL glue between a stream transport
// and the shared-state broker. It is grounded on bus_manager.go's
// name-keyed subscriber registry, generalized from CAN listener names to
// provider names and then to PV names within one provider.
package provider

import (
	"sync"

	"github.com/go-pvaccess/pva/pkg/sharedpv"
)

// ChannelProvider answers channel-name lookups with a shared PV. A given
// process may register more than one (a channel-access-compatible bridge
// adapter is one example this module doesn't implement; StaticProvider
// below is the in-scope, in-memory one).
type ChannelProvider interface {
	Name() string
	CreateChannel(name string) (*sharedpv.SharedPV, bool)
	// ChannelNames lists every name this provider currently answers for,
	// used to build SEARCH_RESPONSE / beacon channel lists.
	ChannelNames() []string
}

// StaticProvider serves a fixed, explicitly populated name -> SharedPV
// table. This is the common case: a server process that owns a small,
// known set of PVs.
type StaticProvider struct {
	name string

	mu  sync.Mutex
	pvs map[string]*sharedpv.SharedPV
}

// NewStaticProvider returns an empty provider identified by name.
func NewStaticProvider(name string) *StaticProvider {
	return &StaticProvider{name: name, pvs: make(map[string]*sharedpv.SharedPV)}
}

func (p *StaticProvider) Name() string { return p.name }

// Add registers pv under name, replacing any previous occupant.
func (p *StaticProvider) Add(name string, pv *sharedpv.SharedPV) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pvs[name] = pv
}

// Remove unregisters name; channels already created against it are
// unaffected (they hold their own *SharedPV reference).
func (p *StaticProvider) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pvs, name)
}

func (p *StaticProvider) CreateChannel(name string) (*sharedpv.SharedPV, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pv, ok := p.pvs[name]
	return pv, ok
}

func (p *StaticProvider) ChannelNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.pvs))
	for name := range p.pvs {
		names = append(names, name)
	}
	return names
}

// Registry is the process-wide provider table: providers are registered
// during startup and unregistered only at process shutdown. The zero
// value is ready to use; most processes want exactly one, constructed
// once at startup.
type Registry struct {
	mu        sync.RWMutex
	providers []ChannelProvider
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds p to the search order; first-registered is searched first.
func (r *Registry) Register(p ChannelProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Unregister removes p. Intended for process shutdown only.
func (r *Registry) Unregister(p ChannelProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.providers {
		if existing == p {
			r.providers = append(r.providers[:i], r.providers[i+1:]...)
			return
		}
	}
}

// Find returns the first registered provider that answers for name.
func (r *Registry) Find(name string) (*sharedpv.SharedPV, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if pv, ok := p.CreateChannel(name); ok {
			return pv, true
		}
	}
	return nil, false
}

// AllChannelNames concatenates every registered provider's channel list,
// for beacon/search response construction.
func (r *Registry) AllChannelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, p := range r.providers {
		names = append(names, p.ChannelNames()...)
	}
	return names
}
