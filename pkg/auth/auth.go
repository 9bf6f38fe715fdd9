// Package auth implements the pluggable side of the CONNECTION_VALIDATION /
// AUTHNZ handshake (spec.md section 4.C, section 6). The handshake envelope
// (plugin name exchange, init data, zero-or-more AUTHNZ round trips) is in
// scope; plugin internals are not (spec.md section 1 Non-goals: "defining
// authentication plugin contents"). Only the anonymous plugin is built in;
// real deployments register their own via Register.
package auth

import (
	"sync"

	pva "github.com/go-pvaccess/pva"
)

// Session drives one connection's authentication exchange. Step is called
// with each AUTHNZ payload received from the peer (nil for the very first
// call, which supplies the init data instead); it returns the next payload
// to send (nil for "nothing to send this round") and, once authentication
// concludes, done=true with a final status.
type Session interface {
	Step(received []byte) (toSend []byte, done bool, status pva.Status)
}

// Plugin constructs a Session for one side of one connection. initData is
// the requesting side's opaque init payload (empty for the anonymous
// plugin). isServer tells the plugin which role it is playing.
type Plugin interface {
	Name() string
	NewSession(initData []byte, isServer bool) Session
}

var (
	mu      sync.Mutex
	plugins = map[string]Plugin{}
	order   []string
)

func init() {
	Register(anonymousPlugin{})
}

// Register adds or replaces a plugin by name. Safe to call concurrently;
// typically called once from an init() in a plugin's own package. A plugin
// registered for the first time is appended to the preference order; a
// re-registration under an existing name keeps its original position.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := plugins[p.Name()]; !exists {
		order = append(order, p.Name())
	}
	plugins[p.Name()] = p
}

// Lookup returns the registered plugin with the given name, if any.
func Lookup(name string) (Plugin, bool) {
	mu.Lock()
	defer mu.Unlock()
	p, ok := plugins[name]
	return p, ok
}

// Names returns every registered plugin name in registration order
// (anonymous first, since it registers from this package's own init).
// Servers offer these in the CONNECTION_VALIDATION payload, least-preferred
// first, so a plugin registered later is preferred over one registered
// earlier.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, len(order))
	copy(names, order)
	return names
}

// Choose picks an auth plugin from a server-offered list per spec.md
// section 4.C: offered order is preference, last entry most preferred; a
// client that recognizes none of them falls back to "anonymous".
func Choose(offered []string) string {
	for i := len(offered) - 1; i >= 0; i-- {
		if _, ok := Lookup(offered[i]); ok {
			return offered[i]
		}
	}
	return "anonymous"
}

type anonymousPlugin struct{}

func (anonymousPlugin) Name() string { return "anonymous" }

func (anonymousPlugin) NewSession(_ []byte, _ bool) Session {
	return &anonymousSession{}
}

// anonymousSession completes immediately and unconditionally on its first
// Step call; it never sends an AUTHNZ message of its own.
type anonymousSession struct{ stepped bool }

func (s *anonymousSession) Step(_ []byte) ([]byte, bool, pva.Status) {
	s.stepped = true
	return nil, true, pva.Status{Type: pva.StatusOK}
}
