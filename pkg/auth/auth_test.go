package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousAlwaysRegistered(t *testing.T) {
	p, ok := Lookup("anonymous")
	require.True(t, ok)
	assert.Equal(t, "anonymous", p.Name())
}

func TestChoosePicksLastRecognizedOffer(t *testing.T) {
	Register(fakePlugin{"ca"})
	defer func() { mu.Lock(); delete(plugins, "ca"); mu.Unlock() }()

	assert.Equal(t, "ca", Choose([]string{"anonymous", "ca"}))
	assert.Equal(t, "anonymous", Choose([]string{"anonymous", "unknown-plugin"}))
	assert.Equal(t, "anonymous", Choose(nil))
}

func TestAnonymousSessionCompletesImmediately(t *testing.T) {
	p, _ := Lookup("anonymous")
	sess := p.NewSession(nil, true)
	toSend, done, status := sess.Step(nil)
	assert.Nil(t, toSend)
	assert.True(t, done)
	assert.True(t, status.IsOK())
}

type fakePlugin struct{ name string }

func (f fakePlugin) Name() string { return f.name }
func (f fakePlugin) NewSession(_ []byte, _ bool) Session { return &anonymousSession{} }
