package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pva "github.com/go-pvaccess/pva"
)

func TestRoundTripSimpleMessage(t *testing.T) {
	var wire bytes.Buffer
	w := NewWriter(&wire, 64, true)

	require.NoError(t, w.StartMessage(pva.CmdEcho))
	require.NoError(t, w.PutUint32(0xDEADBEEF))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := NewReader(&wire, 64)
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdEcho, h.Command)
	assert.True(t, h.fromServer())
	assert.EqualValues(t, 4, h.PayloadSize)

	v, err := r.GetUint32()
	require.NoError(t, err)
	assert.EqualValues(t, 0xDEADBEEF, v)
	require.NoError(t, r.Finish())
}

func TestSegmentedMessageSplicesAcrossHeader(t *testing.T) {
	var wire bytes.Buffer
	// A tiny send buffer forces EnsureBuffer to segment the payload across
	// multiple framed wire messages.
	w := NewWriter(&wire, 16, false)

	require.NoError(t, w.StartMessage(pva.CmdArray))
	payload := []byte("0123456789ABCDEFGHIJ") // 20 bytes
	for i := 0; i < len(payload); i += 4 {
		require.NoError(t, w.PutBytes(payload[i:i+4]))
	}
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := NewReader(&wire, 64)
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdArray, h.Command)

	got, err := r.GetBytes(len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	require.NoError(t, r.Finish())
}

func TestSetEndianessAffectsOnlyThatPeersMessages(t *testing.T) {
	var wire bytes.Buffer
	w := NewWriter(&wire, 64, true)

	require.NoError(t, w.SendSetEndianess(true))
	require.NoError(t, w.StartMessage(pva.CmdEcho))
	require.NoError(t, w.PutUint16(0x0102))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := NewReader(&wire, 64)
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdEcho, h.Command)

	v, err := r.GetUint16()
	require.NoError(t, err)
	assert.EqualValues(t, 0x0102, v)
}

func TestNonFirstZeroPayloadInNormalStateIsTolerated(t *testing.T) {
	var wire bytes.Buffer
	// Hand-craft a stray non-first, zero-payload segment ahead of a real
	// message; Next must skip it silently (spec.md section 3).
	stray := []byte{pva.Magic, pva.DefaultProtocolVersion, pva.FlagNotFirst, pva.CmdEcho, 0, 0, 0, 0}
	wire.Write(stray)

	w := NewWriter(&wire, 64, false)
	require.NoError(t, w.StartMessage(pva.CmdBeacon))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := NewReader(&wire, 64)
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdBeacon, h.Command)
	assert.EqualValues(t, 0, h.PayloadSize)
}

func TestNonFirstWithPayloadInNormalStateIsProtocolViolation(t *testing.T) {
	var wire bytes.Buffer
	stray := []byte{pva.Magic, pva.DefaultProtocolVersion, pva.FlagNotFirst, pva.CmdEcho, 4, 0, 0, 0}
	wire.Write(stray)
	wire.Write([]byte{1, 2, 3, 4})

	r := NewReader(&wire, 64)
	_, err := r.Next()
	assert.ErrorIs(t, err, pva.ErrProtocolViolation)
}

func TestHandlerUnderReadIsCorrectedByFinish(t *testing.T) {
	var wire bytes.Buffer
	w := NewWriter(&wire, 64, false)
	require.NoError(t, w.StartMessage(pva.CmdDestroyChannel))
	require.NoError(t, w.PutUint32(1))
	require.NoError(t, w.PutUint32(2))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))
	// A trailing message must be reachable even if the first handler
	// reads fewer bytes than the declared payload.
	require.NoError(t, w.StartMessage(pva.CmdEcho))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := NewReader(&wire, 64)
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdDestroyChannel, h.Command)
	_, err = r.GetUint32() // only consume the first of two fields
	require.NoError(t, err)
	require.NoError(t, r.Finish())

	h2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, pva.CmdEcho, h2.Command)
}
