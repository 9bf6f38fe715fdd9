package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-pvaccess/pva/pkg/codec"
)

func TestSnapshotRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf, 4096, true)
	require.NoError(t, w.StartMessage(0))
	fields := map[string]string{"value": "42.5", "name": "gauge"}
	require.NoError(t, writeSnapshot(w, fields))
	require.NoError(t, w.EndMessage(false))
	require.NoError(t, w.Flush(true))

	r := codec.NewReader(&buf, 4096)
	_, err := r.Next()
	require.NoError(t, err)
	got, err := readSnapshot(r)
	require.NoError(t, err)
	require.Equal(t, fields, got)
}

func TestParseAssignments(t *testing.T) {
	got := parseAssignments([]string{"value=1.5", "name=gauge=x"})
	require.Equal(t, map[string]string{"value": "1.5", "name": "gauge=x"}, got)
}

func TestFormatFields(t *testing.T) {
	s := formatFields(map[string]string{"a": "1"})
	require.Equal(t, "a=1", s)
}
