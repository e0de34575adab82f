package gossip

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressPayloadSkippedBelowThreshold(t *testing.T) {
	small := []byte(`{"a":1}`)
	e := compressPayload(small, true, 1024)
	assert.False(t, e.Compressed)
	assert.Equal(t, small, e.Payload)
}

func TestCompressPayloadSkippedWhenDisabled(t *testing.T) {
	big := []byte(strings.Repeat("x", 2048))
	e := compressPayload(big, false, 1024)
	assert.False(t, e.Compressed)
	assert.Equal(t, big, e.Payload)
}

func TestCompressPayloadRoundTrip(t *testing.T) {
	big := []byte(strings.Repeat(`{"node_id":"a","status":"alive"}`, 200))
	e := compressPayload(big, true, 1024)
	require.True(t, e.Compressed)
	assert.Less(t, len(e.Payload), len(big))

	out, err := decompressPayload(e)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(big, out))
}

func TestDecompressPayloadUncompressedPassthrough(t *testing.T) {
	raw := []byte(`{"hello":"world"}`)
	out, err := decompressPayload(envelope{Compressed: false, Payload: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}
