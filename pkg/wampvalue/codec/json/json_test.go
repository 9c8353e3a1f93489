package json_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/wampvalue"
	jsoncodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/json"
)

func roundTrip(t *testing.T, v wampvalue.Value) wampvalue.Value {
	t.Helper()
	data, err := jsoncodec.Encode(v, jsoncodec.DefaultOptions())
	require.NoError(t, err)
	decoded, err := jsoncodec.Decode(data, jsoncodec.DefaultOptions())
	require.NoError(t, err)
	return decoded
}

func TestBytesSentinelWireForm(t *testing.T) {
	data, err := jsoncodec.Encode(wampvalue.Bytes([]byte{0x00}), jsoncodec.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "\"\\u0000AA==\"", string(data))

	decoded, err := jsoncodec.Decode(data, jsoncodec.DefaultOptions())
	require.NoError(t, err)
	b, ok := decoded.AsBytes()
	require.True(t, ok)
	assert.Equal(t, []byte{0x00}, b)
}

func TestLeadingSpaceStringStaysString(t *testing.T) {
	original := wampvalue.String(" leading space")
	decoded := roundTrip(t, original)
	s, ok := decoded.AsString()
	require.True(t, ok, "leading-space string decoded as %s", decoded.Kind())
	assert.Equal(t, " leading space", s)
}

func TestLeadingNULBytesRoundTrip(t *testing.T) {
	original := wampvalue.Bytes([]byte{0x00, 0x01, 0x02})
	decoded := roundTrip(t, original)
	assert.True(t, original.Equal(decoded))
}

func TestSentinelOnlyStringDecodesAsEmptyBytes(t *testing.T) {
	// A bare sentinel is base64("") on the wire: empty bytes.
	decoded, err := jsoncodec.Decode([]byte("\"\\u0000\""), jsoncodec.DefaultOptions())
	require.NoError(t, err)
	b, ok := decoded.AsBytes()
	require.True(t, ok)
	assert.Empty(t, b)
}
