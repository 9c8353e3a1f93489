package wampvalue_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/wamperr"
	"github.com/wampcore/wampgo/pkg/wampvalue"
	cborcodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/cbor"
	jsoncodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/json"
	msgpackcodec "github.com/wampcore/wampgo/pkg/wampvalue/codec/msgpack"
)

func sampleValue() wampvalue.Value {
	inner := &wampvalue.Object{}
	inner.Set("o", wampvalue.Int(321))
	return wampvalue.NewArray([]wampvalue.Value{
		wampvalue.Null(),
		wampvalue.Bool(false),
		wampvalue.Bool(true),
		wampvalue.Int(42),
		wampvalue.Int(-42),
		wampvalue.Float(3.14),
		wampvalue.String("hi"),
		wampvalue.Bytes([]byte{0x42}),
		wampvalue.NewArray([]wampvalue.Value{wampvalue.String("a"), wampvalue.Int(123)}),
		wampvalue.NewObject(inner),
	})
}

func TestJSONRoundTrip(t *testing.T) {
	original := sampleValue()
	data, err := jsoncodec.Encode(original, jsoncodec.DefaultOptions())
	require.NoError(t, err)
	decoded, err := jsoncodec.Decode(data, jsoncodec.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, original.Equal(decoded), "decoded value differs: %s vs %s", original, decoded)
}

func TestAllCodecsRoundTrip(t *testing.T) {
	original := sampleValue()

	type codec struct {
		name   string
		encode func(wampvalue.Value) ([]byte, error)
		decode func([]byte) (wampvalue.Value, error)
	}
	codecs := []codec{
		{
			name:   "json",
			encode: func(v wampvalue.Value) ([]byte, error) { return jsoncodec.Encode(v, jsoncodec.DefaultOptions()) },
			decode: func(d []byte) (wampvalue.Value, error) { return jsoncodec.Decode(d, jsoncodec.DefaultOptions()) },
		},
		{
			name:   "msgpack",
			encode: func(v wampvalue.Value) ([]byte, error) { return msgpackcodec.Encode(v, msgpackcodec.DefaultOptions()) },
			decode: func(d []byte) (wampvalue.Value, error) { return msgpackcodec.Decode(d, msgpackcodec.DefaultOptions()) },
		},
		{
			name:   "cbor",
			encode: func(v wampvalue.Value) ([]byte, error) { return cborcodec.Encode(v, cborcodec.DefaultOptions()) },
			decode: func(d []byte) (wampvalue.Value, error) { return cborcodec.Decode(d, cborcodec.DefaultOptions()) },
		},
	}

	for _, c := range codecs {
		t.Run(c.name, func(t *testing.T) {
			data, err := c.encode(original)
			require.NoError(t, err)
			decoded, err := c.decode(data)
			require.NoError(t, err)
			assert.True(t, original.Equal(decoded), "round trip mismatch for %s", c.name)
		})
	}
}

func TestIntegerBoundariesRoundTrip(t *testing.T) {
	values := []wampvalue.Value{
		wampvalue.Int(math.MinInt64),
		wampvalue.Int(math.MaxInt64),
		wampvalue.Uint(math.MaxUint64),
		wampvalue.Int(0),
		wampvalue.Uint(0),
	}
	for _, v := range values {
		data, err := jsoncodec.Encode(v, jsoncodec.DefaultOptions())
		require.NoError(t, err)
		decoded, err := jsoncodec.Decode(data, jsoncodec.DefaultOptions())
		require.NoError(t, err)
		assert.True(t, v.Equal(decoded), "boundary value %s did not survive", v)
	}
}

func TestNumericCrossTypeEquality(t *testing.T) {
	assert.True(t, wampvalue.Int(0).Equal(wampvalue.Uint(0)))
	assert.True(t, wampvalue.Int(0).Equal(wampvalue.Float(0.0)))
	assert.True(t, wampvalue.Uint(7).Equal(wampvalue.Int(7)))
	assert.False(t, wampvalue.Int(1).Equal(wampvalue.Uint(2)))
	assert.False(t, wampvalue.Int(0).Equal(wampvalue.Bool(false)))
}

func TestTotalOrdering(t *testing.T) {
	// null < bool < number < string < bytes < array < object
	ordered := []wampvalue.Value{
		wampvalue.Null(),
		wampvalue.Bool(false),
		wampvalue.Int(5),
		wampvalue.String("x"),
		wampvalue.Bytes([]byte{1}),
		wampvalue.NewArray([]wampvalue.Value{wampvalue.Int(1)}),
		wampvalue.NewObject(&wampvalue.Object{}),
	}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Negative(t, ordered[i].Compare(ordered[i+1]),
			"%s should sort before %s", ordered[i], ordered[i+1])
	}
}

func TestBytesBase64Boundaries(t *testing.T) {
	cases := [][]byte{nil, {0x01}, {0x01, 0x02}, {0x01, 0x02, 0x03}}
	for _, raw := range cases {
		v := wampvalue.Bytes(raw)
		data, err := jsoncodec.Encode(v, jsoncodec.DefaultOptions())
		require.NoError(t, err)
		decoded, err := jsoncodec.Decode(data, jsoncodec.DefaultOptions())
		require.NoError(t, err)
		assert.True(t, v.Equal(decoded), "bytes of length %d did not survive", len(raw))
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		code  wamperr.Code
	}{
		{"empty input", "", wamperr.CodeEmptyInput},
		{"truncated array", "[1,2", wamperr.CodeUnexpectedEOF},
		{"non-string key", "{1:2}", wamperr.CodeExpectedStringKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jsoncodec.Decode([]byte(tc.input), jsoncodec.DefaultOptions())
			require.Error(t, err)
			assert.True(t, wamperr.Is(err, tc.code), "want code %d, got %v", tc.code, err)
		})
	}
}

func TestDecoderReusableAfterError(t *testing.T) {
	opts := jsoncodec.DefaultOptions()
	_, err := jsoncodec.Decode([]byte("{bad"), opts)
	require.Error(t, err)
	v, err := jsoncodec.Decode([]byte(`{"k":1}`), opts)
	require.NoError(t, err)
	obj, ok := v.AsObject()
	require.True(t, ok)
	got, ok := obj.Get("k")
	require.True(t, ok)
	assert.True(t, got.Equal(wampvalue.Int(1)))
}

func TestMaxNestingDepth(t *testing.T) {
	opts := jsoncodec.DefaultOptions()
	opts.MaxNestingDepth = 3
	deep := "[[[[1]]]]"
	_, err := jsoncodec.Decode([]byte(deep), opts)
	require.Error(t, err)
	assert.True(t, wamperr.Is(err, wamperr.CodeMaxNestingDepthExceeded))
}
