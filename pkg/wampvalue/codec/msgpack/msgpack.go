// Package msgpack implements the MsgPack wire codec for wampvalue.Value,
// delegating to github.com/vmihailenco/msgpack/v5 for the actual byte
// encoding and using wampvalue.ToNative/FromNative to bridge to/from the
// Value tree, the same split the CBOR codec uses.
package msgpack

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// Options configures the codec. Unlike the CBOR Options it has no
// PackStrings field: MsgPack has no analogue of that option.
type Options struct {
	MaxNestingDepth int
}

// DefaultOptions returns the codec's zero-config behavior.
func DefaultOptions() Options { return Options{MaxNestingDepth: 64} }

// Encode serializes v as MsgPack into a new byte slice.
func Encode(v wampvalue.Value, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(wampvalue.ToNative(v)); err != nil {
		return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "msgpack encode: "+err.Error())
	}
	return buf.Bytes(), nil
}

// Decode parses one MsgPack value from the start of data. Bytes after
// that value are not examined.
func Decode(data []byte, opts Options) (wampvalue.Value, error) {
	if len(data) == 0 {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeEmptyInput, "empty input")
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var native any
	if err := dec.Decode(&native); err != nil {
		if err.Error() == "EOF" {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeUnexpectedEOF, "unexpected end of input")
		}
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "msgpack decode: "+err.Error())
	}
	return wampvalue.FromNative(native, 0, opts.MaxNestingDepth)
}
