// Package cbor implements the CBOR wire codec for wampvalue.Value,
// delegating to github.com/fxamacker/cbor/v2 for byte encoding and
// wampvalue.ToNative/FromNative for the Value-tree bridge.
package cbor

import (
	"errors"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/wampcore/wampgo/pkg/wampvalue"
	"github.com/wampcore/wampgo/pkg/wamperr"
)

// Options configures the codec.
type Options struct {
	MaxNestingDepth int
	// PackStrings routes text strings through CBOR's byte-string major
	// type instead, a cheap size win when payloads are mostly ASCII and
	// the counterparty doesn't need UTF-8 validation on decode.
	PackStrings bool
}

// DefaultOptions returns the codec's zero-config behavior.
func DefaultOptions() Options { return Options{MaxNestingDepth: 64} }

func encMode(opts Options) (cbor.EncMode, error) {
	em := cbor.EncOptions{Sort: cbor.SortNone}
	if opts.PackStrings {
		em.String = cbor.StringToByteString
	}
	return em.EncMode()
}

func decMode(opts Options) (cbor.DecMode, error) {
	depth := opts.MaxNestingDepth
	if depth <= 0 {
		depth = 64
	}
	dm := cbor.DecOptions{MaxNestedLevels: depth}
	return dm.DecMode()
}

// Encode serializes v as CBOR into a new byte slice.
func Encode(v wampvalue.Value, opts Options) ([]byte, error) {
	em, err := encMode(opts)
	if err != nil {
		return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "cbor encode options: "+err.Error())
	}
	data, err := em.Marshal(wampvalue.ToNative(v))
	if err != nil {
		return nil, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "cbor encode: "+err.Error())
	}
	return data, nil
}

// Decode parses exactly one CBOR value from data.
func Decode(data []byte, opts Options) (wampvalue.Value, error) {
	if len(data) == 0 {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeEmptyInput, "empty input")
	}
	dm, err := decMode(opts)
	if err != nil {
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "cbor decode options: "+err.Error())
	}
	var native any
	if err := dm.Unmarshal(data, &native); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeUnexpectedEOF, "unexpected end of input")
		}
		return wampvalue.Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "cbor decode: "+err.Error())
	}
	return wampvalue.FromNative(native, 0, opts.MaxNestingDepth)
}
