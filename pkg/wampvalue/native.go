package wampvalue

import "github.com/wampcore/wampgo/pkg/wamperr"

// ToNative flattens a Value tree into a Go-native `any` tree using the
// concrete types a generic MsgPack/CBOR encoder recognizes natively:
// nil, bool, int64, uint64, float64, string, []byte, []any,
// map[string]any. It is shared by the MsgPack and CBOR codecs, which
// otherwise differ only in which third-party Marshal/Unmarshal they
// call.
func ToNative(v Value) any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.bs
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = ToNative(e)
		}
		return out
	case KindObject:
		out := make(map[string]any, v.obj.Len())
		v.obj.Range(func(k string, val Value) bool {
			out[k] = ToNative(val)
			return true
		})
		return out
	default:
		return nil
	}
}

// FromNative rebuilds a Value tree from the `any` tree a MsgPack/CBOR
// decoder produced. Integers that arrive as Go's native `int` (some
// decoders use machine int rather than int64/uint64) are normalized to
// Int; non-negative values from either library are accepted as either
// int64 or uint64 on the wire and both map to the signed/unsigned
// Kind the decoder chose, since positive-integer Int/Uint cross-kind
// equality is guaranteed by Value.Equal.
func FromNative(in any, depth, maxDepth int) (Value, error) {
	if maxDepth > 0 && depth > maxDepth {
		return Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeMaxNestingDepthExceeded, "max nesting depth exceeded")
	}
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromNative(e, depth+1, maxDepth)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewArray(items), nil
	case map[string]any:
		obj := &Object{}
		for k, e := range t {
			v, err := FromNative(e, depth+1, maxDepth)
			if err != nil {
				return Value{}, err
			}
			obj.Set(k, v)
		}
		return NewObject(obj), nil
	case map[any]any:
		obj := &Object{}
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeExpectedStringKey, "non-string object key")
			}
			v, err := FromNative(e, depth+1, maxDepth)
			if err != nil {
				return Value{}, err
			}
			obj.Set(ks, v)
		}
		return NewObject(obj), nil
	default:
		return Value{}, wamperr.New(wamperr.CategoryDecoding, wamperr.CodeDecodeFailed, "unrecognized decoded native type")
	}
}
