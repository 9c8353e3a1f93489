package wampvalue

import "fmt"

// ConversionError is returned by conversion helpers when a required
// object key is missing on decode. Unknown keys are ignored.
type ConversionError struct {
	Field string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conversion: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("conversion: missing field %q", e.Field)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// FieldVisitor lets a type describe its fields for object-like
// (keyword-argument) conversion. Implementations call Field once per
// member; the visitor decides whether it is reading into dst or
// writing from *dst depending on direction.
type FieldVisitor interface {
	// Field visits a single named field. dst must be a pointer whose
	// pointee is convertible via ToValue/FromValue (or a nested
	// Convertible). required controls whether a missing key on decode
	// is a ConversionError.
	Field(name string, dst any, required bool) error
}

// IndexVisitor is the array-like analogue of FieldVisitor, used for
// positional (Array) conversion such as WAMP's fixed-arity message
// shapes.
type IndexVisitor interface {
	Index(i int, dst any, required bool) error
}

// Convertible is the intrusive member form: a type converts itself
// to/from a Value.
type Convertible interface {
	ToValue() (Value, error)
	FromValue(Value) error
}

// FreeConverter is the free-function form: external ToValue/FromValue
// functions registered for a type that cannot implement Convertible
// itself (e.g. a type from another package).
type FreeConverter[T any] struct {
	To   func(T) (Value, error)
	From func(Value, *T) error
}

// SplitConverter is the split read/write form: distinct visitor
// callbacks for encode and decode, useful when the two directions
// have asymmetric validation needs.
type SplitConverter struct {
	Write func(v FieldVisitor) error
	Read  func(v FieldVisitor) error
}

// objectFieldVisitor implements FieldVisitor for decoding an Object
// into Go fields via ToVariant/FromVariant.
type objectFieldVisitor struct {
	obj     *Object
	out     *Object
	decode  bool
	missing []string
}

func (v *objectFieldVisitor) Field(name string, dst any, required bool) error {
	if v.decode {
		val, ok := v.obj.Get(name)
		if !ok {
			if required {
				return &ConversionError{Field: name}
			}
			return nil
		}
		return assignInto(val, dst)
	}
	val, err := ToVariant(derefFor(dst))
	if err != nil {
		return err
	}
	v.out.Set(name, val)
	return nil
}

// ToVariant converts a Go value into a Value. Supported inputs: Value
// itself, Convertible, nil, basic kinds (bool, integers, floats,
// string, []byte), []Value and []any (-> array), and map[string]any /
// *Object (-> object). Any other type, including plain structs and
// other slice types, is an error.
func ToVariant(in any) (Value, error) {
	switch t := in.(type) {
	case Value:
		return t, nil
	case Convertible:
		return t.ToValue()
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
	case *Object:
		return NewObject(t), nil
	case []Value:
		return NewArray(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := ToVariant(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewArray(items), nil
	case map[string]any:
		obj := &Object{}
		for k, e := range t {
			v, err := ToVariant(e)
			if err != nil {
				return Value{}, err
			}
			obj.Set(k, v)
		}
		return NewObject(obj), nil
	default:
		return Value{}, fmt.Errorf("wampvalue: cannot convert %T to Value", in)
	}
}

// FromVariant converts a Value into *dst. dst must be a pointer.
func FromVariant(v Value, dst any) error {
	return assignInto(v, dst)
}

func assignInto(v Value, dst any) error {
	switch d := dst.(type) {
	case *Value:
		*d = v
		return nil
	case Convertible:
		return d.FromValue(v)
	case *bool:
		b, ok := v.AsBool()
		if !ok {
			return fmt.Errorf("wampvalue: expected bool, got %s", v.Kind())
		}
		*d = b
		return nil
	case *int64:
		return assignInt(v, d)
	case *int:
		var i64 int64
		if err := assignInt(v, &i64); err != nil {
			return err
		}
		*d = int(i64)
		return nil
	case *uint64:
		return assignUint(v, d)
	case *uint:
		var u64 uint64
		if err := assignUint(v, &u64); err != nil {
			return err
		}
		*d = uint(u64)
		return nil
	case *float64:
		f, ok := v.NumberAsFloat()
		if !ok {
			return fmt.Errorf("wampvalue: expected number, got %s", v.Kind())
		}
		*d = f
		return nil
	case *string:
		s, ok := v.AsString()
		if !ok {
			return fmt.Errorf("wampvalue: expected string, got %s", v.Kind())
		}
		*d = s
		return nil
	case *[]byte:
		b, ok := v.AsBytes()
		if !ok {
			return fmt.Errorf("wampvalue: expected bytes, got %s", v.Kind())
		}
		*d = b
		return nil
	case *[]Value:
		arr, ok := v.AsArray()
		if !ok {
			return fmt.Errorf("wampvalue: expected array, got %s", v.Kind())
		}
		*d = arr
		return nil
	case **Object:
		obj, ok := v.AsObject()
		if !ok {
			return fmt.Errorf("wampvalue: expected object, got %s", v.Kind())
		}
		*d = obj
		return nil
	default:
		return fmt.Errorf("wampvalue: unsupported destination type %T", dst)
	}
}

func assignInt(v Value, out *int64) error {
	switch v.Kind() {
	case KindInt:
		i, _ := v.AsInt()
		*out = i
		return nil
	case KindUint:
		u, _ := v.AsUint()
		*out = int64(u)
		return nil
	default:
		return fmt.Errorf("wampvalue: expected integer, got %s", v.Kind())
	}
}

func assignUint(v Value, out *uint64) error {
	switch v.Kind() {
	case KindUint:
		u, _ := v.AsUint()
		*out = u
		return nil
	case KindInt:
		i, _ := v.AsInt()
		if i < 0 {
			return fmt.Errorf("wampvalue: negative int cannot convert to uint")
		}
		*out = uint64(i)
		return nil
	default:
		return fmt.Errorf("wampvalue: expected integer, got %s", v.Kind())
	}
}

func derefFor(dst any) any {
	switch d := dst.(type) {
	case *Value:
		return *d
	case *bool:
		return *d
	case *int:
		return *d
	case *int64:
		return *d
	case *uint:
		return *d
	case *uint64:
		return *d
	case *float64:
		return *d
	case *string:
		return *d
	case *[]byte:
		return *d
	case *[]Value:
		return *d
	case **Object:
		return *d
	default:
		return dst
	}
}

// ConvertViaFields runs fn (typically a type's own field-visitor
// method) against obj in decode mode, collecting required-field
// errors from the first missing key. Unknown keys already present in
// obj are simply never visited, satisfying the "unknown keys ignored"
// rule.
func ConvertViaFields(obj *Object, fn func(FieldVisitor) error) error {
	return fn(&objectFieldVisitor{obj: obj, decode: true})
}

// EncodeViaFields runs fn in encode mode, building a fresh Object.
func EncodeViaFields(fn func(FieldVisitor) error) (*Object, error) {
	out := &Object{}
	v := &objectFieldVisitor{out: out, decode: false}
	if err := fn(v); err != nil {
		return nil, err
	}
	return out, nil
}

// indexVisitor implements IndexVisitor over a []Value for positional
// (array-like) conversion, e.g. WAMP message element access.
type indexVisitor struct {
	arr    []Value
	out    *[]Value
	decode bool
}

func (v *indexVisitor) Index(i int, dst any, required bool) error {
	if v.decode {
		if i >= len(v.arr) {
			if required {
				return &ConversionError{Field: fmt.Sprintf("[%d]", i)}
			}
			return nil
		}
		return assignInto(v.arr[i], dst)
	}
	val, err := ToVariant(derefFor(dst))
	if err != nil {
		return err
	}
	for len(*v.out) <= i {
		*v.out = append(*v.out, Null())
	}
	(*v.out)[i] = val
	return nil
}

// ConvertViaIndex is the positional analogue of ConvertViaFields.
func ConvertViaIndex(arr []Value, fn func(IndexVisitor) error) error {
	return fn(&indexVisitor{arr: arr, decode: true})
}

// EncodeViaIndex is the positional analogue of EncodeViaFields.
func EncodeViaIndex(fn func(IndexVisitor) error) ([]Value, error) {
	var out []Value
	v := &indexVisitor{out: &out, decode: false}
	if err := fn(v); err != nil {
		return nil, err
	}
	return out, nil
}
