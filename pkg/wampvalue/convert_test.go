package wampvalue_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wampcore/wampgo/pkg/wampvalue"
)

type order struct {
	ID    uint64
	Item  string
	Count int
	Note  string
}

func (o *order) visit(v wampvalue.FieldVisitor) error {
	if err := v.Field("id", &o.ID, true); err != nil {
		return err
	}
	if err := v.Field("item", &o.Item, true); err != nil {
		return err
	}
	if err := v.Field("count", &o.Count, true); err != nil {
		return err
	}
	return v.Field("note", &o.Note, false)
}

// ToValue/FromValue make order usable through the intrusive
// Convertible form as well.
func (o *order) ToValue() (wampvalue.Value, error) {
	obj, err := wampvalue.EncodeViaFields(o.visit)
	if err != nil {
		return wampvalue.Value{}, err
	}
	return wampvalue.NewObject(obj), nil
}

func (o *order) FromValue(v wampvalue.Value) error {
	obj, ok := v.AsObject()
	if !ok {
		return errors.New("expected object")
	}
	return wampvalue.ConvertViaFields(obj, o.visit)
}

func TestFieldConversionRoundTrip(t *testing.T) {
	in := &order{ID: 9, Item: "widget", Count: 3, Note: "rush"}
	v, err := in.ToValue()
	require.NoError(t, err)

	var out order
	require.NoError(t, out.FromValue(v))
	assert.Equal(t, *in, out)
}

func TestMissingRequiredFieldErrors(t *testing.T) {
	obj := &wampvalue.Object{}
	obj.Set("id", wampvalue.Uint(1))
	// "item" and "count" are absent.
	var out order
	err := out.FromValue(wampvalue.NewObject(obj))
	require.Error(t, err)
	var convErr *wampvalue.ConversionError
	require.ErrorAs(t, err, &convErr)
	assert.Equal(t, "item", convErr.Field)
}

func TestUnknownKeysIgnored(t *testing.T) {
	obj := &wampvalue.Object{}
	obj.Set("id", wampvalue.Uint(1))
	obj.Set("item", wampvalue.String("gadget"))
	obj.Set("count", wampvalue.Int(2))
	obj.Set("extra", wampvalue.String("ignored"))
	var out order
	require.NoError(t, out.FromValue(wampvalue.NewObject(obj)))
	assert.Equal(t, order{ID: 1, Item: "gadget", Count: 2}, out)
}

func TestOptionalFieldDefaults(t *testing.T) {
	obj := &wampvalue.Object{}
	obj.Set("id", wampvalue.Uint(1))
	obj.Set("item", wampvalue.String("gadget"))
	obj.Set("count", wampvalue.Int(2))
	var out order
	require.NoError(t, out.FromValue(wampvalue.NewObject(obj)))
	assert.Empty(t, out.Note)
}

func TestFreeConverterForm(t *testing.T) {
	type point struct{ X, Y int64 }
	conv := wampvalue.FreeConverter[point]{
		To: func(p point) (wampvalue.Value, error) {
			return wampvalue.NewArray([]wampvalue.Value{wampvalue.Int(p.X), wampvalue.Int(p.Y)}), nil
		},
		From: func(v wampvalue.Value, p *point) error {
			arr, ok := v.AsArray()
			if !ok || len(arr) != 2 {
				return errors.New("expected [x, y]")
			}
			if err := wampvalue.FromVariant(arr[0], &p.X); err != nil {
				return err
			}
			return wampvalue.FromVariant(arr[1], &p.Y)
		},
	}

	v, err := conv.To(point{X: 3, Y: -4})
	require.NoError(t, err)
	var back point
	require.NoError(t, conv.From(v, &back))
	assert.Equal(t, point{X: 3, Y: -4}, back)
}

func TestSplitConverterForm(t *testing.T) {
	type record struct {
		Name  string
		Score int
	}
	r := record{Name: "x", Score: 10}
	split := wampvalue.SplitConverter{
		Write: func(v wampvalue.FieldVisitor) error {
			if err := v.Field("name", &r.Name, true); err != nil {
				return err
			}
			return v.Field("score", &r.Score, true)
		},
		Read: func(v wampvalue.FieldVisitor) error {
			// Decode accepts records without a score.
			if err := v.Field("name", &r.Name, true); err != nil {
				return err
			}
			return v.Field("score", &r.Score, false)
		},
	}

	obj, err := wampvalue.EncodeViaFields(split.Write)
	require.NoError(t, err)

	r = record{}
	obj.Delete("score")
	require.NoError(t, wampvalue.ConvertViaFields(obj, split.Read))
	assert.Equal(t, record{Name: "x"}, r)
}

func TestIndexVisitorRoundTrip(t *testing.T) {
	type triple struct {
		A int64
		B string
		C bool
	}
	in := triple{A: 1, B: "two", C: true}
	visit := func(tr *triple) func(wampvalue.IndexVisitor) error {
		return func(v wampvalue.IndexVisitor) error {
			if err := v.Index(0, &tr.A, true); err != nil {
				return err
			}
			if err := v.Index(1, &tr.B, true); err != nil {
				return err
			}
			return v.Index(2, &tr.C, true)
		}
	}

	arr, err := wampvalue.EncodeViaIndex(visit(&in))
	require.NoError(t, err)
	require.Len(t, arr, 3)

	var out triple
	require.NoError(t, wampvalue.ConvertViaIndex(arr, visit(&out)))
	assert.Equal(t, in, out)

	// Short array: the required third element is missing.
	var short triple
	err = wampvalue.ConvertViaIndex(arr[:2], visit(&short))
	var convErr *wampvalue.ConversionError
	require.ErrorAs(t, err, &convErr)
}

func TestToVariantNative(t *testing.T) {
	v, err := wampvalue.ToVariant(map[string]any{"n": 1, "s": "x"})
	require.NoError(t, err)
	obj, ok := v.AsObject()
	require.True(t, ok)
	assert.Equal(t, 2, obj.Len())

	_, err = wampvalue.ToVariant(struct{}{})
	require.Error(t, err)
}
