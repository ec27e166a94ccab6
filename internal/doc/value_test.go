package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KeepsIntegersExact(t *testing.T) {
	v, err := Decode([]byte(`{"big": 9007199254740993, "f": 1.5, "neg": -3}`))
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(9007199254740993), obj["big"])
	assert.Equal(t, Float(1.5), obj["f"])
	assert.Equal(t, Int(-3), obj["neg"])
}

func TestDecode_Shapes(t *testing.T) {
	v, err := Decode([]byte(`[null, true, "s", {"k": []}]`))
	require.NoError(t, err)

	assert.Equal(t, List{Null{}, Bool(true), String("s"), Object{"k": List{}}}, v)
}

func TestDecode_RejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestDecodeObject_RejectsNonObject(t *testing.T) {
	_, err := DecodeObject([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list")
}

func TestMarshal_SortedKeysNoHTMLEscape(t *testing.T) {
	data, err := Marshal(Object{
		"b": String("<x & y>"),
		"a": List{Int(1), Float(2.5), Bool(false), Null{}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1,2.5,false,null],"b":"<x & y>"}`, string(data))
}

func TestMarshalCanonical_NormalizesStrings(t *testing.T) {
	// "e" + combining acute vs precomposed "é"
	decomposed := Object{"name": String("e\u0301")}
	composed := Object{"name": String("\u00e9")}

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)

	assert.Equal(t, string(b), string(a))
}

func TestMarshal_RejectsNaN(t *testing.T) {
	_, err := Marshal(Object{"x": Float(nan())})
	assert.Error(t, err)
}

func TestObjectJSONRoundTripThroughStdlib(t *testing.T) {
	var obj Object
	require.NoError(t, obj.UnmarshalJSON([]byte(`{"timing":{"started_at":100}}`)))
	assert.Equal(t, int64(100), obj.GetInt("timing", "started_at"))
}

func TestFromAny_YAMLShapes(t *testing.T) {
	v, err := FromAny(map[string]any{
		"n":    100,
		"f":    float64(3),
		"frac": 0.25,
		"list": []any{"a", nil},
	})
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, Int(100), obj["n"])
	assert.Equal(t, Int(3), obj["f"])
	assert.Equal(t, Float(0.25), obj["frac"])
	assert.Equal(t, List{String("a"), Null{}}, obj["list"])
}

func TestPathHelpers(t *testing.T) {
	obj := Object{}
	obj.Set(Bool(true), "meta", "ui", "title_user")
	obj.Set(String("42"), "timing", "started_at")

	assert.True(t, obj.GetBool("meta", "ui", "title_user"))
	assert.Equal(t, int64(42), obj.GetInt("timing", "started_at"))
	assert.Equal(t, "", obj.GetString("missing", "path"))

	obj.Delete("meta", "ui", "title_user")
	_, ok := obj.Lookup("meta", "ui", "title_user")
	assert.False(t, ok)

	obj.Delete("no", "such", "path")
}

func TestAsInt(t *testing.T) {
	cases := []struct {
		in   Value
		want int64
		ok   bool
	}{
		{Int(5), 5, true},
		{Float(5.9), 5, true},
		{String(" 12 "), 12, true},
		{String("1.5e2"), 150, true},
		{String("abc"), 0, false},
		{Bool(true), 0, false},
		{Null{}, 0, false},
	}
	for _, tc := range cases {
		got, ok := AsInt(tc.in)
		assert.Equal(t, tc.ok, ok, "%#v", tc.in)
		assert.Equal(t, tc.want, got, "%#v", tc.in)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}
