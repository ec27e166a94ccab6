package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the shapes an event document can hold.
// Only Null, String, Int, Float, Bool, List and Object implement it.
type Value interface {
	docValue()
}

// Null represents a JSON null.
type Null struct{}

func (Null) docValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string scalar.
type String string

func (String) docValue() {}

// Int is an integer scalar. Integers decoded from JSON stay Int and
// never round-trip through float64.
type Int int64

func (Int) docValue() {}

// Float is a non-integer number scalar.
type Float float64

func (Float) docValue() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) docValue() {}

// List is an ordered sequence. During Merge a List always replaces the
// destination wholesale.
type List []Value

func (List) docValue() {}

// Object is a mapping of string keys to values. During Merge an Object
// merges recursively into a destination Object.
type Object map[string]Value

func (Object) docValue() {}

// SortedKeys returns keys in UTF-16 code unit order.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 orders keys by UTF-16 code units rather than UTF-8 bytes
// so the persisted key order matches canonical JSON.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Decode parses JSON into a Value. Numbers without a fraction or exponent
// decode to Int; all others decode to Float.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data after JSON value")
	}
	return FromAny(raw)
}

// DecodeObject parses JSON that must be an object.
func DecodeObject(data []byte) (Object, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	return obj, nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	o, err := DecodeObject(data)
	if err != nil {
		return err
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for List.
func (l *List) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	list, ok := v.(List)
	if !ok {
		return fmt.Errorf("expected JSON array, got %s", KindOf(v))
	}
	*l = list
	return nil
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (obj Object) MarshalJSON() ([]byte, error) {
	return Marshal(obj)
}

// MarshalJSON implements json.Marshaler for List.
func (l List) MarshalJSON() ([]byte, error) {
	return Marshal(l)
}

// MarshalJSON implements json.Marshaler for Float, rejecting NaN and Inf.
func (f Float) MarshalJSON() ([]byte, error) {
	return marshalFloat(float64(f))
}

// Marshal encodes a Value as compact JSON with sorted object keys and
// without HTML escaping.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value, canonical bool) error {
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		s := string(val)
		if canonical {
			s = normalizeString(s)
		}
		b, err := marshalString(s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		b, err := marshalFloat(float64(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case List:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem, canonical); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		keys := sortedKeys(val, canonical)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name := k
			if canonical {
				name = normalizeString(k)
			}
			b, err := marshalString(name)
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k], canonical); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

// marshalString encodes s without HTML escaping.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func marshalFloat(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", f)
	}
	return []byte(strconv.FormatFloat(f, 'g', -1, 64)), nil
}

// FromAny converts decoded Go values (encoding/json with UseNumber, or
// gopkg.in/yaml.v3) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if n, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Float(float64(val)), nil
		}
		return Int(int64(val)), nil
	case float32:
		return fromFloat(float64(val)), nil
	case float64:
		return fromFloat(val), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list[i] = e
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	case map[any]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", key, err)
			}
			obj[key] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromFloat keeps whole numbers as Int so YAML input like `100` and JSON
// input like `100` produce the same Value.
func fromFloat(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
		return Int(int64(f))
	}
	return Float(f)
}

// ToAny converts a Value back to plain Go values, for printing and for
// libraries that expect interface{} trees.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	}
	return nil
}

// KindOf names the shape of v for error messages.
func KindOf(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case List:
		return "list"
	case Object:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
