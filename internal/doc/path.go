package doc

import (
	"math"
	"strconv"
	"strings"
)

// Lookup walks nested objects along keys. It reports false when any step
// is missing or is not an Object.
func (obj Object) Lookup(keys ...string) (Value, bool) {
	var cur Value = obj
	for _, k := range keys {
		o, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = o[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// GetObject returns the nested object at keys, or nil.
func (obj Object) GetObject(keys ...string) Object {
	v, ok := obj.Lookup(keys...)
	if !ok {
		return nil
	}
	o, _ := v.(Object)
	return o
}

// GetList returns the nested list at keys, or nil.
func (obj Object) GetList(keys ...string) List {
	v, ok := obj.Lookup(keys...)
	if !ok {
		return nil
	}
	l, _ := v.(List)
	return l
}

// GetString returns the string at keys. Numbers are formatted; other shapes
// yield "".
func (obj Object) GetString(keys ...string) string {
	v, ok := obj.Lookup(keys...)
	if !ok {
		return ""
	}
	return AsString(v)
}

// GetInt returns the integer at keys using AsInt coercion.
func (obj Object) GetInt(keys ...string) int64 {
	v, ok := obj.Lookup(keys...)
	if !ok {
		return 0
	}
	n, _ := AsInt(v)
	return n
}

// GetBool reports whether the value at keys is Bool(true).
func (obj Object) GetBool(keys ...string) bool {
	v, ok := obj.Lookup(keys...)
	if !ok {
		return false
	}
	b, _ := v.(Bool)
	return bool(b)
}

// Set stores value at the nested path, creating or replacing intermediate
// objects as needed.
func (obj Object) Set(value Value, keys ...string) {
	if len(keys) == 0 {
		return
	}
	cur := obj
	for _, k := range keys[:len(keys)-1] {
		next, ok := cur[k].(Object)
		if !ok {
			next = Object{}
			cur[k] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// Delete removes the value at the nested path. Missing paths are ignored.
func (obj Object) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	parent := obj
	if len(keys) > 1 {
		parent = obj.GetObject(keys[:len(keys)-1]...)
	}
	if parent != nil {
		delete(parent, keys[len(keys)-1])
	}
}

// AsString renders scalars as strings. Lists, objects and null yield "".
func AsString(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	}
	return ""
}

// AsInt coerces a value to an integer. Floats truncate, numeric strings
// parse; everything else reports false.
func AsInt(v Value) (int64, bool) {
	switch val := v.(type) {
	case Int:
		return int64(val), true
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return int64(f), true
	case String:
		s := strings.TrimSpace(string(val))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
	}
	return 0, false
}
