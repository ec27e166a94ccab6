package doc

// Merge applies patch on top of dst and returns the result. Neither input
// is modified.
//
// For each key in patch:
//   - a List replaces the destination value outright, never element-merged
//   - an Object merges recursively when the destination is also an Object
//   - anything else overwrites the destination value
func Merge(dst, patch Object) Object {
	out := dst.Clone()
	if out == nil {
		out = Object{}
	}
	for k, pv := range patch {
		switch p := pv.(type) {
		case List:
			out[k] = p.Clone()
		case Object:
			if d, ok := out[k].(Object); ok {
				out[k] = Merge(d, p)
			} else {
				out[k] = p.Clone()
			}
		default:
			out[k] = pv
		}
	}
	return out
}

// Clone returns a deep copy of obj.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of l.
func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, v := range l {
		out[i] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of v. Scalars are immutable and returned as-is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case List:
		return val.Clone()
	}
	return v
}
