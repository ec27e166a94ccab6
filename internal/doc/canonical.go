package doc

import (
	"bytes"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the byte form used for the persisted collection:
// compact JSON, object keys sorted by UTF-16 code units, no HTML escaping,
// and every string (keys included) NFC normalized.
//
// Two documents that differ only in key order or Unicode composition
// serialize to identical bytes.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, true); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func normalizeString(s string) string {
	return norm.NFC.String(s)
}

// sortedKeys returns the object's keys in output order. In canonical mode
// keys are compared after NFC normalization.
func sortedKeys(obj Object, canonical bool) []string {
	if !canonical {
		return obj.SortedKeys()
	}
	normalized := make(Object, len(obj))
	for k, v := range obj {
		normalized[normalizeString(k)] = v
	}
	keys := normalized.SortedKeys()
	// Map back to the original spelling so lookups in obj still hit.
	back := make(map[string]string, len(obj))
	for k := range obj {
		back[normalizeString(k)] = k
	}
	for i, k := range keys {
		keys[i] = back[k]
	}
	return keys
}
