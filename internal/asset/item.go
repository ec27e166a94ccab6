package asset

import (
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/roach88/ledger/internal/doc"
)

// Item keys as stored in meta.doc.camera.items.
const (
	keyFull  = "full"
	keyThumb = "thumb"
	keyTS    = "ts"
	keyKN    = "kn"
	keyStore = "store"
)

// StoreKindCamera is the StoreInfo.Kind of finalized camera captures.
const StoreKindCamera = "camera"

// StoreInfo describes where a finalized item lives.
type StoreInfo struct {
	Kind      string
	KN        string
	Session   string
	Finalized bool
	MovedAt   int64
}

// Item is one captured photo. Full and Thumb are URL-shaped or bare
// filenames on input and bare filenames after Finalize. Extra holds any
// other keys the capture UI attached, carried through unchanged.
type Item struct {
	Full  string
	Thumb string
	TS    int64
	KN    string
	Store *StoreInfo
	Extra doc.Object
}

// ItemFromValue reads an item from its document form. Non-object values
// yield false.
func ItemFromValue(v doc.Value) (Item, bool) {
	obj, ok := v.(doc.Object)
	if !ok {
		return Item{}, false
	}
	it := Item{
		Full:  obj.GetString(keyFull),
		Thumb: obj.GetString(keyThumb),
		TS:    obj.GetInt(keyTS),
		KN:    obj.GetString(keyKN),
	}
	if st := obj.GetObject(keyStore); st != nil {
		it.Store = &StoreInfo{
			Kind:      st.GetString("kind"),
			KN:        st.GetString("kn"),
			Session:   st.GetString("session"),
			Finalized: st.GetBool("finalized"),
			MovedAt:   st.GetInt("moved_at"),
		}
	}
	for k, val := range obj {
		switch k {
		case keyFull, keyThumb, keyTS, keyKN, keyStore:
			continue
		}
		if it.Extra == nil {
			it.Extra = doc.Object{}
		}
		it.Extra[k] = doc.Clone(val)
	}
	return it, true
}

// Value returns the document form of it. Zero TS and empty KN are omitted.
func (it Item) Value() doc.Object {
	obj := it.Extra.Clone()
	if obj == nil {
		obj = doc.Object{}
	}
	obj[keyFull] = doc.String(it.Full)
	obj[keyThumb] = doc.String(it.Thumb)
	if it.TS != 0 {
		obj[keyTS] = doc.Int(it.TS)
	}
	if it.KN != "" {
		obj[keyKN] = doc.String(it.KN)
	}
	if it.Store != nil {
		obj[keyStore] = doc.Object{
			"kind":      doc.String(it.Store.Kind),
			"kn":        doc.String(it.Store.KN),
			"session":   doc.String(it.Store.Session),
			"finalized": doc.Bool(it.Store.Finalized),
			"moved_at":  doc.Int(it.Store.MovedAt),
		}
	}
	return obj
}

// ItemsFromList reads every object entry of list as an Item. Non-object
// entries are skipped.
func ItemsFromList(list doc.List) []Item {
	items := make([]Item, 0, len(list))
	for _, v := range list {
		if it, ok := ItemFromValue(v); ok {
			items = append(items, it)
		}
	}
	return items
}

// ItemsList returns the document form of items.
func ItemsList(items []Item) doc.List {
	list := make(doc.List, len(items))
	for i, it := range items {
		list[i] = it.Value()
	}
	return list
}

// BaseName extracts a bare filename from a URL-shaped or path-shaped
// reference: the query string and fragment are dropped and only the last
// path element is kept. It returns false when nothing usable remains or
// the extension is not in exts (compared case-insensitively, without dot).
func BaseName(ref string, exts []string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	name := path.Base(ref)
	if name == "." || name == "/" || name == ".." || name == "" || strings.HasPrefix(name, ".") {
		return "", false
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" || !slices.Contains(exts, ext) {
		return "", false
	}
	return name, true
}
