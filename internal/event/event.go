// Package event gives typed access to stored event documents.
//
// An event is a doc.Object with a handful of well-known fields (id, source,
// type, workflow, display, timing, meta, refs, created_at, updated_at).
// This package reads those fields and owns the correlation rule shared by
// the write path and the read path.
package event

import (
	"slices"

	"github.com/roach88/ledger/internal/doc"
)

// Well-known top-level keys.
const (
	KeyID        = "id"
	KeySource    = "source"
	KeyType      = "type"
	KeyWorkflow  = "workflow"
	KeyDisplay   = "display"
	KeyTiming    = "timing"
	KeyMeta      = "meta"
	KeyRefs      = "refs"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Workflow states.
const (
	StateOpen     = "open"
	StateWork     = "work"
	StateWaiting  = "waiting"
	StateClosed   = "closed"
	StateHidden   = "hidden"
	StateArchived = "archived"
)

// States lists every valid workflow state.
var States = []string{StateOpen, StateWork, StateWaiting, StateClosed, StateHidden, StateArchived}

// ValidState reports whether s is a known workflow state.
func ValidState(s string) bool {
	return slices.Contains(States, s)
}

// Ref is a namespaced cross-reference tuple.
type Ref struct {
	NS string `json:"ns"`
	ID string `json:"id"`
}

// Value renders the ref as a stored object.
func (r Ref) Value() doc.Object {
	return doc.Object{"ns": doc.String(r.NS), "id": doc.String(r.ID)}
}

// RefFrom reads a ref tuple. Both parts must be non-empty.
func RefFrom(v doc.Value) (Ref, bool) {
	obj, ok := v.(doc.Object)
	if !ok {
		return Ref{}, false
	}
	r := Ref{NS: obj.GetString("ns"), ID: obj.GetString("id")}
	if r.NS == "" || r.ID == "" {
		return Ref{}, false
	}
	return r, true
}

// ID returns the event id.
func ID(ev doc.Object) string { return ev.GetString(KeyID) }

// Source returns the event source namespace.
func Source(ev doc.Object) string { return ev.GetString(KeySource) }

// Type returns the event type namespace.
func Type(ev doc.Object) string { return ev.GetString(KeyType) }

// State returns workflow.state.
func State(ev doc.Object) string { return ev.GetString(KeyWorkflow, "state") }

// CreatedAt returns created_at in epoch seconds.
func CreatedAt(ev doc.Object) int64 { return ev.GetInt(KeyCreatedAt) }

// UpdatedAt returns updated_at in epoch seconds.
func UpdatedAt(ev doc.Object) int64 { return ev.GetInt(KeyUpdatedAt) }

// TitleLocked reports whether a user has edited the title by hand.
func TitleLocked(ev doc.Object) bool { return ev.GetBool(KeyMeta, "ui", "title_user") }

// Refs returns the well-formed ref tuples of ev. Malformed entries are skipped.
func Refs(ev doc.Object) []Ref {
	list := ev.GetList(KeyRefs)
	refs := make([]Ref, 0, len(list))
	for _, v := range list {
		if r, ok := RefFrom(v); ok {
			refs = append(refs, r)
		}
	}
	return refs
}

// HasRef reports whether ev carries ref.
func HasRef(ev doc.Object, ref Ref) bool {
	return slices.Contains(Refs(ev), ref)
}

// HasAnyRef reports whether ev carries at least one of refs.
func HasAnyRef(ev doc.Object, refs []Ref) bool {
	if len(refs) == 0 {
		return false
	}
	for _, r := range Refs(ev) {
		if slices.Contains(refs, r) {
			return true
		}
	}
	return false
}

// DedupeRefs removes repeated (ns,id) tuples from a refs list, keeping the
// first occurrence. Entries that are not well-formed tuples are kept as-is
// so the caller's data is not silently dropped.
func DedupeRefs(list doc.List) doc.List {
	seen := make(map[Ref]bool, len(list))
	out := make(doc.List, 0, len(list))
	for _, v := range list {
		if r, ok := RefFrom(v); ok {
			if seen[r] {
				continue
			}
			seen[r] = true
		}
		out = append(out, doc.Clone(v))
	}
	return out
}

// SortKey is the derived ordering timestamp: the first non-zero of
// timing.started_at, timing.ended_at, updated_at, created_at.
func SortKey(ev doc.Object) int64 {
	for _, n := range []int64{
		ev.GetInt(KeyTiming, "started_at"),
		ev.GetInt(KeyTiming, "ended_at"),
		UpdatedAt(ev),
		CreatedAt(ev),
	} {
		if n != 0 {
			return n
		}
	}
	return 0
}
