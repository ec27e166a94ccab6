package event

import (
	"cmp"
	"slices"

	"github.com/roach88/ledger/internal/doc"
)

// NoMatch is returned by Correlate when the patch targets no existing event.
const NoMatch = -1

// Correlate selects the event a patch targets within a collection snapshot.
//
// Selection order:
//  1. a non-empty explicit id that exists in events
//  2. any event sharing at least one (ns,id) tuple with the patch refs;
//     among several, the most recently updated wins
//  3. NoMatch
//
// The read path (GetByRef) ranks with the same rule, so a write and the
// following read always land on the same document.
func Correlate(events []doc.Object, patch doc.Object) int {
	if id := patch.GetString(KeyID); id != "" {
		if i := IndexByID(events, id); i != NoMatch {
			return i
		}
	}

	refs := Refs(patch)
	if len(refs) == 0 {
		return NoMatch
	}
	var candidates []int
	for i, ev := range events {
		if HasAnyRef(ev, refs) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return NoMatch
	}
	return RankByRecency(events, candidates)[0]
}

// IndexByID returns the position of the event with id, or NoMatch.
func IndexByID(events []doc.Object, id string) int {
	for i, ev := range events {
		if ID(ev) == id {
			return i
		}
	}
	return NoMatch
}

// MatchRef returns the positions of every event carrying ref, ranked by
// recency.
func MatchRef(events []doc.Object, ref Ref) []int {
	var idx []int
	for i, ev := range events {
		if HasRef(ev, ref) {
			idx = append(idx, i)
		}
	}
	return RankByRecency(events, idx)
}

// RankByRecency orders positions by updated_at descending. Ties go to the
// later storage position, which is the more recently appended document.
func RankByRecency(events []doc.Object, idx []int) []int {
	out := slices.Clone(idx)
	slices.SortStableFunc(out, func(a, b int) int {
		if c := cmp.Compare(UpdatedAt(events[b]), UpdatedAt(events[a])); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})
	return out
}
