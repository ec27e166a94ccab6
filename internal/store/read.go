package store

import (
	"cmp"
	"context"
	"slices"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/lockfile"
)

// ReadAll returns every event in storage order under a shared lock.
// A missing, empty or unusable collection file yields an empty slice.
//
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) ReadAll(ctx context.Context) ([]doc.Object, error) {
	var events []doc.Object
	err := lockfile.WithShared(ctx, s.lockPath(), func() error {
		var err error
		events, err = s.loadForRead()
		return err
	})
	if err != nil {
		if CodeOf(err) == "" {
			return nil, newError(CodeLockFailed, "acquire collection lock", err)
		}
		return nil, err
	}
	if events == nil {
		events = []doc.Object{}
	}
	return events, nil
}

// GetByID returns the event with id.
func (s *Store) GetByID(ctx context.Context, id string) (doc.Object, bool, error) {
	events, err := s.ReadAll(ctx)
	if err != nil {
		return nil, false, err
	}
	i := event.IndexByID(events, id)
	if id == "" || i == event.NoMatch {
		return nil, false, nil
	}
	return events[i], true, nil
}

// GetByRef returns the most recently updated event carrying (ns,id).
// This is the same tie-break Upsert uses when correlating by refs.
func (s *Store) GetByRef(ctx context.Context, ns, id string) (doc.Object, bool, error) {
	all, err := s.GetByRefAll(ctx, ns, id)
	if err != nil {
		return nil, false, err
	}
	if len(all) == 0 {
		return nil, false, nil
	}
	return all[0], true, nil
}

// GetByRefAll returns every event carrying (ns,id), most recently updated
// first.
func (s *Store) GetByRefAll(ctx context.Context, ns, id string) ([]doc.Object, error) {
	events, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	idx := event.MatchRef(events, event.Ref{NS: ns, ID: id})
	out := make([]doc.Object, len(idx))
	for i, j := range idx {
		out[i] = events[j]
	}
	return out, nil
}

// Filter selects events for Query. Empty sets match everything.
type Filter struct {
	States  []string
	Sources []string
	Types   []string

	// Limit caps the result size after sorting; zero or negative is unlimited.
	Limit int
}

func (f Filter) match(ev doc.Object) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, event.State(ev)) {
		return false
	}
	if len(f.Sources) > 0 && !slices.Contains(f.Sources, event.Source(ev)) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, event.Type(ev)) {
		return false
	}
	return true
}

// Query returns the events matching f, ordered by event.SortKey descending.
// Events with equal keys keep their storage order.
func (s *Store) Query(ctx context.Context, f Filter) ([]doc.Object, error) {
	events, err := s.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		ev  doc.Object
		key int64
	}
	matched := make([]keyed, 0, len(events))
	for _, ev := range events {
		if f.match(ev) {
			matched = append(matched, keyed{ev: ev, key: event.SortKey(ev)})
		}
	}
	slices.SortStableFunc(matched, func(a, b keyed) int {
		return cmp.Compare(b.key, a.key)
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]doc.Object, len(matched))
	for i, m := range matched {
		out[i] = m.ev
	}
	return out, nil
}
