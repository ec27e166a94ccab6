package store

import (
	"context"
	"strconv"
	"time"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/fsutil"
	"github.com/roach88/ledger/internal/lockfile"
	"github.com/roach88/ledger/internal/metrics"
)

// forbiddenPatchKeys are store-owned fields stripped from every patch.
// id is only ever used to select the target, never merged.
var forbiddenPatchKeys = []string{
	event.KeyID,
	event.KeySource,
	event.KeyType,
	event.KeyCreatedAt,
	event.KeyUpdatedAt,
}

// Upsert creates or updates one event.
//
// The target is chosen by event.Correlate: an existing explicit id, else
// the most recently updated event sharing a ref with the patch, else a new
// event is created with a generated id, the given source and type, and
// workflow.state "open" unless the patch sets one.
//
// On update, a patch display.title is dropped when the event carries
// meta.ui.title_user = true. source, type, created_at and updated_at in the
// patch are always ignored.
//
// The whole load-merge-persist cycle runs under the collection's exclusive
// lock. Persist failures return CodeWriteFailed.
func (s *Store) Upsert(ctx context.Context, source, typ string, patch doc.Object) (Result, error) {
	result, err := s.upsert(ctx, source, typ, patch)
	switch {
	case err != nil:
		s.metrics.Upsert(source, typ, metrics.ResultError)
	case result.IsNew:
		s.metrics.Upsert(source, typ, metrics.ResultCreated)
	default:
		s.metrics.Upsert(source, typ, metrics.ResultUpdated)
	}
	return result, err
}

func (s *Store) upsert(ctx context.Context, source, typ string, patch doc.Object) (Result, error) {
	if !s.sourceAllowed(source) {
		return Result{}, newError(CodeSourceNotAllowed, "source "+strconv.Quote(source)+" is not allowed", nil)
	}
	if !s.typeAllowed(typ) {
		return Result{}, newError(CodeTypeNotAllowed, "type "+strconv.Quote(typ)+" is not allowed", nil)
	}
	clean, err := cleanPatch(patch)
	if err != nil {
		return Result{}, err
	}

	var result Result
	lockErr := lockfile.WithExclusive(ctx, s.lockPath(), func() error {
		now := s.clock.Now()
		events, err := s.loadForWrite(now)
		if err != nil {
			return err
		}

		idx := event.Correlate(events, patch)
		if idx == event.NoMatch {
			created := s.create(source, typ, clean, now)
			events = append(events, created)
			result = Result{IsNew: true, Event: created}
			s.logger.Debug("event created", "id", event.ID(created), "source", source, "type", typ)
		} else {
			updated := applyUpdate(events[idx], clean, now)
			events[idx] = updated
			result = Result{IsNew: false, Event: updated}
			s.logger.Debug("event updated", "id", event.ID(updated), "source", source, "type", typ)
		}

		events = s.trim(events)
		return s.persist(events)
	})
	if lockErr != nil {
		if CodeOf(lockErr) == "" {
			return Result{}, newError(CodeLockFailed, "acquire collection lock", lockErr)
		}
		return Result{}, lockErr
	}

	action := ActionUpdate
	if result.IsNew {
		action = ActionCreate
	}
	s.notify(ctx, Change{
		EventID: result.ID(),
		Source:  event.Source(result.Event),
		Type:    event.Type(result.Event),
		Action:  action,
		At:      event.UpdatedAt(result.Event),
	})
	return Result{IsNew: result.IsNew, Event: result.Event.Clone()}, nil
}

// cleanPatch validates patch and returns a copy without store-owned keys
// and with duplicate refs removed.
func cleanPatch(patch doc.Object) (doc.Object, error) {
	if patch == nil {
		return nil, newError(CodeBadPatch, "patch must be an object", nil)
	}
	clean := patch.Clone()
	for _, k := range forbiddenPatchKeys {
		delete(clean, k)
	}
	if raw, ok := clean[event.KeyRefs]; ok {
		list, ok := raw.(doc.List)
		if !ok {
			return nil, newError(CodeBadPatch, "refs must be a list, got "+doc.KindOf(raw), nil)
		}
		for _, v := range list {
			if _, ok := event.RefFrom(v); !ok {
				return nil, newError(CodeBadPatch, "refs entries must be {ns, id} with non-empty strings", nil)
			}
		}
		clean[event.KeyRefs] = event.DedupeRefs(list)
	}
	return clean, nil
}

func (s *Store) create(source, typ string, patch doc.Object, now int64) doc.Object {
	base := doc.Object{
		event.KeyID:        doc.String(s.ids.Generate()),
		event.KeySource:    doc.String(source),
		event.KeyType:      doc.String(typ),
		event.KeyCreatedAt: doc.Int(now),
		event.KeyUpdatedAt: doc.Int(now),
	}
	ev := doc.Merge(base, patch)
	if event.State(ev) == "" {
		ev.Set(doc.String(event.StateOpen), event.KeyWorkflow, "state")
	}
	return ev
}

func applyUpdate(existing, patch doc.Object, now int64) doc.Object {
	if event.TitleLocked(existing) {
		if _, ok := patch.Lookup(event.KeyDisplay, "title"); ok {
			patch = patch.Clone()
			patch.Delete(event.KeyDisplay, "title")
		}
	}
	ev := doc.Merge(existing, patch)
	ev[event.KeyUpdatedAt] = doc.Int(now)
	return ev
}

// trim enforces MaxItems by keeping the positional tail.
func (s *Store) trim(events []doc.Object) []doc.Object {
	if s.cfg.MaxItems <= 0 || len(events) <= s.cfg.MaxItems {
		return events
	}
	dropped := len(events) - s.cfg.MaxItems
	s.logger.Info("retention cap reached, dropping oldest events", "dropped", dropped, "max_items", s.cfg.MaxItems)
	return events[dropped:]
}

func (s *Store) persist(events []doc.Object) (err error) {
	start := time.Now()
	defer func() { s.metrics.ObservePersist(time.Since(start), err) }()

	data, err := encodeCollection(events)
	if err != nil {
		return newError(CodeWriteFailed, "encode collection", err)
	}
	if err := fsutil.WriteFileAtomic(s.cfg.Path, data, 0o644); err != nil {
		s.logger.Error("collection write failed", "error", err)
		return newError(CodeWriteFailed, "write collection", err)
	}
	return nil
}

func (s *Store) notify(ctx context.Context, c Change) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Record(ctx, c); err != nil {
		s.logger.Warn("change sink failed", "event_id", c.EventID, "action", c.Action, "error", err)
	}
}

// Notify forwards a change recorded outside Upsert, such as a finalize
// outcome, to the configured sink.
func (s *Store) Notify(ctx context.Context, c Change) {
	s.notify(ctx, c)
}
