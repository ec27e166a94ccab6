package commit

import (
	"context"
	"fmt"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/metrics"
	"github.com/roach88/ledger/internal/store"
)

// SkippedAlreadyFinalized marks a PostWrite that found nothing to do.
const SkippedAlreadyFinalized = "already_finalized"

// PostWriteResult is the outcome of PostWrite.
type PostWriteResult struct {
	OK      bool   `json:"ok"`
	Skipped string `json:"skipped,omitempty"`
	Items   int    `json:"items,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// PostWrite finalizes the camera assets of a stored event.
//
// The event is reloaded and its kn, session and items are read from
// meta.doc.camera. If meta.doc.camera.finalized is already true the call
// returns Skipped "already_finalized" without touching any file. Otherwise
// the session lease is taken, the event is checked again under it, the
// items are finalized and a second upsert records finalized, finalized_at
// and the rewritten items before the lease is released.
func (o *Orchestrator) PostWrite(ctx context.Context, eventID string) (PostWriteResult, error) {
	res, err := o.postWrite(ctx, eventID)
	if err != nil {
		res = PostWriteResult{OK: false, Error: CodeOf(err), Message: MessageOf(err)}
		o.logger.Warn("post-write failed", "event_id", eventID, "error", err)
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) postWrite(ctx context.Context, eventID string) (PostWriteResult, error) {
	ev, err := o.load(ctx, eventID)
	if err != nil {
		return PostWriteResult{}, err
	}
	if ev.GetBool(cameraKeys("finalized")...) {
		return o.skipped(eventID), nil
	}

	session, err := o.finalizer.Lock(ctx, doc.AsString(lookup(ev, cameraKeys("session")...)))
	if err != nil {
		return PostWriteResult{}, err
	}
	defer func() {
		if err := session.Release(); err != nil {
			o.logger.Warn("session lease release failed", "session", session.Name(), "error", err)
		}
	}()

	// Another caller may have finalized the session while this one waited.
	ev, err = o.load(ctx, eventID)
	if err != nil {
		return PostWriteResult{}, err
	}
	if ev.GetBool(cameraKeys("finalized")...) {
		return o.skipped(eventID), nil
	}

	kn := cameraKN(ev)
	items := asset.ItemsFromList(ev.GetList(cameraKeys("items")...))
	now := o.store.Now()

	moved, err := o.finalizer.FinalizeLocked(ctx, session, kn, items, now)
	if err != nil {
		return PostWriteResult{}, err
	}

	patch := doc.Object{event.KeyID: doc.String(eventID)}
	patch.Set(doc.Bool(true), cameraKeys("finalized")...)
	patch.Set(doc.Int(now), cameraKeys("finalized_at")...)
	patch.Set(asset.ItemsList(moved), cameraKeys("items")...)
	if _, err := o.store.Upsert(ctx, event.Source(ev), event.Type(ev), patch); err != nil {
		return PostWriteResult{}, fmt.Errorf("record finalize: %w", err)
	}

	o.store.Notify(ctx, store.Change{
		EventID: eventID,
		Source:  event.Source(ev),
		Type:    event.Type(ev),
		Action:  store.ActionFinalize,
		At:      now,
		Detail:  fmt.Sprintf("%d items to %s", len(moved), kn),
	})
	return PostWriteResult{OK: true, Items: len(moved)}, nil
}

func (o *Orchestrator) load(ctx context.Context, eventID string) (doc.Object, error) {
	ev, ok, err := o.store.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(CodeNotFound, "no event with id "+eventID)
	}
	return ev, nil
}

func (o *Orchestrator) skipped(eventID string) PostWriteResult {
	o.metrics.Finalize(metrics.ResultSkipped)
	o.logger.Debug("post-write skipped", "event_id", eventID, "reason", SkippedAlreadyFinalized)
	return PostWriteResult{OK: true, Skipped: SkippedAlreadyFinalized}
}
