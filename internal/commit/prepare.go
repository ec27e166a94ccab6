package commit

import (
	"context"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/fsutil"
)

// Plan is a validated request ready for the first upsert.
type Plan struct {
	Source string
	Type   string
	Patch  doc.Object

	// Create is true when no event_id was supplied.
	Create bool

	// PostWrite is true when the write must be followed by PostWrite.
	PostWrite bool
}

// Prepare validates req and builds the patch for the first upsert. The
// request patch is never modified.
//
// With an event_id the event must exist (not_found otherwise); source and
// type default to the stored ones. Without one, source and type are
// required, and the camera documentation pair gets its timing, camera ref,
// display defaults and finalized=false filled in. A camera request without
// a usable kn and session is rejected with bad_kn_or_session before
// anything is written.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (*Plan, error) {
	if req.Patch == nil {
		return nil, newError(CodeBadRequest, "patch must be an object")
	}
	patch := req.Patch.Clone()

	if req.WorkflowState != "" {
		if !event.ValidState(req.WorkflowState) {
			return nil, newError(CodeBadWorkflowState, "unknown workflow state "+req.WorkflowState)
		}
		patch.Set(doc.String(req.WorkflowState), event.KeyWorkflow, "state")
	}

	if req.EventID != "" {
		existing, ok, err := o.store.GetByID(ctx, req.EventID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(CodeNotFound, "no event with id "+req.EventID)
		}
		patch[event.KeyID] = doc.String(req.EventID)
		plan := &Plan{
			Source: req.Source,
			Type:   req.Type,
			Patch:  patch,
		}
		if plan.Source == "" {
			plan.Source = event.Source(existing)
		}
		if plan.Type == "" {
			plan.Type = event.Type(existing)
		}
		return plan, nil
	}

	if req.Source == "" || req.Type == "" {
		return nil, newError(CodeBadRequest, "source and type are required to create an event")
	}
	plan := &Plan{
		Source: req.Source,
		Type:   req.Type,
		Patch:  patch,
		Create: true,
	}
	if o.isCamera(req.Source, req.Type) {
		if err := o.prepareCamera(ctx, patch); err != nil {
			return nil, err
		}
		plan.PostWrite = true
	}
	return plan, nil
}

func (o *Orchestrator) isCamera(source, typ string) bool {
	return source == o.cfg.CameraSource && typ == o.cfg.CameraType
}

// Camera documentation lives under meta.doc.camera.
var cameraPath = []string{event.KeyMeta, "doc", "camera"}

func cameraKeys(keys ...string) []string {
	return append(append([]string{}, cameraPath...), keys...)
}

// cameraKN returns meta.doc.camera.kn, falling back to display.customer.number.
func cameraKN(ev doc.Object) string {
	if kn := doc.AsString(lookup(ev, cameraKeys("kn")...)); kn != "" {
		return kn
	}
	return doc.AsString(lookup(ev, event.KeyDisplay, "customer", "number"))
}

func lookup(obj doc.Object, keys ...string) doc.Value {
	v, _ := obj.Lookup(keys...)
	return v
}

func (o *Orchestrator) prepareCamera(ctx context.Context, patch doc.Object) error {
	kn := cameraKN(patch)
	session := doc.AsString(lookup(patch, cameraKeys("session")...))
	_, okKN := fsutil.SanitizeToken(kn, o.cfg.MaxTokenLen)
	_, okSession := fsutil.SanitizeToken(session, o.cfg.MaxTokenLen)
	if !okKN || !okSession {
		return newError(CodeBadKNOrSession, "camera documentation needs kn and session as non-empty [A-Za-z0-9_-] tokens")
	}

	// A repeated request for a session that is already finalized must not
	// reset the finalized items to their temporary names.
	existing, ok, err := o.store.GetByRef(ctx, "camera", session)
	if err != nil {
		return err
	}
	if ok && existing.GetBool(cameraKeys("finalized")...) {
		patch.Delete(cameraKeys("items")...)
		patch.Delete(cameraKeys("finalized")...)
		patch.Delete(cameraKeys("finalized_at")...)
		ensureRef(patch, event.Ref{NS: "camera", ID: session})
		return nil
	}
	items := asset.ItemsFromList(patch.GetList(cameraKeys("items")...))
	now := o.store.Now()

	start, end := captureSpan(items, now)
	patch.Set(doc.Int(start), event.KeyTiming, "started_at")
	patch.Set(doc.Int(end), event.KeyTiming, "ended_at")
	patch.Set(doc.Int(max(end-start, 1)), event.KeyTiming, "duration_sec")

	ensureRef(patch, event.Ref{NS: "camera", ID: session})

	patch.Set(doc.String(kn), cameraKeys("kn")...)
	if patch.GetString(event.KeyDisplay, "title") == "" {
		patch.Set(doc.String("Photo documentation "+kn), event.KeyDisplay, "title")
	}
	if patch.GetString(event.KeyDisplay, "subtitle") == "" {
		patch.Set(doc.String("Customer "+kn), event.KeyDisplay, "subtitle")
	}
	patch.Set(doc.Bool(false), cameraKeys("finalized")...)
	return nil
}

// captureSpan returns the earliest and latest positive capture timestamp,
// or now for both when no item has one.
func captureSpan(items []asset.Item, now int64) (int64, int64) {
	var start, end int64
	for _, it := range items {
		if it.TS <= 0 {
			continue
		}
		if start == 0 || it.TS < start {
			start = it.TS
		}
		if it.TS > end {
			end = it.TS
		}
	}
	if start == 0 {
		return now, now
	}
	return start, end
}

// ensureRef appends ref to the patch refs unless present. A refs value that
// is not a list is left alone for the store to reject.
func ensureRef(patch doc.Object, ref event.Ref) {
	raw, ok := patch[event.KeyRefs]
	if !ok {
		patch[event.KeyRefs] = doc.List{ref.Value()}
		return
	}
	list, ok := raw.(doc.List)
	if !ok || event.HasRef(patch, ref) {
		return
	}
	patch[event.KeyRefs] = append(list.Clone(), ref.Value())
}
