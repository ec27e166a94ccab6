package commit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/testutil"
)

// countingFinalizer wraps a finalizer and counts finalize calls. lockHook
// runs before every Lock and finalizeHook before the first FinalizeLocked.
type countingFinalizer struct {
	inner *asset.Finalizer
	calls atomic.Int32

	lockHook     func()
	finalizeHook func()
	once         sync.Once
}

func (c *countingFinalizer) Lock(ctx context.Context, session string) (*asset.Session, error) {
	if c.lockHook != nil {
		c.lockHook()
	}
	return c.inner.Lock(ctx, session)
}

func (c *countingFinalizer) FinalizeLocked(ctx context.Context, s *asset.Session, kn string, items []asset.Item, now int64) ([]asset.Item, error) {
	c.calls.Add(1)
	if c.finalizeHook != nil {
		c.once.Do(c.finalizeHook)
	}
	return c.inner.FinalizeLocked(ctx, s, kn, items, now)
}

type recordingSink struct{ changes []store.Change }

func (r *recordingSink) Record(_ context.Context, c store.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

type env struct {
	orch      *Orchestrator
	store     *store.Store
	finalizer *countingFinalizer
	sink      *recordingSink
	clock     *testutil.Clock
	tmpRoot   string
	dataRoot  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(1000)
	sink := &recordingSink{}

	s := store.New(store.Config{
		Path:    filepath.Join(root, "events.json"),
		Sources: []string{"pbx", "camera", "manual"},
		Types:   []string{"call", "doc", "note"},
	},
		store.WithClock(clock),
		store.WithIDGenerator(testutil.NewSequenceIDs("evt")),
		store.WithLogger(quiet),
		store.WithChangeSink(sink),
	)

	tmpRoot := filepath.Join(root, "tmp")
	dataRoot := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(tmpRoot, 0o755))
	require.NoError(t, os.MkdirAll(dataRoot, 0o755))
	f := &countingFinalizer{inner: asset.New(asset.Config{
		TmpRoot:     tmpRoot,
		DataRoot:    dataRoot,
		LockTimeout: 5 * time.Second,
	}, asset.WithRandom(&testutil.CountingReader{}), asset.WithLogger(quiet))}

	return &env{
		orch:      New(s, f, Config{}, WithLogger(quiet)),
		store:     s,
		finalizer: f,
		sink:      sink,
		clock:     clock,
		tmpRoot:   tmpRoot,
		dataRoot:  dataRoot,
	}
}

func (e *env) capture(t *testing.T, session string, names ...string) {
	t.Helper()
	dir := filepath.Join(e.tmpRoot, session)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "thumb"), 0o755))
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "thumb", n), []byte(n), 0o644))
	}
}

func cameraPatch(kn, session string, items ...doc.Value) doc.Object {
	patch := doc.Object{}
	patch.Set(doc.String(kn), "meta", "doc", "camera", "kn")
	patch.Set(doc.String(session), "meta", "doc", "camera", "session")
	patch.Set(doc.List(items), "meta", "doc", "camera", "items")
	return patch
}

func item(name string, ts int64) doc.Value {
	return doc.Object{
		"full":  doc.String("/tmp/camera/S1/" + name),
		"thumb": doc.String("/tmp/camera/S1/thumb/" + name),
		"ts":    doc.Int(ts),
	}
}

func TestCommit_CreatesPlainEvent(t *testing.T) {
	e := newEnv(t)

	resp := e.orch.Commit(context.Background(), Request{
		Source: "manual",
		Type:   "note",
		Patch:  doc.Object{"display": doc.Object{"title": doc.String("Called back")}},
	})

	assert.Equal(t, Response{OK: true, EventID: "evt-0001", Written: true, Created: true}, resp)
	assert.Zero(t, e.finalizer.calls.Load())
}

func TestCommit_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"nil patch", Request{Source: "manual", Type: "note"}, "bad_request"},
		{"missing source", Request{Type: "note", Patch: doc.Object{}}, "bad_request"},
		{"bad state", Request{Source: "manual", Type: "note", WorkflowState: "done", Patch: doc.Object{}}, "bad_workflow_state"},
		{"unknown id", Request{EventID: "evt-9999", Patch: doc.Object{}}, "not_found"},
		{"disallowed source", Request{Source: "fax", Type: "note", Patch: doc.Object{}}, "source_not_allowed"},
		{"bad refs", Request{Source: "manual", Type: "note", Patch: doc.Object{"refs": doc.Int(1)}}, "bad_patch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			resp := e.orch.Commit(context.Background(), tt.req)
			assert.False(t, resp.OK)
			assert.False(t, resp.Written)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestCommit_UpdateByIDSetsWorkflowState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created := e.orch.Commit(ctx, Request{Source: "pbx", Type: "call", Patch: doc.Object{}})
	require.True(t, created.OK)

	resp := e.orch.Commit(ctx, Request{
		EventID:       created.EventID,
		WorkflowState: event.StateClosed,
		Patch:         doc.Object{},
	})
	require.True(t, resp.OK, resp.Message)
	assert.False(t, resp.Created)
	assert.Equal(t, created.EventID, resp.EventID)

	ev, ok, err := e.store.GetByID(ctx, created.EventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, event.StateClosed, event.State(ev))
	assert.Equal(t, "pbx", event.Source(ev))
}

func TestPrepare_DoesNotModifyRequestPatch(t *testing.T) {
	e := newEnv(t)
	patch := cameraPatch("A100", "S1")

	plan, err := e.orch.Prepare(context.Background(), Request{Source: "camera", Type: "doc", Patch: patch})
	require.NoError(t, err)

	assert.True(t, plan.Create)
	assert.True(t, plan.PostWrite)
	_, hasRefs := patch["refs"]
	assert.False(t, hasRefs)
	_, hasTiming := plan.Patch.Lookup("timing", "started_at")
	assert.True(t, hasTiming)
}

func TestPrepare_CameraDefaults(t *testing.T) {
	e := newEnv(t)

	patch := cameraPatch("", "S1", item("a.jpg", 500), item("b.jpg", 440), item("c.jpg", 0))
	patch.Set(doc.String("K9"), "display", "customer", "number")
	patch.Set(doc.String("Kept"), "display", "subtitle")
	patch["refs"] = doc.List{event.Ref{NS: "pbx", ID: "C1"}.Value()}

	plan, err := e.orch.Prepare(context.Background(), Request{Source: "camera", Type: "doc", Patch: patch})
	require.NoError(t, err)
	p := plan.Patch

	assert.Equal(t, int64(440), p.GetInt("timing", "started_at"))
	assert.Equal(t, int64(500), p.GetInt("timing", "ended_at"))
	assert.Equal(t, int64(60), p.GetInt("timing", "duration_sec"))
	assert.Equal(t, []event.Ref{{NS: "pbx", ID: "C1"}, {NS: "camera", ID: "S1"}}, event.Refs(p))
	assert.Equal(t, "Photo documentation K9", p.GetString("display", "title"))
	assert.Equal(t, "Kept", p.GetString("display", "subtitle"))
	assert.Equal(t, "K9", p.GetString("meta", "doc", "camera", "kn"))
	v, ok := p.Lookup("meta", "doc", "camera", "finalized")
	require.True(t, ok)
	assert.Equal(t, doc.Bool(false), v)
}

func TestPrepare_CameraWithoutTimestampsUsesNow(t *testing.T) {
	e := newEnv(t)

	plan, err := e.orch.Prepare(context.Background(), Request{
		Source: "camera", Type: "doc",
		Patch: cameraPatch("A100", "S1", item("a.jpg", 0)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), plan.Patch.GetInt("timing", "started_at"))
	assert.Equal(t, int64(1000), plan.Patch.GetInt("timing", "ended_at"))
	assert.Equal(t, int64(1), plan.Patch.GetInt("timing", "duration_sec"))
}

func TestCommit_CameraFinalizesAssets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.capture(t, "S1", "a.jpg", "b.jpg")
	e.clock.Set(1700000000)

	resp := e.orch.Commit(ctx, Request{
		Source: "camera", Type: "doc",
		Patch: cameraPatch("A100", "S1", item("a.jpg", 1699999000), item("b.jpg", 1699999900)),
	})
	require.True(t, resp.OK, resp.Message)
	assert.True(t, resp.Created)
	require.NotNil(t, resp.PostWrite)
	assert.Equal(t, PostWriteResult{OK: true, Items: 2}, *resp.PostWrite)

	ev, ok, err := e.store.GetByRef(ctx, "camera", "S1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, resp.EventID, event.ID(ev))
	assert.True(t, ev.GetBool("meta", "doc", "camera", "finalized"))
	assert.Equal(t, int64(1700000000), ev.GetInt("meta", "doc", "camera", "finalized_at"))
	assert.Equal(t, int64(900), ev.GetInt("timing", "duration_sec"))

	items := asset.ItemsFromList(ev.GetList("meta", "doc", "camera", "items"))
	require.Len(t, items, 2)
	assert.Equal(t, "cam_A100_2023-11-14_00010203.jpg", items[0].Full)
	assert.Equal(t, "cam_A100_2023-11-14_00010203_t.jpg", items[0].Thumb)
	require.NotNil(t, items[0].Store)
	assert.True(t, items[0].Store.Finalized)
	assert.Equal(t, "S1", items[0].Store.Session)
	assert.FileExists(t, filepath.Join(e.dataRoot, "A100", items[1].Full))
	assert.NoDirExists(t, filepath.Join(e.tmpRoot, "S1"))

	require.Len(t, e.sink.changes, 3)
	assert.Equal(t, store.ActionCreate, e.sink.changes[0].Action)
	assert.Equal(t, store.ActionUpdate, e.sink.changes[1].Action)
	assert.Equal(t, store.ActionFinalize, e.sink.changes[2].Action)
}

func TestPostWrite_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.capture(t, "S1", "a.jpg")

	resp := e.orch.Commit(ctx, Request{Source: "camera", Type: "doc", Patch: cameraPatch("A100", "S1", item("a.jpg", 900))})
	require.True(t, resp.OK, resp.Message)
	require.Equal(t, int32(1), e.finalizer.calls.Load())

	before, _, err := e.store.GetByID(ctx, resp.EventID)
	require.NoError(t, err)

	again, err := e.orch.PostWrite(ctx, resp.EventID)
	require.NoError(t, err)
	assert.Equal(t, PostWriteResult{OK: true, Skipped: SkippedAlreadyFinalized}, again)
	assert.Equal(t, int32(1), e.finalizer.calls.Load(), "no file operations on the second call")

	after, _, err := e.store.GetByID(ctx, resp.EventID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCommit_CameraFinalizeFailureThenRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.capture(t, "S1", "a.jpg")
	require.NoError(t, os.Remove(filepath.Join(e.tmpRoot, "S1", "thumb", "a.jpg")))

	req := Request{Source: "camera", Type: "doc", Patch: cameraPatch("A100", "S1", item("a.jpg", 900))}
	resp := e.orch.Commit(ctx, req)

	assert.False(t, resp.OK)
	assert.True(t, resp.Written)
	assert.True(t, resp.Created)
	assert.Equal(t, "src_file_missing", resp.Error)
	require.NotNil(t, resp.PostWrite)
	assert.False(t, resp.PostWrite.OK)
	assert.DirExists(t, filepath.Join(e.tmpRoot, "S1"))

	ev, ok, err := e.store.GetByID(ctx, resp.EventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ev.GetBool("meta", "doc", "camera", "finalized"))

	// The thumbnail shows up; the same request now lands on the same event.
	require.NoError(t, os.WriteFile(filepath.Join(e.tmpRoot, "S1", "thumb", "a.jpg"), []byte("t"), 0o644))
	retry := e.orch.Commit(ctx, req)
	require.True(t, retry.OK, retry.Message)
	assert.False(t, retry.Created)
	assert.Equal(t, resp.EventID, retry.EventID)

	all, err := e.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPostWrite_UnknownEvent(t *testing.T) {
	e := newEnv(t)

	res, err := e.orch.PostWrite(context.Background(), "evt-0404")
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeNotFound))
	assert.Equal(t, PostWriteResult{OK: false, Error: "not_found", Message: "no event with id evt-0404"}, res)
}

func TestCommit_RepeatedCameraRequestKeepsFinalizedItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.capture(t, "S1", "a.jpg")

	req := Request{Source: "camera", Type: "doc", Patch: cameraPatch("A100", "S1", item("a.jpg", 900))}
	first := e.orch.Commit(ctx, req)
	require.True(t, first.OK, first.Message)

	second := e.orch.Commit(ctx, req)
	require.True(t, second.OK, second.Message)
	assert.False(t, second.Created)
	assert.Equal(t, first.EventID, second.EventID)
	require.NotNil(t, second.PostWrite)
	assert.Equal(t, SkippedAlreadyFinalized, second.PostWrite.Skipped)

	ev, _, err := e.store.GetByID(ctx, first.EventID)
	require.NoError(t, err)
	assert.True(t, ev.GetBool("meta", "doc", "camera", "finalized"))
	items := asset.ItemsFromList(ev.GetList("meta", "doc", "camera", "items"))
	require.Len(t, items, 1)
	assert.Equal(t, "cam_A100_2023-11-14_00010203.jpg", items[0].Full)
}

func TestPostWrite_ConcurrentCallerSeesFinalized(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.capture(t, "S1", "a.jpg")

	plan, err := e.orch.Prepare(ctx, Request{Source: "camera", Type: "doc", Patch: cameraPatch("A100", "S1", item("a.jpg", 900))})
	require.NoError(t, err)
	res, err := e.store.Upsert(ctx, plan.Source, plan.Type, plan.Patch)
	require.NoError(t, err)
	id := res.ID()

	locks := make(chan struct{}, 2)
	e.finalizer.lockHook = func() { locks <- struct{}{} }

	type outcome struct {
		res PostWriteResult
		err error
	}
	second := make(chan outcome, 1)
	e.finalizer.finalizeHook = func() {
		<-locks
		// The second caller has read finalized=false and is about to wait
		// for the lease this call holds.
		go func() {
			r, err := e.orch.PostWrite(ctx, id)
			second <- outcome{r, err}
		}()
		<-locks
	}

	first, err := e.orch.PostWrite(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, PostWriteResult{OK: true, Items: 1}, first)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, PostWriteResult{OK: true, Skipped: SkippedAlreadyFinalized}, got.res)
	assert.Equal(t, int32(1), e.finalizer.calls.Load())
}

func TestCommit_CameraRejectsBadKNOrSession(t *testing.T) {
	tests := []struct {
		name    string
		kn      string
		session string
	}{
		{"empty session", "A100", ""},
		{"empty kn", "", "S1"},
		{"unsafe session", "A100", "../S1"},
		{"unsafe kn", "A/100", "S1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			req := Request{Source: "camera", Type: "doc", Patch: cameraPatch(tt.kn, tt.session, item("a.jpg", 900))}

			for attempt := 0; attempt < 2; attempt++ {
				resp := e.orch.Commit(ctx, req)
				assert.False(t, resp.OK)
				assert.False(t, resp.Written)
				assert.Equal(t, "bad_kn_or_session", resp.Error)
			}

			all, err := e.store.ReadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Empty(t, e.sink.changes)
			assert.Equal(t, int32(0), e.finalizer.calls.Load())
		})
	}
}
