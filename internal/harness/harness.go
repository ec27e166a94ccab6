package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/ledger/internal/asset"
	"github.com/roach88/ledger/internal/commit"
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/store"
	"github.com/roach88/ledger/internal/testutil"
)

// Default allow-lists for scenarios that set none.
var (
	DefaultSources = []string{"pbx", "remote", "camera", "manual"}
	DefaultTypes   = []string{"call", "session", "doc", "note"}
)

// captureContent is written to every staged capture file.
const captureContent = "capture"

// Harness is the scenario execution engine. It wires the real components
// over a private directory with deterministic clock, ids and randomness.
type Harness struct {
	store   *store.Store
	orch    *commit.Orchestrator
	clock   *testutil.Clock
	changes *changeLog
	tmpRoot string
	data    string
	logger  *slog.Logger
}

// changeLog is an in-memory store.ChangeSink.
type changeLog struct {
	mu      sync.Mutex
	changes []store.Change
}

func (c *changeLog) Record(_ context.Context, ch store.Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
	return nil
}

func (c *changeLog) snapshot() []store.Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Change{}, c.changes...)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh temporary directory holding the
// collection, the temp capture root and the data root; it is removed
// afterwards. Step failures are outcomes, not errors: Run only returns an
// error when the scenario cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "ledger-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(root)

	h := newHarness(root, scenario)
	ctx := context.Background()

	if err := h.stage(scenario.Captures); err != nil {
		return nil, fmt.Errorf("failed to stage captures: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	events, err := h.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read final collection: %w", err)
	}
	result.Events = events
	result.Changes = h.changes.snapshot()

	actx := &AssertionContext{TmpRoot: h.tmpRoot, DataRoot: h.data}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func newHarness(root string, scenario *Scenario) *Harness {
	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}
	sources := scenario.Config.Sources
	if len(sources) == 0 {
		sources = DefaultSources
	}
	types := scenario.Config.Types
	if len(types) == 0 {
		types = DefaultTypes
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios
	clock := testutil.NewClock(start)
	changes := &changeLog{}
	tmpRoot := filepath.Join(root, "tmp")
	dataRoot := filepath.Join(root, "assets")

	st := store.New(store.Config{
		Path:     filepath.Join(root, "events.json"),
		MaxItems: scenario.Config.MaxItems,
		Sources:  sources,
		Types:    types,
	},
		store.WithClock(clock),
		store.WithIDGenerator(testutil.NewSequenceIDs("evt")),
		store.WithLogger(logger),
		store.WithChangeSink(changes),
	)
	fin := asset.New(asset.Config{
		TmpRoot:      tmpRoot,
		DataRoot:     dataRoot,
		ModuleSubdir: "camera",
	},
		asset.WithRandom(&testutil.CountingReader{}),
		asset.WithLogger(logger),
	)

	return &Harness{
		store:   st,
		orch:    commit.New(st, fin, commit.DefaultConfig(), commit.WithLogger(logger)),
		clock:   clock,
		changes: changes,
		tmpRoot: tmpRoot,
		data:    dataRoot,
		logger:  logger,
	}
}

// stage writes capture files under the temp root.
func (h *Harness) stage(files []string) error {
	for _, rel := range files {
		p := filepath.Join(h.tmpRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(captureContent), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		outcome, res, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}
		ev := result.AddTrace(step.Op, h.clock.Now(), outcome, res)
		h.logger.Debug("flow step completed", "step", ev.Step, "op", ev.Op, "outcome", ev.Outcome)

		if step.Expect == nil {
			continue
		}
		if ev.Outcome != step.Expect.Outcome {
			result.AddError(fmt.Sprintf("flow[%d] %s: expected outcome %q, got %q", i, step.Op, step.Expect.Outcome, ev.Outcome))
			continue
		}
		if step.Expect.Result != nil {
			ok, err := containsAny(ev.Result, step.Expect.Result)
			if err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
			if !ok {
				result.AddError(fmt.Sprintf("flow[%d] %s: result %v does not contain %v", i, step.Op, ev.Result, step.Expect.Result))
			}
		}
	}
	return nil
}

// execute runs one step and returns its outcome and result map. The
// returned error is reserved for malformed steps.
func (h *Harness) execute(ctx context.Context, step FlowStep) (string, map[string]any, error) {
	switch step.Op {
	case OpUpsert:
		patch, err := patchObject(step.Patch)
		if err != nil {
			return "", nil, err
		}
		res, err := h.store.Upsert(ctx, step.Source, step.Type, patch)
		if err != nil {
			return commit.CodeOf(err), nil, nil
		}
		return OutcomeOK, map[string]any{"event_id": res.ID(), "is_new": res.IsNew}, nil

	case OpCommit:
		patch, err := patchObject(step.Patch)
		if err != nil {
			return "", nil, err
		}
		resp := h.orch.Commit(ctx, commit.Request{
			EventID:       step.EventID,
			WorkflowState: step.WorkflowState,
			Source:        step.Source,
			Type:          step.Type,
			Patch:         patch,
		})
		return commitOutcome(resp), commitResult(resp), nil

	case OpPostWrite:
		pw, err := h.orch.PostWrite(ctx, step.EventID)
		if err != nil {
			return pw.Error, postWriteResult(pw), nil
		}
		return OutcomeOK, postWriteResult(pw), nil

	case OpGetRef:
		ev, ok, err := h.store.GetByRef(ctx, step.Ref.NS, step.Ref.ID)
		if err != nil {
			return commit.CodeOf(err), nil, nil
		}
		if !ok {
			return string(store.CodeNotFound), nil, nil
		}
		return OutcomeOK, map[string]any{"event_id": ev.GetString("id")}, nil

	case OpQuery:
		var f store.Filter
		if step.Filter != nil {
			f = store.Filter{
				States:  step.Filter.States,
				Sources: step.Filter.Sources,
				Types:   step.Filter.Types,
				Limit:   step.Filter.Limit,
			}
		}
		events, err := h.store.Query(ctx, f)
		if err != nil {
			return commit.CodeOf(err), nil, nil
		}
		ids := make([]any, len(events))
		for i, ev := range events {
			ids[i] = ev.GetString("id")
		}
		return OutcomeOK, map[string]any{"ids": ids}, nil

	case OpCapture:
		if err := h.stage(step.Files); err != nil {
			return "", nil, err
		}
		return OutcomeOK, nil, nil

	case OpAdvance:
		h.clock.Advance(step.Seconds)
		return OutcomeOK, nil, nil
	}
	return "", nil, fmt.Errorf("unknown op %q", step.Op)
}

func patchObject(raw map[string]any) (doc.Object, error) {
	v, err := doc.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("patch: %w", err)
	}
	obj, ok := v.(doc.Object)
	if !ok {
		return nil, fmt.Errorf("patch: expected object, got %s", doc.KindOf(v))
	}
	return obj, nil
}

func commitOutcome(resp commit.Response) string {
	if resp.OK {
		return OutcomeOK
	}
	return resp.Error
}

// commitResult keeps the deterministic parts of a commit response.
// Messages are left out since they may carry temporary paths.
func commitResult(resp commit.Response) map[string]any {
	if !resp.Written {
		return nil
	}
	out := map[string]any{
		"event_id": resp.EventID,
		"written":  resp.Written,
		"created":  resp.Created,
	}
	if resp.PostWrite != nil {
		out["post_write"] = postWriteResult(*resp.PostWrite)
	}
	return out
}

func postWriteResult(pw commit.PostWriteResult) map[string]any {
	out := map[string]any{"ok": pw.OK}
	if pw.Skipped != "" {
		out["skipped"] = pw.Skipped
	}
	if pw.Items > 0 {
		out["items"] = pw.Items
	}
	if pw.Error != "" {
		out["error"] = pw.Error
	}
	return out
}
