package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/testutil"
)

var (
	testSources = []string{"pbx", "remote", "camera", "manual"}
	testTypes   = []string{"call", "session", "doc", "note"}
)

type testEnv struct {
	store *Store
	clock *testutil.Clock
	path  string
}

// createTestStore creates a store over a fresh temp directory with a
// deterministic clock starting at 1000 and ids evt-0001, evt-0002, ...
func createTestStore(t *testing.T, maxItems int, opts ...Option) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	clock := testutil.NewClock(1000)
	base := []Option{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceIDs("evt")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	s := New(Config{
		Path:     path,
		MaxItems: maxItems,
		Sources:  testSources,
		Types:    testTypes,
	}, append(base, opts...)...)
	return &testEnv{store: s, clock: clock, path: path}
}

func refPatch(ns, id string) doc.Object {
	return doc.Object{event.KeyRefs: testutil.RefList(event.Ref{NS: ns, ID: id})}
}

func withField(obj doc.Object, value doc.Value, keys ...string) doc.Object {
	obj.Set(value, keys...)
	return obj
}
