package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
	"github.com/roach88/ledger/internal/testutil"
)

func TestReadAll_MissingFileIsEmpty(t *testing.T) {
	env := createTestStore(t, 0)

	events, err := env.store.ReadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestReadAll_UnusableContentIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"blank", "  \n"},
		{"garbage", "not json at all"},
		{"scalar", "42"},
		{"object without events", `{"items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := createTestStore(t, 0)
			require.NoError(t, os.WriteFile(env.path, []byte(tt.content), 0o644))

			events, err := env.store.ReadAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, events)

			// Reads never rewrite or back up the file.
			data, err := os.ReadFile(env.path)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data))
		})
	}
}

func TestReadAll_SkipsNonObjectEntries(t *testing.T) {
	env := createTestStore(t, 0)
	require.NoError(t, os.WriteFile(env.path, []byte(`[{"id":"a"},7,"x",{"id":"b"}]`), 0o644))

	events, err := env.store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", event.ID(events[0]))
	assert.Equal(t, "b", event.ID(events[1]))
}

func TestReadAll_LegacyWrapper(t *testing.T) {
	env := createTestStore(t, 0)
	require.NoError(t, os.WriteFile(env.path, []byte(`{"events":[{"id":"a"}]}`), 0o644))

	events, err := env.store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", event.ID(events[0]))
}

func TestGetByID(t *testing.T) {
	env := createTestStore(t, 0)
	ctx := context.Background()

	res, err := env.store.Upsert(ctx, "manual", "note", doc.Object{})
	require.NoError(t, err)

	got, ok, err := env.store.GetByID(ctx, res.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res.Event, got)

	_, ok, err = env.store.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = env.store.GetByID(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByRef_PrefersMostRecentlyUpdated(t *testing.T) {
	env := createTestStore(t, 0)
	ctx := context.Background()

	older, err := env.store.Upsert(ctx, "pbx", "call", refPatch("pbx", "A"))
	require.NoError(t, err)
	env.clock.Advance(10)
	newer, err := env.store.Upsert(ctx, "pbx", "call", refPatch("pbx", "B"))
	require.NoError(t, err)

	// Give the older event a second ref shared with the newer one.
	env.clock.Advance(10)
	_, err = env.store.Upsert(ctx, "pbx", "call", doc.Object{
		"id":   doc.String(older.ID()),
		"refs": testutil.RefList(event.Ref{NS: "pbx", ID: "A"}, event.Ref{NS: "pbx", ID: "B"}),
	})
	require.NoError(t, err)

	got, ok, err := env.store.GetByRef(ctx, "pbx", "B")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, older.ID(), event.ID(got))

	all, err := env.store.GetByRefAll(ctx, "pbx", "B")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, older.ID(), event.ID(all[0]))
	assert.Equal(t, newer.ID(), event.ID(all[1]))

	// A write correlating on the shared ref lands on the same document.
	res, err := env.store.Upsert(ctx, "pbx", "call", refPatch("pbx", "B"))
	require.NoError(t, err)
	assert.Equal(t, older.ID(), res.ID())
}

func TestGetByRef_TieGoesToLaterPosition(t *testing.T) {
	env := createTestStore(t, 0)
	content := `[
		{"id":"first","updated_at":50,"refs":[{"ns":"remote","id":"R1"}]},
		{"id":"second","updated_at":50,"refs":[{"ns":"remote","id":"R1"}]}
	]`
	require.NoError(t, os.WriteFile(env.path, []byte(content), 0o644))

	got, ok, err := env.store.GetByRef(context.Background(), "remote", "R1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", event.ID(got))
}

func TestGetByRef_NoMatch(t *testing.T) {
	env := createTestStore(t, 0)
	ctx := context.Background()

	_, err := env.store.Upsert(ctx, "pbx", "call", refPatch("pbx", "A"))
	require.NoError(t, err)

	_, ok, err := env.store.GetByRef(ctx, "camera", "A")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := env.store.GetByRefAll(ctx, "pbx", "Z")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestQuery_SortsBySortKeyDescending(t *testing.T) {
	env := createTestStore(t, 0)
	content := `[
		{"id":"a","source":"pbx","type":"call","timing":{"started_at":300},"updated_at":1},
		{"id":"b","source":"pbx","type":"call","timing":{"ended_at":500},"updated_at":1},
		{"id":"c","source":"manual","type":"note","updated_at":400},
		{"id":"d","source":"manual","type":"note","created_at":100},
		{"id":"e","source":"manual","type":"note","created_at":400}
	]`
	require.NoError(t, os.WriteFile(env.path, []byte(content), 0o644))

	events, err := env.store.Query(context.Background(), Filter{})
	require.NoError(t, err)

	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = event.ID(ev)
	}
	// c and e tie at 400 and keep storage order.
	assert.Equal(t, []string{"b", "c", "e", "a", "d"}, ids)
}

func TestQuery_FilterAndLimit(t *testing.T) {
	env := createTestStore(t, 0)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		_, err := env.store.Upsert(ctx, "pbx", "call", refPatch("pbx", id))
		require.NoError(t, err)
		env.clock.Advance(1)
	}
	closed := refPatch("pbx", "2")
	closed.Set(doc.String(event.StateClosed), "workflow", "state")
	_, err := env.store.Upsert(ctx, "pbx", "call", closed)
	require.NoError(t, err)
	_, err = env.store.Upsert(ctx, "manual", "note", doc.Object{})
	require.NoError(t, err)

	open, err := env.store.Query(ctx, Filter{States: []string{event.StateOpen}, Sources: []string{"pbx"}})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "evt-0003", event.ID(open[0]))
	assert.Equal(t, "evt-0001", event.ID(open[1]))

	notes, err := env.store.Query(ctx, Filter{Types: []string{"note"}})
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	limited, err := env.store.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
