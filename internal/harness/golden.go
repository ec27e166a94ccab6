package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ledger/internal/doc"
)

// Snapshot captures the observable outcome of a scenario execution: the
// trace, the change notifications and the final collection.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonical converts a Snapshot to a doc.Object for canonical JSON
// serialization.
func (s *Snapshot) toCanonical() (doc.Object, error) {
	trace := make([]any, len(s.Result.Trace))
	for i, ev := range s.Result.Trace {
		m := map[string]any{
			"step":    ev.Step,
			"op":      ev.Op,
			"at":      ev.At,
			"outcome": ev.Outcome,
		}
		if ev.Result != nil {
			m["result"] = ev.Result
		}
		trace[i] = m
	}

	changes := make([]any, len(s.Result.Changes))
	for i, c := range s.Result.Changes {
		m := map[string]any{
			"event_id": c.EventID,
			"action":   c.Action,
			"at":       c.At,
		}
		if c.Detail != "" {
			m["detail"] = c.Detail
		}
		changes[i] = m
	}

	events := make(doc.List, len(s.Result.Events))
	for i, ev := range s.Result.Events {
		events[i] = ev
	}

	v, err := doc.FromAny(map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"changes":       changes,
		"events":        events,
	})
	if err != nil {
		return nil, err
	}
	return v.(doc.Object), nil
}

// SnapshotJSON returns the canonical JSON bytes stored in a golden file.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{ScenarioName: scenarioName, Result: result}
	obj, err := snapshot.toCanonical()
	if err != nil {
		return nil, err
	}
	return doc.MarshalCanonical(obj)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass; golden mismatches
// fail t through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
