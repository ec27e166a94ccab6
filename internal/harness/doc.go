// Package harness runs YAML scenarios against the ledger.
//
// A scenario drives the real store, asset finalizer and commit
// orchestrator through a flow of steps, then checks the resulting trace,
// the final collection and the files on disk.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	start: 1700000000          # clock start, epoch seconds
//	captures:                  # files staged under the temp root
//	  - camera/S1/a.jpg
//	  - camera/S1/thumb/a_t.jpg
//	flow:
//	  - op: commit
//	    source: camera
//	    type: doc
//	    patch: { meta: { doc: { camera: { kn: A100, session: S1 } } } }
//	    expect:
//	      outcome: ok
//	      result: { created: true }
//	assertions:
//	  - type: final_state
//	    ref: { ns: camera, id: S1 }
//	    expect: { meta: { doc: { camera: { finalized: true } } } }
//
// # Operations
//
//   - upsert: Store.Upsert with source, type and patch
//   - commit: Orchestrator.Commit with event_id, workflow_state, source, type and patch
//   - post_write: Orchestrator.PostWrite for event_id
//   - get_ref: Store.GetByRef for ref
//   - query: Store.Query with filter
//   - capture: stage more files under the temp root
//   - advance: move the clock forward by seconds
//
// Every step is recorded in the trace with the clock reading after it ran,
// its outcome ("ok" or the error code) and a small result map.
//
// # Assertion Types
//
//   - trace_contains: a step with op (and outcome, when given) exists
//   - trace_order: ops appear in the given order
//   - trace_count: op appears exactly count times
//   - final_state: the event selected by event_id or ref contains expect
//   - event_count: the final collection holds count events
//   - file_exists / file_absent: path under root "tmp" or "data"
//
// # Deterministic Testing
//
// Each run gets a fresh temporary directory, a manual clock, sequential
// event ids (evt-0001, ...) and a counting byte source for asset names, so
// identical scenarios produce identical traces and collections for golden
// comparison.
package harness
