package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the clock reading a scenario starts at when it sets none.
const DefaultStart int64 = 1000

// Scenario defines a ledger scenario: staged captures, a flow of operations
// and assertions on the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading; zero means DefaultStart.
	Start int64 `yaml:"start,omitempty"`

	// Config overrides the store settings used for the run.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Captures are files staged under the temp root before the flow,
	// relative to that root.
	Captures []string `yaml:"captures,omitempty"`

	// Flow contains the operations to execute in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace, collection and files.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ScenarioConfig overrides store settings. Empty allow-lists take the
// defaults pbx/remote/camera/manual and call/session/doc/note.
type ScenarioConfig struct {
	MaxItems int      `yaml:"max_items,omitempty"`
	Sources  []string `yaml:"sources,omitempty"`
	Types    []string `yaml:"types,omitempty"`
}

// Flow operations.
const (
	OpUpsert    = "upsert"
	OpCommit    = "commit"
	OpPostWrite = "post_write"
	OpGetRef    = "get_ref"
	OpQuery     = "query"
	OpCapture   = "capture"
	OpAdvance   = "advance"
)

var knownOps = []string{OpUpsert, OpCommit, OpPostWrite, OpGetRef, OpQuery, OpCapture, OpAdvance}

// FlowStep is one operation of the flow.
type FlowStep struct {
	Op string `yaml:"op"`

	Source        string         `yaml:"source,omitempty"`
	Type          string         `yaml:"type,omitempty"`
	EventID       string         `yaml:"event_id,omitempty"`
	WorkflowState string         `yaml:"workflow_state,omitempty"`
	Patch         map[string]any `yaml:"patch,omitempty"`

	// Ref is the lookup key for get_ref.
	Ref *RefSelector `yaml:"ref,omitempty"`

	// Filter narrows query.
	Filter *QueryFilter `yaml:"filter,omitempty"`

	// Files are staged by capture, relative to the temp root.
	Files []string `yaml:"files,omitempty"`

	// Seconds is how far advance moves the clock.
	Seconds int64 `yaml:"seconds,omitempty"`

	// Expect, when set, is checked against the step's trace entry.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// RefSelector names one (ns, id) tuple.
type RefSelector struct {
	NS string `yaml:"ns"`
	ID string `yaml:"id"`
}

// QueryFilter mirrors store.Filter.
type QueryFilter struct {
	States  []string `yaml:"states,omitempty"`
	Sources []string `yaml:"sources,omitempty"`
	Types   []string `yaml:"types,omitempty"`
	Limit   int      `yaml:"limit,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Outcome is "ok" or the expected error code.
	Outcome string `yaml:"outcome"`

	// Result is matched as a subset of the step result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace, the final collection or the filesystem.
type Assertion struct {
	Type string `yaml:"type"`

	// Op and Outcome are used by trace_contains and trace_count.
	Op      string `yaml:"op,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Count is used by trace_count and event_count.
	Count int `yaml:"count,omitempty"`

	// EventID or Ref select the event for final_state.
	EventID string       `yaml:"event_id,omitempty"`
	Ref     *RefSelector `yaml:"ref,omitempty"`

	// Expect is matched as a subset of the selected event.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Root ("tmp" or "data") and Path locate a file for file_exists and
	// file_absent.
	Root string `yaml:"root,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertEventCount    = "event_count"
	AssertFileExists    = "file_exists"
	AssertFileAbsent    = "file_absent"
)

// File roots.
const (
	RootTmp  = "tmp"
	RootData = "data"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Start < 0 {
		return fmt.Errorf("start must be >= 0")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, p := range s.Captures {
		if !filepath.IsLocal(p) {
			return fmt.Errorf("captures[%d]: %q must be a relative path inside the temp root", i, p)
		}
	}
	for i := range s.Flow {
		if err := validateStep(i, &s.Flow[i]); err != nil {
			return err
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single flow step based on its op.
func validateStep(index int, step *FlowStep) error {
	if !slices.Contains(knownOps, step.Op) {
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}

	switch step.Op {
	case OpUpsert:
		if step.Source == "" || step.Type == "" {
			return fmt.Errorf("flow[%d]: source and type are required for upsert", index)
		}
		if step.Patch == nil {
			return fmt.Errorf("flow[%d]: patch is required (use empty map if no fields)", index)
		}
	case OpCommit:
		if step.Patch == nil {
			return fmt.Errorf("flow[%d]: patch is required (use empty map if no fields)", index)
		}
	case OpPostWrite:
		if step.EventID == "" {
			return fmt.Errorf("flow[%d]: event_id is required for post_write", index)
		}
	case OpGetRef:
		if step.Ref == nil || step.Ref.NS == "" || step.Ref.ID == "" {
			return fmt.Errorf("flow[%d]: ref with ns and id is required for get_ref", index)
		}
	case OpCapture:
		if len(step.Files) == 0 {
			return fmt.Errorf("flow[%d]: files list is required for capture", index)
		}
		for _, p := range step.Files {
			if !filepath.IsLocal(p) {
				return fmt.Errorf("flow[%d]: %q must be a relative path inside the temp root", index, p)
			}
		}
	case OpAdvance:
		if step.Seconds <= 0 {
			return fmt.Errorf("flow[%d]: seconds must be > 0 for advance", index)
		}
	}

	if step.Expect != nil && step.Expect.Outcome == "" {
		return fmt.Errorf("flow[%d].expect: outcome is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertFinalState:
		if a.EventID == "" && a.Ref == nil {
			return fmt.Errorf("assertions[%d]: event_id or ref is required for final_state", index)
		}
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be >= 0", index)
		}
	case AssertFileExists, AssertFileAbsent:
		if a.Root != RootTmp && a.Root != RootData {
			return fmt.Errorf("assertions[%d]: root must be %q or %q", index, RootTmp, RootData)
		}
		if !filepath.IsLocal(a.Path) {
			return fmt.Errorf("assertions[%d]: path %q must be relative to its root", index, a.Path)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
