package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s %v\n", ev.Step, ev.Op, ev.Outcome, ev.Result)
		}
	}
	return buf.String()
}

// AssertionContext locates the run's file roots for file assertions.
type AssertionContext struct {
	TmpRoot  string
	DataRoot string
}

// assertTraceContains checks that a step with the op (and outcome, when
// given) exists.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, ev := range trace {
		if ev.Op == assertion.Op && (assertion.Outcome == "" || ev.Outcome == assertion.Outcome) {
			return nil
		}
	}
	expected := "op " + assertion.Op
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(assertion.Ops) && ev.Op == assertion.Ops[next] {
			next++
		}
	}
	if next == len(assertion.Ops) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
		Actual:   fmt.Sprintf("matched only %v", assertion.Ops[:next]),
		Trace:    trace,
	}
}

// assertTraceCount checks that the op appears exactly the specified
// number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == assertion.Op && (assertion.Outcome == "" || ev.Outcome == assertion.Outcome) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState selects an event by id or ref and checks it contains
// the expected fields (subset semantics).
func assertFinalState(events []doc.Object, assertion Assertion) error {
	var (
		target doc.Object
		where  string
	)
	if assertion.EventID != "" {
		where = "id " + assertion.EventID
		if i := event.IndexByID(events, assertion.EventID); i != event.NoMatch {
			target = events[i]
		}
	} else {
		ref := event.Ref{NS: assertion.Ref.NS, ID: assertion.Ref.ID}
		where = "ref " + ref.NS + ":" + ref.ID
		if idx := event.MatchRef(events, ref); len(idx) > 0 {
			target = events[idx[0]]
		}
	}
	if target == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "event with " + where,
			Actual:   "no such event",
		}
	}

	ok, err := containsAny(doc.ToAny(target), assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}
	if !ok {
		got, _ := doc.MarshalCanonical(target)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("event with %s containing %v", where, assertion.Expect),
			Actual:   string(got),
		}
	}
	return nil
}

func assertEventCount(events []doc.Object, assertion Assertion) error {
	if len(events) != assertion.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events", assertion.Count),
			Actual:   fmt.Sprintf("%d events", len(events)),
		}
	}
	return nil
}

func assertFile(actx *AssertionContext, assertion Assertion) error {
	root := actx.TmpRoot
	if assertion.Root == RootData {
		root = actx.DataRoot
	}
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(assertion.Path)))
	exists := err == nil

	want := assertion.Type == AssertFileExists
	if exists == want {
		return nil
	}
	actual := "absent"
	if exists {
		actual = "present"
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("%s:%s %s", assertion.Root, assertion.Path, strings.TrimPrefix(assertion.Type, "file_")),
		Actual:   actual,
	}
}

// containsAny converts both sides to doc values and reports whether actual
// contains expected.
func containsAny(actual any, expected map[string]any) (bool, error) {
	a, err := doc.FromAny(actual)
	if err != nil {
		return false, err
	}
	e, err := doc.FromAny(expected)
	if err != nil {
		return false, err
	}
	return contains(a, e), nil
}

// contains reports whether actual matches expected. Objects match as a
// subset (extra keys in actual are ignored); lists must have the same
// length and match element-wise; scalars must be equal.
func contains(actual, expected doc.Value) bool {
	switch exp := expected.(type) {
	case doc.Object:
		act, ok := actual.(doc.Object)
		if !ok {
			return false
		}
		for k, ev := range exp {
			av, ok := act[k]
			if !ok || !contains(av, ev) {
				return false
			}
		}
		return true
	case doc.List:
		act, ok := actual.(doc.List)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !contains(act[i], exp[i]) {
				return false
			}
		}
		return true
	}
	switch actual.(type) {
	case doc.Object, doc.List:
		return false
	}
	return actual == expected
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.Events, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Events, assertion)
		case AssertFileExists, AssertFileAbsent:
			if actx == nil {
				err = fmt.Errorf("assertion[%d]: %s requires file roots", i, assertion.Type)
			} else {
				err = assertFile(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
