package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/weftrun/weft/internal/trace"
	"github.com/weftrun/weft/internal/workload"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Events   []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] strand=%d %s %v\n", event.Seq, event.Strand, event.Kind, event.Detail)
		}
	}

	return buf.String()
}

// applyAssertion evaluates one assertion against a run result.
func applyAssertion(result *Result, a *Assertion) error {
	run := result.Run

	switch a.Type {
	case AssertStepValue:
		return assertStepValue(run, a)
	case AssertStepFailure, AssertStepProtocol, AssertStepSkipped:
		return assertStepText(run, a)
	case AssertTraceContains:
		return assertTraceContains(run.Events, a)
	case AssertTraceOrder:
		return assertTraceOrder(run.Events, a)
	case AssertTraceCount:
		return assertTraceCount(run.Events, a)
	case AssertRunError:
		return assertRunError(result, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertStepValue checks that the named step settled with exactly the
// expected value.
func assertStepValue(run *workload.RunResult, a *Assertion) error {
	sr := stepResult(run, a.Step)
	if sr == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q present in the run", a.Step),
			Actual:   "step not found",
			Events:   run.Events,
		}
	}

	var blocked string
	switch {
	case sr.Failure != "":
		blocked = fmt.Sprintf("step failed: %s", sr.Failure)
	case sr.Protocol != "":
		blocked = fmt.Sprintf("dispatch rejected: %s", sr.Protocol)
	case sr.Skipped != "":
		blocked = fmt.Sprintf("step skipped: %s", sr.Skipped)
	}
	if blocked != "" {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q settled with a value", a.Step),
			Actual:   blocked,
			Events:   run.Events,
		}
	}

	expected, err := normalizeValue("assertion value", a.Value)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(sr.Value, expected) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q value %v (%T)", a.Step, expected, expected),
			Actual:   fmt.Sprintf("value %v (%T)", sr.Value, sr.Value),
			Events:   run.Events,
		}
	}
	return nil
}

// assertStepText checks the step's failure, dispatch-error, or skip text
// for a substring, depending on the assertion type.
func assertStepText(run *workload.RunResult, a *Assertion) error {
	sr := stepResult(run, a.Step)
	if sr == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q present in the run", a.Step),
			Actual:   "step not found",
			Events:   run.Events,
		}
	}

	var actual, field string
	switch a.Type {
	case AssertStepFailure:
		actual, field = sr.Failure, "failure"
	case AssertStepProtocol:
		actual, field = sr.Protocol, "dispatch error"
	case AssertStepSkipped:
		actual, field = sr.Skipped, "skip reason"
	}

	if actual == "" {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q %s containing %q", a.Step, field, a.Contains),
			Actual:   fmt.Sprintf("step has no %s", field),
			Events:   run.Events,
		}
	}
	if !strings.Contains(actual, a.Contains) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("step %q %s containing %q", a.Step, field, a.Contains),
			Actual:   fmt.Sprintf("%s %q", field, actual),
			Events:   run.Events,
		}
	}
	return nil
}

// assertTraceContains checks if the trace contains an event matching the
// specified kind and detail (subset match).
func assertTraceContains(events []trace.Event, a *Assertion) error {
	for _, event := range events {
		if event.Kind != a.Kind {
			continue
		}
		if matchDetail(event.Detail, a.Detail) {
			return nil // Found matching event
		}
	}

	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("event %s with detail %v", a.Kind, a.Detail),
		Actual:   "not found in trace",
		Events:   events,
	}
}

// assertTraceOrder checks if event kinds appear in the specified order.
// Kinds don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(events []trace.Event, a *Assertion) error {
	// Step 1: Find first position of each expected kind
	positions := make(map[string]int)

	for i, event := range events {
		for _, kind := range a.Kinds {
			if event.Kind == kind && positions[kind] == 0 {
				positions[kind] = i + 1 // 1-indexed for readability
			}
		}
	}

	// Step 2: Verify all kinds found
	for _, kind := range a.Kinds {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("all event kinds present: %v", a.Kinds),
				Actual:   fmt.Sprintf("missing kind: %s", kind),
				Events:   events,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(a.Kinds); i++ {
		prev := a.Kinds[i-1]
		curr := a.Kinds[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("event kinds in order: %v", a.Kinds),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Events: events,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the event kind appears exactly the
// specified number of times.
func assertTraceCount(events []trace.Event, a *Assertion) error {
	count := 0
	for _, event := range events {
		if event.Kind == a.Kind {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Events:   events,
		}
	}

	return nil
}

// assertRunError checks that the run failed with an error containing the
// expected text.
func assertRunError(result *Result, a *Assertion) error {
	if result.RunErr == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("run error containing %q", a.Contains),
			Actual:   "the run completed without error",
			Events:   result.Run.Events,
		}
	}
	if !strings.Contains(result.RunErr.Error(), a.Contains) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("run error containing %q", a.Contains),
			Actual:   fmt.Sprintf("run error %q", result.RunErr.Error()),
			Events:   result.Run.Events,
		}
	}
	return nil
}

// matchDetail checks if actual detail contains all expected entries
// (subset match). Extra keys in actual are ignored.
func matchDetail(actual, expected map[string]string) bool {
	for key, want := range expected {
		if actual[key] != want {
			return false
		}
	}
	return true
}
