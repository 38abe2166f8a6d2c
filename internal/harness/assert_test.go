package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/internal/trace"
	"github.com/weftrun/weft/internal/workload"
)

// syntheticResult builds a Result without running a scheduler, for
// exercising assertions against hand-crafted step results and traces.
func syntheticResult(steps []workload.StepResult, events []trace.Event) *Result {
	return &Result{
		Scenario: &Scenario{Name: "synthetic"},
		Run: &workload.RunResult{
			Workload: "synthetic",
			Token:    "synthetic-1",
			Steps:    steps,
			Events:   events,
		},
	}
}

func TestAssertionError_Format(t *testing.T) {
	e := &AssertionError{
		Type:     "step_value",
		Expected: `step "fetch" value 42 (int64)`,
		Actual:   "value 41 (int64)",
	}

	want := "Assertion failed: step_value\n" +
		"  Expected: step \"fetch\" value 42 (int64)\n" +
		"  Actual: value 41 (int64)\n"
	assert.Equal(t, want, e.Error())
}

func TestAssertionError_FormatWithTrace(t *testing.T) {
	e := &AssertionError{
		Type:     "trace_count",
		Expected: "2 occurrences of relay_open",
		Actual:   "1 occurrences",
		Events: []trace.Event{
			{Seq: 1, Strand: 1, Kind: trace.KindStrandSpawn},
			{Seq: 2, Strand: 1, Kind: trace.KindRelayOpen, Detail: map[string]string{"callable": "fetch"}},
		},
	}

	got := e.Error()
	assert.Contains(t, got, "Assertion failed: trace_count\n")
	assert.Contains(t, got, "\nFull trace:\n")
	assert.Contains(t, got, "  [1] strand=1 strand_spawn map[]\n")
	assert.Contains(t, got, "  [2] strand=1 relay_open map[callable:fetch]\n")
}

func TestApplyAssertion_UnknownType(t *testing.T) {
	result := syntheticResult(nil, nil)

	err := applyAssertion(result, &Assertion{Type: "final_state"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown assertion type "final_state"`)
}

func TestAssertStepValue(t *testing.T) {
	tests := []struct {
		name       string
		step       workload.StepResult
		assertion  Assertion
		wantErr    string
		wantActual string
	}{
		{
			name:      "matching_value",
			step:      workload.StepResult{Step: "fetch", Value: int64(42)},
			assertion: Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
		},
		{
			name:      "matching_string",
			step:      workload.StepResult{Step: "fetch", Value: "done"},
			assertion: Assertion{Type: AssertStepValue, Step: "fetch", Value: "done"},
		},
		{
			name:       "wrong_value",
			step:       workload.StepResult{Step: "fetch", Value: int64(41)},
			assertion:  Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
			wantErr:    `step "fetch" value 42 (int64)`,
			wantActual: "value 41 (int64)",
		},
		{
			name:       "step_missing",
			step:       workload.StepResult{Step: "other"},
			assertion:  Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
			wantErr:    `step "fetch" present in the run`,
			wantActual: "step not found",
		},
		{
			name:       "step_failed",
			step:       workload.StepResult{Step: "fetch", Failure: "callable failed: boom"},
			assertion:  Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
			wantErr:    `step "fetch" settled with a value`,
			wantActual: "step failed: callable failed: boom",
		},
		{
			name:       "step_rejected",
			step:       workload.StepResult{Step: "fetch", Protocol: "RESULT_NOT_PUBLISHED: relay consumed empty"},
			assertion:  Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
			wantErr:    `step "fetch" settled with a value`,
			wantActual: "dispatch rejected: RESULT_NOT_PUBLISHED",
		},
		{
			name:       "step_skipped",
			step:       workload.StepResult{Step: "fetch", Skipped: `args[0]: step "dep" failed: boom`},
			assertion:  Assertion{Type: AssertStepValue, Step: "fetch", Value: 42},
			wantErr:    `step "fetch" settled with a value`,
			wantActual: "step skipped:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := syntheticResult([]workload.StepResult{tt.step}, nil)

			err := applyAssertion(result, &tt.assertion)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, ae.Expected, tt.wantErr)
			assert.Contains(t, ae.Actual, tt.wantActual)
		})
	}
}

func TestAssertStepValue_RejectsFloatExpectation(t *testing.T) {
	result := syntheticResult([]workload.StepResult{{Step: "fetch", Value: int64(3)}}, nil)

	err := applyAssertion(result, &Assertion{Type: AssertStepValue, Step: "fetch", Value: 3.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "float values are forbidden")
}

func TestAssertStepText(t *testing.T) {
	tests := []struct {
		name       string
		step       workload.StepResult
		assertion  Assertion
		wantErr    string
		wantActual string
	}{
		{
			name:      "failure_contains",
			step:      workload.StepResult{Step: "fetch", Failure: "callable failed: stock empty"},
			assertion: Assertion{Type: AssertStepFailure, Step: "fetch", Contains: "stock empty"},
		},
		{
			name:       "failure_mismatch",
			step:       workload.StepResult{Step: "fetch", Failure: "callable failed: stock empty"},
			assertion:  Assertion{Type: AssertStepFailure, Step: "fetch", Contains: "timeout"},
			wantErr:    `step "fetch" failure containing "timeout"`,
			wantActual: `failure "callable failed: stock empty"`,
		},
		{
			name:       "failure_absent",
			step:       workload.StepResult{Step: "fetch", Value: int64(1)},
			assertion:  Assertion{Type: AssertStepFailure, Step: "fetch", Contains: "boom"},
			wantErr:    "failure containing",
			wantActual: "step has no failure",
		},
		{
			name:      "protocol_contains",
			step:      workload.StepResult{Step: "fetch", Protocol: "RELAY_REENTRANCY: relay already open"},
			assertion: Assertion{Type: AssertStepProtocol, Step: "fetch", Contains: "RELAY_REENTRANCY"},
		},
		{
			name:       "protocol_absent",
			step:       workload.StepResult{Step: "fetch"},
			assertion:  Assertion{Type: AssertStepProtocol, Step: "fetch", Contains: "RELAY_REENTRANCY"},
			wantErr:    "dispatch error containing",
			wantActual: "step has no dispatch error",
		},
		{
			name:      "skipped_contains",
			step:      workload.StepResult{Step: "use", Skipped: `args[0]: step "fetch" produced no handle`},
			assertion: Assertion{Type: AssertStepSkipped, Step: "use", Contains: "produced no handle"},
		},
		{
			name:       "skipped_absent",
			step:       workload.StepResult{Step: "use", Value: int64(1)},
			assertion:  Assertion{Type: AssertStepSkipped, Step: "use", Contains: "no handle"},
			wantErr:    "skip reason containing",
			wantActual: "step has no skip reason",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := syntheticResult([]workload.StepResult{tt.step}, nil)

			err := applyAssertion(result, &tt.assertion)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, ae.Expected, tt.wantErr)
			assert.Contains(t, ae.Actual, tt.wantActual)
		})
	}
}

func TestAssertTraceContains(t *testing.T) {
	events := []trace.Event{
		{Seq: 1, Strand: 1, Kind: trace.KindDispatch, Detail: map[string]string{"callable": "fetch", "eligible": "true"}},
		{Seq: 2, Strand: 1, Kind: trace.KindRelayOpen, Detail: map[string]string{"callable": "fetch"}},
	}
	result := syntheticResult(nil, events)

	// Subset match: extra keys on the event are fine
	err := applyAssertion(result, &Assertion{
		Type: AssertTraceContains, Kind: "dispatch",
		Detail: map[string]string{"callable": "fetch"},
	})
	assert.NoError(t, err)

	// Kind-only match when no detail is given
	err = applyAssertion(result, &Assertion{Type: AssertTraceContains, Kind: "relay_open"})
	assert.NoError(t, err)

	// Right kind, wrong detail
	err = applyAssertion(result, &Assertion{
		Type: AssertTraceContains, Kind: "dispatch",
		Detail: map[string]string{"callable": "other"},
	})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Expected, "event dispatch with detail")
	assert.Equal(t, "not found in trace", ae.Actual)

	// Absent kind
	err = applyAssertion(result, &Assertion{Type: AssertTraceContains, Kind: "relay_consume"})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "not found in trace", ae.Actual)
}

func TestAssertTraceOrder(t *testing.T) {
	events := []trace.Event{
		{Seq: 1, Strand: 1, Kind: trace.KindStrandSpawn},
		{Seq: 2, Strand: 1, Kind: trace.KindDispatch},
		{Seq: 3, Strand: 1, Kind: trace.KindRelayOpen},
		{Seq: 4, Strand: 1, Kind: trace.KindRelayConsume},
		{Seq: 5, Strand: 1, Kind: trace.KindStrandFinish},
	}
	result := syntheticResult(nil, events)

	err := applyAssertion(result, &Assertion{
		Type:  AssertTraceOrder,
		Kinds: []string{"strand_spawn", "relay_open", "strand_finish"},
	})
	assert.NoError(t, err, "non-consecutive kinds in order")

	err = applyAssertion(result, &Assertion{
		Type:  AssertTraceOrder,
		Kinds: []string{"strand_spawn", "relay_publish"},
	})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "missing kind: relay_publish", ae.Actual)

	err = applyAssertion(result, &Assertion{
		Type:  AssertTraceOrder,
		Kinds: []string{"relay_consume", "relay_open"},
	})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "relay_consume (pos 4) should be before relay_open (pos 3)", ae.Actual)
}

func TestAssertTraceCount(t *testing.T) {
	events := []trace.Event{
		{Seq: 1, Strand: 1, Kind: trace.KindRelayOpen},
		{Seq: 2, Strand: 2, Kind: trace.KindRelayOpen},
		{Seq: 3, Strand: 1, Kind: trace.KindRelayConsume},
	}
	result := syntheticResult(nil, events)

	assert.NoError(t, applyAssertion(result, &Assertion{Type: AssertTraceCount, Kind: "relay_open", Count: 2}))
	assert.NoError(t, applyAssertion(result, &Assertion{Type: AssertTraceCount, Kind: "relay_close", Count: 0}))

	err := applyAssertion(result, &Assertion{Type: AssertTraceCount, Kind: "relay_open", Count: 1})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 occurrences of relay_open", ae.Expected)
	assert.Equal(t, "2 occurrences", ae.Actual)
}

func TestAssertRunError(t *testing.T) {
	clean := syntheticResult(nil, nil)
	err := applyAssertion(clean, &Assertion{Type: AssertRunError, Contains: "deadlock"})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "the run completed without error", ae.Actual)

	failed := syntheticResult(nil, nil)
	failed.RunErr = errors.New("deadlock detected: all strands parked")
	assert.NoError(t, applyAssertion(failed, &Assertion{Type: AssertRunError, Contains: "deadlock"}))

	err = applyAssertion(failed, &Assertion{Type: AssertRunError, Contains: "quota"})
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Actual, `run error "deadlock detected`)
}

func TestMatchDetail(t *testing.T) {
	actual := map[string]string{"callable": "fetch", "eligible": "true"}

	assert.True(t, matchDetail(actual, nil), "nil expectation matches anything")
	assert.True(t, matchDetail(actual, map[string]string{"callable": "fetch"}))
	assert.True(t, matchDetail(actual, map[string]string{"callable": "fetch", "eligible": "true"}))
	assert.False(t, matchDetail(actual, map[string]string{"callable": "other"}))
	assert.False(t, matchDetail(actual, map[string]string{"reason": "unpublished"}))
	assert.False(t, matchDetail(nil, map[string]string{"callable": "fetch"}))
}
