package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayScenario runs one tagged callable through the relay path.
func relayScenario() *Scenario {
	return &Scenario{
		Name:        "inline_relay",
		Description: "tagged callable publishes through the relay",
		Token:       "inline-1",
		Steps: []ScenarioStep{
			{Name: "fetch", Tagged: true, Outcome: "publish", Value: 21},
		},
		Assertions: []Assertion{
			{Type: AssertStepValue, Step: "fetch", Value: 21},
		},
	}
}

// quotaScenario spawns one callable under a step quota too small for the
// child strand to ever run.
func quotaScenario() *Scenario {
	return &Scenario{
		Name:        "inline_quota",
		Description: "step quota trips before the spawned strand runs",
		Token:       "inline-2",
		MaxSteps:    1,
		Steps: []ScenarioStep{
			{Name: "produce", Value: 40},
		},
		Assertions: []Assertion{
			{Type: AssertRunError, Contains: "exceeded max steps"},
		},
	}
}

func TestRunAndVerify_ExampleScenarios(t *testing.T) {
	scenarios, err := LoadScenarioDir("../../testdata/scenarios")
	require.NoError(t, err)

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			result, errs := RunAndVerify(context.Background(), scenario)
			for _, e := range errs {
				t.Errorf("verification: %v", e)
			}
			require.NotNil(t, result)
			assert.Equal(t, scenario.Token, result.Run.Token)
		})
	}
}

func TestRun_DefaultToken(t *testing.T) {
	scenario := relayScenario()
	scenario.Token = ""

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NoError(t, result.RunErr)

	assert.Equal(t, DefaultToken, result.Run.Token)
	require.NotEmpty(t, result.Run.Events)
	assert.Equal(t, DefaultToken, result.Run.Events[0].Token)
}

func TestRun_FixedToken(t *testing.T) {
	result, err := Run(context.Background(), relayScenario())
	require.NoError(t, err)

	assert.Equal(t, "inline-1", result.Run.Token)
	for _, event := range result.Run.Events {
		assert.Equal(t, "inline-1", event.Token)
	}
}

func TestRun_InvalidWorkload(t *testing.T) {
	scenario := relayScenario()
	scenario.Steps[0].Kind = "method"

	result, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), `unknown kind "method"`)
}

func TestRun_CapturesQuotaError(t *testing.T) {
	result, err := Run(context.Background(), quotaScenario())
	require.NoError(t, err, "run-level failures are captured, not returned")

	require.Error(t, result.RunErr)
	assert.Contains(t, result.RunErr.Error(), "exceeded max steps")
	assert.NotEmpty(t, result.Run.Events, "partial trace survives the abort")
}

func TestVerify_PassingScenario(t *testing.T) {
	result, err := Run(context.Background(), relayScenario())
	require.NoError(t, err)

	assert.Empty(t, Verify(result))
}

func TestVerify_WrongStepValue(t *testing.T) {
	scenario := relayScenario()
	scenario.Assertions[0].Value = 99

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	errs := Verify(result)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "assertions[0]")
	assert.Contains(t, errs[0].Error(), "Assertion failed: step_value")
}

func TestVerify_UnexpectedRunError(t *testing.T) {
	scenario := quotaScenario()
	// Without a run_error assertion the quota trip must fail verification.
	scenario.Assertions = []Assertion{
		{Type: AssertTraceCount, Kind: "dispatch", Count: 1},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	errs := Verify(result)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "run failed unexpectedly")
	assert.Contains(t, errs[0].Error(), "exceeded max steps")
}

func TestVerify_ExpectedRunErrorButClean(t *testing.T) {
	scenario := relayScenario()
	scenario.Assertions = append(scenario.Assertions, Assertion{
		Type: AssertRunError, Contains: "deadlock",
	})

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	errs := Verify(result)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "expected the run to fail, but it completed")
	assert.Contains(t, errs[1].Error(), "assertions[1]")
	assert.Contains(t, errs[1].Error(), "the run completed without error")
}

func TestRunAndVerify_InvalidScenario(t *testing.T) {
	scenario := relayScenario()
	scenario.Steps[0].Outcome = "retry"

	result, errs := RunAndVerify(context.Background(), scenario)
	assert.Nil(t, result)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), `unknown outcome "retry"`)
}

func TestStepResult_Lookup(t *testing.T) {
	result, err := Run(context.Background(), relayScenario())
	require.NoError(t, err)

	sr := stepResult(result.Run, "fetch")
	require.NotNil(t, sr)
	assert.Equal(t, int64(21), sr.Value)

	assert.Nil(t, stepResult(result.Run, "ghost"))
}
