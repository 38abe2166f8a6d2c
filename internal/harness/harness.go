package harness

import (
	"context"
	"fmt"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/workload"
)

// Result is the outcome of running one scenario: the workload run plus
// any run-level error. RunErr non-nil means the scheduler stopped early
// (deadlock, quota, cancellation); the run still carries the partial
// trace recorded up to that point.
type Result struct {
	Scenario *Scenario
	Run      *workload.RunResult
	RunErr   error
}

// Run executes a scenario's workload under a fixed run token.
//
// Each scenario runs on a fresh scheduler for isolation. Run-level
// errors are captured on the result rather than returned: Verify decides
// whether the scenario expected them. The returned error covers only
// scenarios that cannot run at all (invalid workload definitions).
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	w, err := scenario.Workload()
	if err != nil {
		return nil, err
	}

	token := scenario.Token
	if token == "" {
		token = DefaultToken
	}

	opts := []workload.Option{
		workload.WithTokenGenerator(sched.NewFixedGenerator(token)),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, workload.WithMaxSteps(scenario.MaxSteps))
	}
	runner := workload.NewRunner(opts...)

	run, runErr := runner.Run(ctx, w)
	if run == nil {
		return nil, fmt.Errorf("scenario %q: %w", scenario.Name, runErr)
	}

	return &Result{Scenario: scenario, Run: run, RunErr: runErr}, nil
}

// Verify checks a result against its scenario's assertions and the
// always-on trace invariants. Returns one error per violation; an empty
// slice means the scenario passed.
func Verify(result *Result) []error {
	var errs []error

	scenario := result.Scenario

	// A run-level error fails verification unless the scenario declared
	// it with a run_error assertion.
	if result.RunErr != nil && !scenario.expectsRunError() {
		errs = append(errs, fmt.Errorf("run failed unexpectedly: %w", result.RunErr))
	}
	if result.RunErr == nil && scenario.expectsRunError() {
		errs = append(errs, fmt.Errorf("expected the run to fail, but it completed"))
	}

	// Structural invariants hold for every trace; the completeness checks
	// apply only when the run finished cleanly.
	errs = append(errs, VerifyTraceInvariants(result.Run.Events, result.RunErr == nil)...)

	for i, assertion := range scenario.Assertions {
		if err := applyAssertion(result, &assertion); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}

	return errs
}

// RunAndVerify runs a scenario and verifies the result in one call.
func RunAndVerify(ctx context.Context, scenario *Scenario) (*Result, []error) {
	result, err := Run(ctx, scenario)
	if err != nil {
		return nil, []error{err}
	}
	return result, Verify(result)
}

// stepResult finds the named step's result, or nil.
func stepResult(run *workload.RunResult, name string) *workload.StepResult {
	for i := range run.Steps {
		if run.Steps[i].Step == name {
			return &run.Steps[i]
		}
	}
	return nil
}
