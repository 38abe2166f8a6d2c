package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/weftrun/weft/internal/workload"
)

// DefaultToken is the run token used when a scenario does not fix one.
const DefaultToken = "scenario-run"

// Scenario defines a conformance test scenario: an inline workload plus
// assertions on the step results and the recorded trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the workload
	// name and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Token is a fixed run token for deterministic traces.
	// Defaults to DefaultToken.
	Token string `yaml:"token,omitempty"`

	// MaxSteps caps the scheduler step quota; 0 uses the default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Steps defines the workload inline.
	Steps []ScenarioStep `yaml:"steps"`

	// Assertions validate the run result.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioStep mirrors workload.Step in YAML-friendly form.
type ScenarioStep struct {
	Name    string        `yaml:"name"`
	Kind    string        `yaml:"kind,omitempty"`
	Mode    string        `yaml:"mode,omitempty"`
	Tagged  bool          `yaml:"tagged,omitempty"`
	Arity   *int          `yaml:"arity,omitempty"`
	Args    []ScenarioArg `yaml:"args,omitempty"`
	Outcome string        `yaml:"outcome,omitempty"`
	Value   any           `yaml:"value,omitempty"`
	Error   string        `yaml:"error,omitempty"`
}

// ScenarioArg is one bound argument: a ref or a literal.
type ScenarioArg struct {
	Ref     string `yaml:"ref,omitempty"`
	Literal any    `yaml:"literal,omitempty"`
}

// Assertion validates one aspect of a run result.
type Assertion struct {
	// Type selects the assertion; see the package documentation.
	Type string `yaml:"type"`

	// Step names the step under test (step_* assertions).
	Step string `yaml:"step,omitempty"`

	// Value is the exact expected settled value (step_value).
	Value any `yaml:"value,omitempty"`

	// Contains is the expected substring (step_failure, step_protocol,
	// step_skipped, run_error).
	Contains string `yaml:"contains,omitempty"`

	// Kind is the event kind under test (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Detail is a subset match on event detail (trace_contains).
	Detail map[string]string `yaml:"detail,omitempty"`

	// Count is the expected occurrence count (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected event kind order (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertStepValue     = "step_value"
	AssertStepFailure   = "step_failure"
	AssertStepProtocol  = "step_protocol"
	AssertStepSkipped   = "step_skipped"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertRunError      = "run_error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
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

// LoadScenarioDir loads every *.yaml scenario under dir, sorted by path
// for deterministic ordering.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}
	sort.Strings(matches)

	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Name == "" {
			return fmt.Errorf("steps[%d]: name is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStepValue:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for step_value", index)
		}
	case AssertStepFailure, AssertStepProtocol, AssertStepSkipped:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for %s", index, a.Type)
		}
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for %s", index, a.Type)
		}
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertRunError:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for run_error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// expectsRunError reports whether any assertion anticipates a failed run.
func (s *Scenario) expectsRunError() bool {
	for _, a := range s.Assertions {
		if a.Type == AssertRunError {
			return true
		}
	}
	return false
}

// Workload converts the scenario's inline steps to a runnable workload.
func (s *Scenario) Workload() (*workload.Workload, error) {
	w := &workload.Workload{Name: s.Name}

	for i, step := range s.Steps {
		converted, err := convertStep(i, step)
		if err != nil {
			return nil, err
		}
		w.Steps = append(w.Steps, converted)
	}

	if errs := workload.Validate(w); len(errs) > 0 {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, errs[0])
	}
	return w, nil
}

func convertStep(index int, step ScenarioStep) (workload.Step, error) {
	out := workload.Step{
		Name:    step.Name,
		Kind:    workload.KindFunc,
		Mode:    workload.ModeInterface,
		Tagged:  step.Tagged,
		Outcome: workload.OutcomeReturn,
		Error:   step.Error,
	}

	if step.Kind != "" {
		switch workload.StepKind(step.Kind) {
		case workload.KindFunc, workload.KindProc:
			out.Kind = workload.StepKind(step.Kind)
		default:
			return out, fmt.Errorf("steps[%d]: unknown kind %q", index, step.Kind)
		}
	}

	if step.Mode != "" {
		switch workload.DispatchMode(step.Mode) {
		case workload.ModeInterface, workload.ModeDirect:
			out.Mode = workload.DispatchMode(step.Mode)
		default:
			return out, fmt.Errorf("steps[%d]: unknown mode %q", index, step.Mode)
		}
	}

	if step.Outcome != "" {
		switch workload.Outcome(step.Outcome) {
		case workload.OutcomeReturn, workload.OutcomeFail, workload.OutcomePanic,
			workload.OutcomePublish, workload.OutcomePublishFailed, workload.OutcomeSilent:
			out.Outcome = workload.Outcome(step.Outcome)
		default:
			return out, fmt.Errorf("steps[%d]: unknown outcome %q", index, step.Outcome)
		}
	}

	for j, arg := range step.Args {
		switch {
		case arg.Ref != "" && arg.Literal != nil:
			return out, fmt.Errorf("steps[%d].args[%d]: cannot have both ref and literal", index, j)
		case arg.Ref != "":
			out.Args = append(out.Args, workload.Arg{Ref: arg.Ref})
		default:
			lit, err := normalizeValue(fmt.Sprintf("steps[%d].args[%d].literal", index, j), arg.Literal)
			if err != nil {
				return out, err
			}
			out.Args = append(out.Args, workload.Arg{Literal: lit})
		}
	}

	out.Arity = len(out.Args)
	if step.Arity != nil {
		out.Arity = *step.Arity
	}

	if step.Value != nil {
		value, err := normalizeValue(fmt.Sprintf("steps[%d].value", index), step.Value)
		if err != nil {
			return out, err
		}
		out.Value = value
	}

	return out, nil
}

// normalizeValue maps YAML scalars to workload values: strings pass
// through, ints widen to int64, everything else is rejected. Traces are
// float-free.
func normalizeValue(field string, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64, float32:
		return nil, fmt.Errorf("%s: float values are forbidden - use int instead", field)
	default:
		return nil, fmt.Errorf("%s: unsupported value type %T", field, v)
	}
}
