package workload

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileWorkload parses a CUE value into a Workload.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the workload struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`workload: pipeline: { steps: [...] }`)
//	w, err := CompileWorkload(v.LookupPath(cue.ParsePath("workload.pipeline")))
func CompileWorkload(v cue.Value) (*Workload, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	w := &Workload{}

	// Workload name comes from the struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		w.Name = labels[len(labels)-1].String()
	}

	stepsVal := v.LookupPath(cue.ParsePath("steps"))
	if !stepsVal.Exists() {
		return nil, &CompileError{
			Field:   "steps",
			Message: "steps list is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := stepsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for i := 0; iter.Next(); i++ {
		step, err := parseStep(i, iter.Value())
		if err != nil {
			return nil, err
		}
		w.Steps = append(w.Steps, step)
	}

	if len(w.Steps) == 0 {
		return nil, &CompileError{
			Field:   "steps",
			Message: "at least one step is required",
			Pos:     stepsVal.Pos(),
		}
	}

	return w, nil
}

func parseStep(index int, v cue.Value) (Step, error) {
	step := Step{
		Kind:    KindFunc,
		Mode:    ModeInterface,
		Outcome: OutcomeReturn,
	}
	field := func(name string) string {
		return fmt.Sprintf("steps[%d].%s", index, name)
	}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return step, &CompileError{
			Field:   field("name"),
			Message: "step name is required",
			Pos:     v.Pos(),
		}
	}
	name, err := nameVal.String()
	if err != nil {
		return step, formatCUEError(err)
	}
	step.Name = name

	if kindVal := v.LookupPath(cue.ParsePath("kind")); kindVal.Exists() {
		kind, err := kindVal.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		switch StepKind(kind) {
		case KindFunc, KindProc:
			step.Kind = StepKind(kind)
		default:
			return step, &CompileError{
				Field:   field("kind"),
				Message: fmt.Sprintf("unknown kind %q, must be \"func\" or \"proc\"", kind),
				Pos:     kindVal.Pos(),
			}
		}
	}

	if modeVal := v.LookupPath(cue.ParsePath("mode")); modeVal.Exists() {
		mode, err := modeVal.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		switch DispatchMode(mode) {
		case ModeInterface, ModeDirect:
			step.Mode = DispatchMode(mode)
		default:
			return step, &CompileError{
				Field:   field("mode"),
				Message: fmt.Sprintf("unknown mode %q, must be \"interface\" or \"direct\"", mode),
				Pos:     modeVal.Pos(),
			}
		}
	}

	if taggedVal := v.LookupPath(cue.ParsePath("tagged")); taggedVal.Exists() {
		tagged, err := taggedVal.Bool()
		if err != nil {
			return step, formatCUEError(err)
		}
		step.Tagged = tagged
	}

	if argsVal := v.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
		argIter, err := argsVal.List()
		if err != nil {
			return step, formatCUEError(err)
		}
		for j := 0; argIter.Next(); j++ {
			arg, err := parseArg(fmt.Sprintf("%s[%d]", field("args"), j), argIter.Value())
			if err != nil {
				return step, err
			}
			step.Args = append(step.Args, arg)
		}
	}

	// Arity defaults to the argument count; an explicit arity must be
	// consistent, which Validate checks.
	step.Arity = len(step.Args)
	if arityVal := v.LookupPath(cue.ParsePath("arity")); arityVal.Exists() {
		arity, err := arityVal.Int64()
		if err != nil {
			return step, formatCUEError(err)
		}
		step.Arity = int(arity)
	}

	if outcomeVal := v.LookupPath(cue.ParsePath("outcome")); outcomeVal.Exists() {
		outcome, err := outcomeVal.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		switch Outcome(outcome) {
		case OutcomeReturn, OutcomeFail, OutcomePanic,
			OutcomePublish, OutcomePublishFailed, OutcomeSilent:
			step.Outcome = Outcome(outcome)
		default:
			return step, &CompileError{
				Field:   field("outcome"),
				Message: fmt.Sprintf("unknown outcome %q", outcome),
				Pos:     outcomeVal.Pos(),
			}
		}
	}

	if valueVal := v.LookupPath(cue.ParsePath("value")); valueVal.Exists() {
		value, err := extractValue(field("value"), valueVal)
		if err != nil {
			return step, err
		}
		step.Value = value
	}

	if errVal := v.LookupPath(cue.ParsePath("error")); errVal.Exists() {
		text, err := errVal.String()
		if err != nil {
			return step, formatCUEError(err)
		}
		step.Error = text
	}

	return step, nil
}

// parseArg reads a single argument: exactly one of {literal: ...} or
// {ref: "step"}.
func parseArg(field string, v cue.Value) (Arg, error) {
	var arg Arg

	refVal := v.LookupPath(cue.ParsePath("ref"))
	litVal := v.LookupPath(cue.ParsePath("literal"))

	switch {
	case refVal.Exists() && litVal.Exists():
		return arg, &CompileError{
			Field:   field,
			Message: "argument cannot have both ref and literal",
			Pos:     v.Pos(),
		}
	case refVal.Exists():
		ref, err := refVal.String()
		if err != nil {
			return arg, formatCUEError(err)
		}
		arg.Ref = ref
	case litVal.Exists():
		lit, err := extractValue(field+".literal", litVal)
		if err != nil {
			return arg, err
		}
		arg.Literal = lit
	default:
		return arg, &CompileError{
			Field:   field,
			Message: "argument needs a ref or a literal",
			Pos:     v.Pos(),
		}
	}

	return arg, nil
}

// extractValue converts a CUE scalar to a workload value.
// Only strings and ints are allowed; traces are float-free.
func extractValue(field string, v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return s, nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return nil, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
