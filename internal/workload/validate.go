package workload

import (
	"fmt"
	"strings"
)

// Validation error codes (W100-W199)
const (
	ErrWorkloadNoName  = "W100" // workload name is empty
	ErrWorkloadNoSteps = "W101" // at least one step required
	ErrDuplicateStep   = "W102" // duplicate step name
	ErrArityOutOfRange = "W103" // arity outside 0..6
	ErrArityMismatch   = "W104" // arity does not match argument count
	ErrUnknownRef      = "W105" // argument references an undefined step
	ErrLateRef         = "W106" // argument references a later (or the same) step
	ErrMissingError    = "W107" // failing outcome without error text
)

// MaxArity is the largest argument count the dispatcher supports.
const MaxArity = 6

// ValidationError represents a workload validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled workload against the rules the runner
// depends on. Returns all errors found (does not fail-fast).
func Validate(w *Workload) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(w.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "workload name is required",
			Code:    ErrWorkloadNoName,
		})
	}

	if len(w.Steps) == 0 {
		errs = append(errs, ValidationError{
			Field:   "steps",
			Message: "at least one step is required",
			Code:    ErrWorkloadNoSteps,
		})
		return errs
	}

	// Step positions for reference checking. Steps run in declaration
	// order, so a ref must point strictly backwards.
	position := make(map[string]int, len(w.Steps))
	for i, step := range w.Steps {
		if _, dup := position[step.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].name", i),
				Message: fmt.Sprintf("duplicate step name: %q", step.Name),
				Code:    ErrDuplicateStep,
			})
			continue
		}
		position[step.Name] = i
	}

	for i, step := range w.Steps {
		if step.Arity < 0 || step.Arity > MaxArity {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].arity", i),
				Message: fmt.Sprintf("arity %d out of range, must be 0..%d", step.Arity, MaxArity),
				Code:    ErrArityOutOfRange,
			})
		} else if step.Arity != len(step.Args) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("steps[%d].arity", i),
				Message: fmt.Sprintf("arity %d does not match %d bound arguments", step.Arity, len(step.Args)),
				Code:    ErrArityMismatch,
			})
		}

		for j, arg := range step.Args {
			if arg.Ref == "" {
				continue
			}
			pos, known := position[arg.Ref]
			if !known {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].args[%d]", i, j),
					Message: fmt.Sprintf("reference to undefined step %q", arg.Ref),
					Code:    ErrUnknownRef,
				})
				continue
			}
			if pos >= i {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].args[%d]", i, j),
					Message: fmt.Sprintf("step %q runs at or after %q; references must point to earlier steps", arg.Ref, step.Name),
					Code:    ErrLateRef,
				})
			}
		}

		switch step.Outcome {
		case OutcomeFail, OutcomePanic, OutcomePublishFailed:
			if strings.TrimSpace(step.Error) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("steps[%d].error", i),
					Message: fmt.Sprintf("outcome %q requires error text", step.Outcome),
					Code:    ErrMissingError,
				})
			}
		}
	}

	return errs
}
