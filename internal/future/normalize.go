package future

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ExecutionError is the canonical form for a callable's returned error.
//
// Wrapping makes a returned failure and a thrown (panicked) failure
// symmetric for handle consumers: both arrive as a typed error with the
// original cause reachable through Unwrap.
type ExecutionError struct {
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("callable failed: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PanicError is the canonical form for a callable's panic.
// Value is the recovered panic value; Stack is captured at recovery.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("callable panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error, enabling
// errors.Is/As matching through the panic boundary.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NormalizeError converts a callable's returned error to canonical form.
// Idempotent: already-normalized errors pass through unchanged.
// Returns nil for nil.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *ExecutionError, *PanicError:
		return err
	}
	return &ExecutionError{Err: err}
}

// NormalizePanic converts a recovered panic value to canonical form.
// A re-panicked PanicError passes through unchanged; everything else is
// wrapped with the current stack.
func NormalizePanic(recovered any) error {
	if pe, ok := recovered.(*PanicError); ok {
		return pe
	}
	return &PanicError{
		Value: recovered,
		Stack: debug.Stack(),
	}
}

// IsExecutionError returns true if the error is an ExecutionError.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// IsPanicError returns true if the error is a PanicError.
// Uses errors.As to handle wrapped errors.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
