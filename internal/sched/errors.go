package sched

import (
	"errors"
	"fmt"
	"strings"
)

// RuntimeError represents an error detected during scheduler execution.
//
// Runtime errors include:
//   - Deadlock: live strands remain but every one of them is parked
//   - Quota exceeded: run exceeds the max steps limit
//   - Strand panic: a strand body panicked outside guarded execution
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Token identifies the affected run.
	Token string

	// Strand identifies the strand involved (for panic errors).
	Strand string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeDeadlockDetected indicates every live strand is parked and
	// nothing can ever unpark them.
	ErrCodeDeadlockDetected RuntimeErrorCode = "DEADLOCK_DETECTED"

	// ErrCodeQuotaExceeded indicates the run exceeded max steps.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"

	// ErrCodeStrandPanic indicates a strand body panicked.
	ErrCodeStrandPanic RuntimeErrorCode = "STRAND_PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Token != "" && e.Strand != "" {
		return fmt.Sprintf("%s: %s (token=%s, strand=%s)", e.Code, e.Message, e.Token, e.Strand)
	}
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, e.Message, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDeadlockError returns true if the error is a deadlock detection error.
// Uses errors.As to handle wrapped errors.
func IsDeadlockError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDeadlockDetected
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// NewDeadlockError creates a RuntimeError for a parked-strand deadlock.
// The parked list describes each stuck strand ("name[id]: reason").
func NewDeadlockError(parked []string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDeadlockDetected,
		Message: fmt.Sprintf("all %d live strands are parked", len(parked)),
		Details: map[string]string{
			"parked": strings.Join(parked, "; "),
		},
	}
}

// NewQuotaError creates a RuntimeError for quota exceeded.
func NewQuotaError(token string, steps, maxSteps int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("run exceeded max steps (%d > %d)", steps, maxSteps),
		Token:   token,
		Details: map[string]string{
			"steps":     fmt.Sprintf("%d", steps),
			"max_steps": fmt.Sprintf("%d", maxSteps),
		},
	}
}
