package sched

import (
	"errors"
	"fmt"
)

// QuotaEnforcer counts baton handoffs for a run and enforces a maximum
// steps limit.
//
// The quota is checked on every resume, before the strand gets the
// baton. It catches strands that yield forever as well as dispatch
// chains that spawn without bound - patterns deadlock detection cannot
// see because something is always runnable.
//
// Together, quota enforcement and deadlock detection guarantee Run()
// terminates.
type QuotaEnforcer struct {
	maxSteps int // Maximum allowed steps for this run
	current  int // Current step count
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
//
// maxSteps: maximum number of strand resumes allowed per run.
// Typical default: 10000 (configurable via sched.WithMaxSteps()).
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{
		maxSteps: maxSteps,
		current:  0,
	}
}

// Check increments the step counter and validates against the limit.
//
// Returns StepsExceededError if the quota is exceeded.
// Called by the scheduler before every baton handoff.
func (q *QuotaEnforcer) Check(token string) error {
	q.current++
	if q.current > q.maxSteps {
		return &StepsExceededError{
			Token: token,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// Reset resets the step counter to 0.
// Used when reusing an enforcer across runs (rare).
func (q *QuotaEnforcer) Reset() {
	q.current = 0
}

// Current returns the current step count.
// Used for logging and diagnostics.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxSteps returns the maximum steps limit.
// Used for logging and diagnostics.
func (q *QuotaEnforcer) MaxSteps() int {
	return q.maxSteps
}

// StepsExceededError is returned when a run exceeds the max steps quota.
//
// This error terminates the run. Unlike deadlock detection (which fires
// when nothing can make progress), quota exceeded stops runs that make
// progress forever.
type StepsExceededError struct {
	Token string // The run token active when the quota tripped
	Steps int    // Number of steps taken
	Limit int    // Maximum allowed steps
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max steps quota: %d steps > %d limit",
		e.Token, e.Steps, e.Limit)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
