package dispatch

import (
	"errors"
	"fmt"
)

// ProtocolError represents a violation of the dispatch/relay protocol.
//
// Protocol errors are programmer errors - a dispatch nested where it
// must not be, a publish outside a relay-path invocation, an eligible
// callable that forgot to publish. They are returned from the Invoke
// call that detected them, never captured into handles.
//
// Callable execution failures are NOT protocol errors; they settle the
// returned handle (see package future).
type ProtocolError struct {
	// Code identifies the violation category.
	Code ProtocolErrorCode

	// Message is a human-readable description.
	Message string

	// Strand names the strand the violation occurred on.
	Strand string

	// Callable names the callable being dispatched, when known.
	Callable string
}

// ProtocolErrorCode categorizes protocol violations.
type ProtocolErrorCode string

const (
	// ErrCodeRelayReentrancy indicates a relay-path dispatch started
	// while the strand's relay was already open.
	ErrCodeRelayReentrancy ProtocolErrorCode = "RELAY_REENTRANCY"

	// ErrCodeRelayNotOpen indicates Publish was called outside a
	// relay-path invocation.
	ErrCodeRelayNotOpen ProtocolErrorCode = "RELAY_NOT_OPEN"

	// ErrCodeResultNotPublished indicates an eligible callable returned
	// without publishing a handle.
	ErrCodeResultNotPublished ProtocolErrorCode = "RESULT_NOT_PUBLISHED"

	// ErrCodeRelayAlreadyPublished indicates a second Publish on the
	// same open relay. The first handle is preserved.
	ErrCodeRelayAlreadyPublished ProtocolErrorCode = "RELAY_ALREADY_PUBLISHED"

	// ErrCodeNilCallable indicates a descriptor with no function was
	// dispatched.
	ErrCodeNilCallable ProtocolErrorCode = "NIL_CALLABLE"

	// ErrCodeNilHandle indicates Publish was called with a nil handle.
	ErrCodeNilHandle ProtocolErrorCode = "NIL_HANDLE"
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Strand != "" && e.Callable != "" {
		return fmt.Sprintf("%s: %s (strand=%s, callable=%s)", e.Code, e.Message, e.Strand, e.Callable)
	}
	if e.Strand != "" {
		return fmt.Sprintf("%s: %s (strand=%s)", e.Code, e.Message, e.Strand)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsProtocolError returns true if the error is any ProtocolError.
// Uses errors.As to handle wrapped errors.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsReentrancyError returns true for RELAY_REENTRANCY violations.
func IsReentrancyError(err error) bool {
	return hasCode(err, ErrCodeRelayReentrancy)
}

// IsNotOpenError returns true for RELAY_NOT_OPEN violations.
func IsNotOpenError(err error) bool {
	return hasCode(err, ErrCodeRelayNotOpen)
}

// IsNotPublishedError returns true for RESULT_NOT_PUBLISHED violations.
func IsNotPublishedError(err error) bool {
	return hasCode(err, ErrCodeResultNotPublished)
}

// IsAlreadyPublishedError returns true for RELAY_ALREADY_PUBLISHED violations.
func IsAlreadyPublishedError(err error) bool {
	return hasCode(err, ErrCodeRelayAlreadyPublished)
}

func hasCode(err error, code ProtocolErrorCode) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
