// Package apperrors enumerates the error taxonomy used across the trading
// core so callers can branch on kind rather than string-matching messages.
package apperrors

import "fmt"

// Kind classifies an error for the purposes of propagation and recovery,
// per the error handling design.
type Kind string

const (
	KindConfigInvalid          Kind = "CONFIG_INVALID"
	KindCredentialsMissing     Kind = "CREDENTIALS_MISSING"
	KindAuthFailure            Kind = "AUTH_FAILURE"
	KindTransient              Kind = "TRANSIENT"
	KindRateLimited            Kind = "RATE_LIMITED"
	KindOrderRejected          Kind = "ORDER_REJECTED"
	KindReconciliationMismatch Kind = "RECONCILIATION_MISMATCH"
	KindEngineCrash            Kind = "ENGINE_CRASH"
	KindCircuitBreaker         Kind = "CIRCUIT_BREAKER"
	KindAllocationOverflow     Kind = "ALLOCATION_OVERFLOW"
)

// Error is a typed application error carrying a Kind so the engine's tick
// handler can decide whether to retry, skip, or fail fatally.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperrors.New(kind, "")) to match by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Fatal reports whether errors of this kind must abort startup rather than
// be converted into a skipped tick.
func Fatal(kind Kind) bool {
	switch kind {
	case KindConfigInvalid, KindCredentialsMissing, KindAuthFailure, KindAllocationOverflow:
		return true
	default:
		return false
	}
}
