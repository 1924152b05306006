package award

import (
	"errors"
	"fmt"
)

// Code categorizes award failures. Values are the wire names used in
// award responses.
type Code string

const (
	// CodeEnrollmentRequired: the customer has no active enrollment in the
	// program. The caller must drive enrollment first; never retried.
	CodeEnrollmentRequired Code = "EnrollmentRequired"

	// CodeInvalidAmount: points were not a positive integer.
	CodeInvalidAmount Code = "InvalidAmount"

	// CodeInvalidRequest: a missing or malformed identifier or source type.
	CodeInvalidRequest Code = "InvalidRequest"

	// CodeIdempotencyMismatch: the key was already used for a different
	// card or amount.
	CodeIdempotencyMismatch Code = "IdempotencyMismatch"

	// CodeConcurrencyConflict: the award lost a race or timed out and was
	// rolled back. Retrying with the same key is safe.
	CodeConcurrencyConflict Code = "ConcurrencyConflict"

	// CodePersistenceFailure: the database failed. Fatal for this request.
	CodePersistenceFailure Code = "PersistenceFailure"
)

// Error is returned by Engine.Award for every failure.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description. For persistence failures it
	// may contain internal detail; use PublicMessage for end users.
	Message string

	CustomerID     string
	ProgramID      string
	IdempotencyKey string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the Code of an *Error in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsRetryable reports whether the whole award may be retried with the same
// idempotency key.
func IsRetryable(err error) bool {
	return CodeOf(err) == CodeConcurrencyConflict
}

// IsEnrollmentRequired reports whether err is an EnrollmentRequired failure.
func IsEnrollmentRequired(err error) bool {
	return CodeOf(err) == CodeEnrollmentRequired
}

// genericFailure is shown to users instead of persistence detail.
const genericFailure = "Something went wrong while saving your points. Please try again."

// PublicMessage returns the text to show an end user for err.
// Persistence failures and unknown errors get a generic message; their
// cause is logged server-side only.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return genericFailure
	}
	switch ae.Code {
	case CodeEnrollmentRequired:
		return "You need to join this loyalty program before you can earn points."
	case CodeInvalidAmount:
		return "Points must be a whole number greater than zero."
	case CodeInvalidRequest:
		return ae.Message
	case CodeIdempotencyMismatch:
		return "This transaction reference was already used for a different award."
	case CodeConcurrencyConflict:
		return "The card was busy. Please try again."
	default:
		return genericFailure
	}
}

func newError(code Code, message string, req requestContext, cause error) *Error {
	return &Error{
		Code:           code,
		Message:        message,
		CustomerID:     req.customerID,
		ProgramID:      req.programID,
		IdempotencyKey: req.key,
		Err:            cause,
	}
}

// requestContext is the identifying part of a request carried on errors.
type requestContext struct {
	customerID string
	programID  string
	key        string
}
