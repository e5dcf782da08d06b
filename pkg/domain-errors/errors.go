// Package domainerrors defines the coded error type shared by every ledger module.
//
// Services return *Error values so callers (HTTP handlers, the governance executor,
// tests) can branch on a stable Code instead of message text. Stores return
// sentinel facts (see pkg/platform/sentinel) which services translate into codes.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a failure. Codes are stable strings and appear in API responses.
type Code string

const (
	// CodeValidation: malformed, zero or negative input (ValidationError).
	CodeValidation Code = "validation_error"
	// CodeInvalidInput: an identifier or value failed to parse at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest: the request body could not be decoded.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized: the caller is not authenticated.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden: the caller lacks a role or is not the designated approver (AuthorizationError).
	CodeForbidden Code = "forbidden"
	// CodeInvalidState: illegal state transition (StateError).
	CodeInvalidState Code = "invalid_state"
	// CodeInsufficientBalance: a debit exceeds the escrow balance.
	CodeInsufficientBalance Code = "insufficient_balance"
	// CodeNotFound: unknown id or module name.
	CodeNotFound Code = "not_found"
	// CodeTimelockNotReady: execute called before the operation eta.
	CodeTimelockNotReady Code = "timelock_not_ready"
	// CodeExternalDependency: the rate source or another collaborator failed.
	CodeExternalDependency Code = "external_dependency"
	// CodeDuplicateRegistration: a name or principal is already bound incompatibly.
	CodeDuplicateRegistration Code = "duplicate_registration"
	// CodeConflict: a concurrent write won.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation: a ledger invariant failed; the affected account halts.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout: the operation's context expired.
	CodeTimeout Code = "timeout"
	// CodeInternal: unexpected infrastructure failure.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error. Err, when set, is the wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or CodeInternal
// when the chain carries no domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better as a predicate.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Retryable reports whether the caller may succeed by retrying the same call later,
// e.g. after topping up escrow or waiting for a timelock eta.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientBalance, CodeTimelockNotReady, CodeExternalDependency, CodeTimeout, CodeConflict:
		return true
	default:
		return false
	}
}

// Message returns the client-safe message of a domain error. Internal errors
// never expose their message.
func Message(err error) string {
	var de *Error
	if !errors.As(err, &de) || de.Code == CodeInternal {
		return ""
	}
	return de.Message
}
