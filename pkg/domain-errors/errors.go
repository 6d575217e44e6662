// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values so that transports can map them to a status
// and a stable machine-readable code without inspecting message strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class. Values are part of the public API surface.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeUnavailable        Code = "unavailable"
	CodeInternal           Code = "internal_error"

	// Ballot integrity taxonomy.
	CodeInvalidAttestation    Code = "invalid_attestation"
	CodeExpiredAttestation    Code = "expired_attestation"
	CodeExpiredOrInvalidNonce Code = "expired_or_invalid_nonce"
	CodePollBindingMismatch   Code = "poll_binding_mismatch"
	CodePayloadHashMismatch   Code = "payload_hash_mismatch"
	CodePollNotActive         Code = "poll_not_active_or_not_found"
	CodeInvalidOption         Code = "invalid_option"
	CodeNotEligible           Code = "not_eligible"
	CodeDuplicateNullifier    Code = "duplicate_nullifier"
	CodeStorage               Code = "storage_error"
	CodeQueryOverlapDenied    Code = "query_overlap_denied"
	CodeSigningUnavailable    Code = "signing_unavailable"
)

// Error is a coded domain error. Err is the optional wrapped cause.
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

// Is matches another *Error with the same code and message, so tests can
// compare against a freshly constructed expectation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New builds a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost *Error in the chain, or "" if none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether the outermost *Error in err's chain has the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Is is shorthand for HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Retryable reports whether a caller may retry the failed operation.
// Only storage faults qualify; validation and crypto failures never do.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeStorage, CodeTimeout, CodeUnavailable:
		return true
	}
	return false
}
