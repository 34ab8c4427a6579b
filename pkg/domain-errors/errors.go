// Package domainerrors carries machine-readable error codes across layers.
//
// Stores return sentinel facts (see pkg/platform/sentinel); services translate
// them into coded errors with New or Wrap; transports map codes to responses
// (see pkg/platform/httputil).
package domainerrors

import (
	"errors"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeValidation           Code = "validation_error"
	CodeInvalidInput         Code = "invalid_input"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeNotFound             Code = "not_found"
	CodeConflict             Code = "conflict"
	CodeInvariantViolation   Code = "invariant_violation"
	CodeTimeout              Code = "timeout"
	CodeUnavailable          Code = "unavailable"
	CodeInternal             Code = "internal_error"
	CodeLimitExceeded        Code = "limit_exceeded"
	CodeDuplicateRequest     Code = "duplicate_request"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeStaleState           Code = "stale_state"
	CodePaymentCaptureFailed Code = "payment_capture_failed"
	CodeCapturePending       Code = "capture_pending"
)

// Retryable reports whether a caller may repeat the operation unchanged.
func (c Code) Retryable() bool {
	switch c {
	case CodeStaleState, CodePaymentCaptureFailed, CodeCapturePending, CodeTimeout, CodeUnavailable:
		return true
	default:
		return false
	}
}

// Error is a coded error. Message is safe to show to clients except for
// CodeInternal, whose message is for logs only.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping nil returns nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the client-facing message of the outermost coded error.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
