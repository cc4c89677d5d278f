// Package domainerrors provides coded errors for the service's domain layer.
//
// Stores return sentinel errors (pkg/platform/sentinel) describing
// infrastructure facts; services translate those into coded errors that
// transports can map onto wire responses without string matching.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. The set mirrors the system's error
// taxonomy: validation, authorization, state conflicts, funds, concurrency.
type Code string

const (
	// CodeValidation covers malformed or out-of-range input, rejected
	// before any state is read.
	CodeValidation Code = "validation"
	// CodeBadRequest covers structurally invalid requests (bad JSON,
	// missing fields).
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized means the caller could not be identified.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden means the caller is identified but not permitted to act
	// for the named company or account.
	CodeForbidden Code = "forbidden"
	// CodeNotFound means the referenced entity does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict covers state-conflict failures: already listed, already
	// redeemed, not matured, listing consumed.
	CodeConflict Code = "conflict"
	// CodeInsufficientFunds means a debit exceeds the account balance.
	CodeInsufficientFunds Code = "insufficient_funds"
	// CodeCurrencyMismatch means the two sides of a transfer, or a paper and
	// its market, settle in different currencies.
	CodeCurrencyMismatch Code = "currency_mismatch"
	// CodeConcurrentModification means the transaction lost an
	// optimistic-concurrency race and exhausted its retries. Retryable.
	CodeConcurrentModification Code = "concurrent_modification"
	// CodeTimeout means the enclosing transaction deadline elapsed.
	CodeTimeout Code = "timeout"
	// CodeInvariantViolation flags a broken internal invariant; always a bug.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. It wraps an optional cause so errors.Is and
// errors.As keep working through the domain layer.
type Error struct {
	code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Code returns the classification of the error.
func (e *Error) Code() Code { return e.code }

// New creates a coded error with no underlying cause.
func New(code Code, msg string) error {
	return &Error{code: code, msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil when err is nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, msg: msg, err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.code == code {
			return true
		}
		err = de.err
	}
	return false
}

// Is is a readability alias for HasCode, used at call sites that read like
// errors.Is.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the operation as-is.
func Retryable(err error) bool {
	return HasCode(err, CodeConcurrentModification) || HasCode(err, CodeTimeout)
}

// ToHTTPStatus maps a domain error to an HTTP status code.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrentModification:
		return http.StatusConflict
	case CodeInsufficientFunds, CodeCurrencyMismatch:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
