// Package faults defines the structured error taxonomy for scrape tasks.
// Every failure that leaves the solver carries a Code so callers can tell
// a provisioning problem from a page-level one without string matching.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a task failure.
type Code string

const (
	// CodeValidation means the task input was rejected before any session
	// was created.
	CodeValidation Code = "VALIDATION"

	// CodeConnection means provisioning or the control handshake failed.
	CodeConnection Code = "CONNECTION"

	// CodeNavigation covers the initial load timeout and login-wall
	// redirects.
	CodeNavigation Code = "NAVIGATION"

	// CodeInputNotFound means no prompt composer candidate resolved.
	CodeInputNotFound Code = "INPUT_NOT_FOUND"

	// CodeResponseTimeout means the task deadline elapsed before the
	// watcher saw a stable answer.
	CodeResponseTimeout Code = "RESPONSE_TIMEOUT"

	// CodeServiceUnavailable means a known error banner was detected in
	// the page markup.
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"

	// CodeInternal wraps any uncategorized fault.
	CodeInternal Code = "INTERNAL"
)

// InternalMarker prefixes reasons that originate from uncategorized faults.
// Reasons carrying it are logged in full but blanked before leaving the
// system.
const InternalMarker = "[InternalError]:"

// Error is a categorized task failure.
type Error struct {
	Code       Code
	Message    string
	Underlying error
	Context    map[string]any
}

// New creates a categorized error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a categorized error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. Returns nil when
// err is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Underlying: err}
}

// Internal wraps an uncategorized fault with the internal marker.
func Internal(err error) *Error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Code:       CodeInternal,
		Message:    InternalMarker + " " + msg,
		Underlying: err,
	}
}

// WithContext adds a key-value pair to the error context.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// ExternalReason returns the reason string safe to surface outside the
// system: internal-marked reasons are blanked, everything else passes
// through unchanged.
func (e *Error) ExternalReason() string {
	if e == nil {
		return ""
	}
	if strings.Contains(e.Message, InternalMarker) {
		return ""
	}
	return e.Message
}

// Reason extracts the externally safe reason from an error chain.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.ExternalReason()
	}
	return err.Error()
}

// CodeOf extracts the fault code from an error chain, or CodeInternal when
// the error carries no code.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// IsCategorized reports whether the error carries a fault code other than
// CodeInternal.
func IsCategorized(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code != CodeInternal
}
