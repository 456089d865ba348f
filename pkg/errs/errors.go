// Package errs provides structured, user-friendly errors with machine-parseable codes.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode is a machine-parseable error identifier.
type ErrorCode string

const (
	// General
	ErrUnknown    ErrorCode = "ERR-000"
	ErrInternal   ErrorCode = "ERR-001"
	ErrConfig     ErrorCode = "ERR-002"
	ErrValidation ErrorCode = "ERR-003"

	// Agent link errors
	ErrAgentUnreachable ErrorCode = "ERR-AGENT-001"
	ErrStatsUnavailable ErrorCode = "ERR-AGENT-002"

	// Tunnel errors
	ErrTunnelStart ErrorCode = "ERR-TUNNEL-001"
	ErrTunnelStop  ErrorCode = "ERR-TUNNEL-002"

	// Session errors
	ErrIntentRejected ErrorCode = "ERR-SESSION-001"

	// State errors
	ErrStateRead  ErrorCode = "ERR-STATE-001"
	ErrStateWrite ErrorCode = "ERR-STATE-002"
)

// kindNames are the short taxonomy names surfaced to the view layer.
var kindNames = map[ErrorCode]string{
	ErrUnknown:          "Unknown",
	ErrInternal:         "Internal",
	ErrConfig:           "ConfigInvalid",
	ErrValidation:       "ValidationFailed",
	ErrAgentUnreachable: "AgentUnreachable",
	ErrStatsUnavailable: "StatsUnavailable",
	ErrTunnelStart:      "TunnelStartFailed",
	ErrTunnelStop:       "TunnelStopFailed",
	ErrIntentRejected:   "IntentRejected",
	ErrStateRead:        "StateReadFailed",
	ErrStateWrite:       "StateWriteFailed",
}

// Error is the standard structured error type used across all agentdeck packages.
type Error struct {
	Code   ErrorCode // Machine-parseable error code
	Op     string    // Operation chain, e.g., "agentlink.health"
	Cause  error     // Wrapped upstream error
	Advice string    // Human-readable remediation hint
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the taxonomy name for the error code, e.g. "AgentUnreachable".
func (e *Error) Kind() string {
	if k, ok := kindNames[e.Code]; ok {
		return k
	}
	return kindNames[ErrUnknown]
}

// Detail returns the cause text without code or operation decoration.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// UserMessage returns the formatted user-facing error message with remediation advice.
func (e *Error) UserMessage() string {
	msg := fmt.Sprintf("%s: %s", e.Code, Describe(e))
	if e.Advice != "" {
		msg += fmt.Sprintf("\n  → %s", e.Advice)
	}
	return msg
}

// New creates a new Error.
func New(code ErrorCode, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Cause: cause}
}

// Newf creates a new Error with a formatted message as the cause.
func Newf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Cause: fmt.Errorf(format, args...)}
}

// WithAdvice sets the human-readable remediation hint on an Error.
func (e *Error) WithAdvice(advice string) *Error {
	e.Advice = advice
	return e
}

// Wrap wraps an existing error as an Error at a new operation boundary.
func Wrap(err error, code ErrorCode, op string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Cause: err}
}

// IsCode reports whether err is an Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// As extracts the *Error from err, or returns nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Describe renders err as "Kind: detail", the form stored in session state.
// Errors outside the taxonomy are rendered as "Unknown: <message>".
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if e := As(err); e != nil {
		if d := e.Detail(); d != "" {
			return e.Kind() + ": " + d
		}
		return e.Kind()
	}
	return kindNames[ErrUnknown] + ": " + err.Error()
}

// ─────────────────────────────────────────────────────────────────────────────
// Field validation
// ─────────────────────────────────────────────────────────────────────────────

// FieldErrors maps a form field name to its validation message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+f[k])
	}
	return strings.Join(parts, "; ")
}

// Validation wraps field errors as an ErrValidation Error.
func Validation(op string, fields FieldErrors) *Error {
	return &Error{Code: ErrValidation, Op: op, Cause: fields}
}

// Fields extracts FieldErrors from a validation error, or returns nil.
func Fields(err error) FieldErrors {
	var f FieldErrors
	if errors.As(err, &f) {
		return f
	}
	return nil
}
