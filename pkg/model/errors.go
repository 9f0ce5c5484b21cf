package model

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may
	// succeed on retry. Examples: resolver unavailable, runner busy.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates the operation lost a race against a
	// concurrent lifecycle transition.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error. Examples:
	// unknown locator scheme, dangling routing chain, policy denial.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes for programmatic handling.
const (
	// ErrCodeResolve indicates the resolver failed to produce a
	// declaration.
	ErrCodeResolve = "resolve_failed"

	// ErrCodeRouting indicates a capability routing chain could not be
	// completed.
	ErrCodeRouting = "routing_failed"

	// ErrCodeInstanceNotFound indicates a moniker did not name a live
	// instance.
	ErrCodeInstanceNotFound = "instance_not_found"

	// ErrCodeHookVeto indicates a hook aborted an in-flight lifecycle
	// transition.
	ErrCodeHookVeto = "hook_veto"

	// ErrCodeStart indicates the runner failed to execute the
	// component's program.
	ErrCodeStart = "start_failed"

	// ErrCodeInvariant indicates the model found itself in an
	// impossible state. This is a model bug, not a caller error.
	ErrCodeInvariant = "invariant_violation"
)

// ModelError represents a classified error with lifecycle context.
//
//nolint:revive // ModelError is intentionally named to distinguish from standard errors
type ModelError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Moniker is the component the error relates to, if applicable.
	Moniker string `json:"moniker,omitempty"`

	// Operation is the lifecycle operation being performed when the
	// error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	if e.Moniker != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (moniker=%s, operation=%s): %s",
			e.Class, e.Message, e.Moniker, e.Operation, e.unwrapMessage())
	}
	if e.Moniker != "" {
		return fmt.Sprintf("[%s] %s (moniker=%s): %s",
			e.Class, e.Message, e.Moniker, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ModelError) Unwrap() error {
	return e.Err
}

func (e *ModelError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *ModelError) Is(target error) bool {
	t, ok := target.(*ModelError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithCode sets the error code and returns the error.
func (e *ModelError) WithCode(code string) *ModelError {
	e.Code = code
	return e
}

// WithMoniker sets the moniker context and returns the error.
func (e *ModelError) WithMoniker(m Moniker) *ModelError {
	e.Moniker = m.String()
	return e
}

// WithOperation sets the operation context and returns the error.
func (e *ModelError) WithOperation(op string) *ModelError {
	e.Operation = op
	return e
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *ModelError {
	return &ModelError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *ModelError {
	return &ModelError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *ModelError {
	return &ModelError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// IsRetriable returns true if the error may succeed on retry.
func IsRetriable(err error) bool {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Class == ErrorClassTransient
	}
	return false
}

// ErrorCode extracts the error code from an error chain, or "" if the
// error is not a ModelError.
func ErrorCode(err error) string {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
