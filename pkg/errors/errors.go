// Package errors provides the structured error system for metawrite with
// error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for pipeline operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Type resolution errors
	ErrCodeTypeUnresolved ErrorCode = "TYPE_UNRESOLVED"
	ErrCodeTypeInvalid    ErrorCode = "TYPE_INVALID"

	// Value transformation errors
	ErrCodeTransformationFailed ErrorCode = "TRANSFORMATION_FAILED"

	// Transport errors (transient by default)
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"
	ErrCodeRateLimited  ErrorCode = "RATE_LIMITED"
	ErrCodeServerError  ErrorCode = "SERVER_ERROR"
	ErrCodeCircuitOpen  ErrorCode = "CIRCUIT_OPEN"

	// Remote application errors
	ErrCodeGraphQLError     ErrorCode = "GRAPHQL_ERROR"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Caller-input errors ("fix your input", never retried)
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Operation errors
	ErrCodeTransientFailure ErrorCode = "TRANSIENT_FAILURE"
	ErrCodeRetryExhausted   ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeBatchRejected    ErrorCode = "BATCH_REJECTED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryResolution     ErrorCategory = "resolution"
	CategoryTransformation ErrorCategory = "transformation"
	CategoryTransport      ErrorCategory = "transport"
	CategoryValidation     ErrorCategory = "validation"
	CategoryOperation      ErrorCategory = "operation"
	CategoryInternal       ErrorCategory = "internal"
)

// WriteError represents a structured pipeline error with context and metadata.
type WriteError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`

	// Retryable marks failures that may succeed on a later attempt.
	// Callers distinguish "fix your input" from "retry later" through it.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error wrapping compatibility.
func (e *WriteError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code for errors.Is compatibility.
func (e *WriteError) Is(target error) bool {
	if we, ok := target.(*WriteError); ok {
		return e.Code == we.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *WriteError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("WriteError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *WriteError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// New creates a new WriteError with defaults derived from the code.
func New(code ErrorCode, message string) *WriteError {
	return &WriteError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: IsRetryableByDefault(code),
	}
}

// Newf creates a new WriteError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *WriteError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a new WriteError wrapping an underlying cause.
func Wrap(cause error, code ErrorCode, message string) *WriteError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithContext adds contextual information to an error.
func (e *WriteError) WithContext(key, value string) *WriteError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component for an error.
func (e *WriteError) WithComponent(component string) *WriteError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error.
func (e *WriteError) WithOperation(operation string) *WriteError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *WriteError) WithCause(cause error) *WriteError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the default retryability of the code.
func (e *WriteError) WithRetryable(retryable bool) *WriteError {
	e.Retryable = retryable
	return e
}

// GetCategory determines the category for an error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig:
		return CategoryConfiguration
	case ErrCodeTypeUnresolved, ErrCodeTypeInvalid:
		return CategoryResolution
	case ErrCodeTransformationFailed:
		return CategoryTransformation
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError, ErrCodeCircuitOpen:
		return CategoryTransport
	case ErrCodeGraphQLError, ErrCodeValidationFailed, ErrCodeBatchRejected,
		ErrCodeInvalidInput:
		return CategoryValidation
	case ErrCodeTransientFailure, ErrCodeRetryExhausted:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether an error code is retryable by default.
// Validation and transformation failures are caller-fixable, never retried.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeRateLimited, ErrCodeServerError,
		ErrCodeCircuitOpen, ErrCodeTransientFailure:
		return true
	}
	return false
}

// CodeOf extracts the error code from err, or ErrCodeInternalError when err
// is not a WriteError.
func CodeOf(err error) ErrorCode {
	var we *WriteError
	if stderrors.As(err, &we) {
		return we.Code
	}
	return ErrCodeInternalError
}

// IsRetryable reports whether err should be retried. Non-WriteError values
// are treated as opaque transient signals from the transport.
func IsRetryable(err error) bool {
	var we *WriteError
	if stderrors.As(err, &we) {
		return we.Retryable
	}
	return err != nil
}

// IsValidation reports whether err is a validation failure — a remote
// rejection or malformed caller input. Never retried.
func IsValidation(err error) bool {
	var we *WriteError
	if stderrors.As(err, &we) {
		return we.Category == CategoryValidation
	}
	return false
}
