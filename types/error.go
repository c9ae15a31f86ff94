package types

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a unified error code across the gateway.
type ErrorCode string

// Load-time error codes. These are fatal to a profile load.
const (
	ErrSpecParse    ErrorCode = "SPEC_PARSE"
	ErrProfileLogic ErrorCode = "PROFILE_LOGIC"
	ErrDAGCycle     ErrorCode = "DAG_CYCLE"
)

// Call-time error codes. These reject a single tool invocation.
const (
	ErrMissingRequiredParameter       ErrorCode = "MISSING_REQUIRED_PARAMETER"
	ErrConditionallyRequiredParameter ErrorCode = "CONDITIONALLY_REQUIRED_PARAMETER"
	ErrInvalidEnumValue               ErrorCode = "INVALID_ENUM_VALUE"
	ErrUnresolvedOperation            ErrorCode = "UNRESOLVED_OPERATION"
	ErrToolNotFound                   ErrorCode = "TOOL_NOT_FOUND"
	ErrValidation                     ErrorCode = "VALIDATION_ERROR"
	ErrInvalidRequest                 ErrorCode = "INVALID_REQUEST"
)

// Network error codes.
const (
	ErrNetwork     ErrorCode = "NETWORK_ERROR"
	ErrRateLimited ErrorCode = "RATE_LIMITED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"http_status,omitempty"`
	Retryable  bool           `json:"retryable"`
	RetryAfter time.Duration  `json:"retry_after,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithRetryAfter records how long the caller should wait before trying again.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithDetail attaches a diagnostic key/value.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsCallerError reports whether the error was caused by invocation input
// rather than the backend or the gateway.
func IsCallerError(err error) bool {
	switch GetErrorCode(err) {
	case ErrMissingRequiredParameter, ErrConditionallyRequiredParameter,
		ErrInvalidEnumValue, ErrValidation, ErrUnresolvedOperation, ErrToolNotFound:
		return true
	}
	return false
}

// NewRateLimitError 构造客户端限流错误
func NewRateLimitError(retryAfter time.Duration) *Error {
	return NewError(ErrRateLimited, "client-side rate limit exceeded").
		WithHTTPStatus(http.StatusTooManyRequests).
		WithRetryable(true).
		WithRetryAfter(retryAfter)
}

// NewNetworkError 包装传输层错误（DNS、连接被拒绝等）
func NewNetworkError(cause error) *Error {
	return NewError(ErrNetwork, "backend request failed").
		WithRetryable(true).
		WithCause(cause)
}
