package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Graph error codes
const (
	ErrGraphUnknownNode    ErrorCode = "GRAPH_UNKNOWN_NODE_REFERENCE"
	ErrGraphDuplicateNode  ErrorCode = "GRAPH_DUPLICATE_NODE"
	ErrGraphCycle          ErrorCode = "GRAPH_CYCLE_DETECTED"
	ErrGraphStepLimit      ErrorCode = "GRAPH_STEP_LIMIT_EXCEEDED"
	ErrGraphInvalidPayload ErrorCode = "GRAPH_INVALID_PAYLOAD"
)

// Condition error codes
const (
	ErrConditionTooLong     ErrorCode = "CONDITION_TOO_LONG"
	ErrConditionUnsafeToken ErrorCode = "CONDITION_UNSAFE_TOKEN"
	ErrConditionDisallowed  ErrorCode = "CONDITION_DISALLOWED_CONSTRUCT"
	ErrConditionEvaluation  ErrorCode = "CONDITION_EVALUATION_FAILED"
)

// Sandbox error codes
const (
	ErrSandboxForbidden ErrorCode = "SANDBOX_FORBIDDEN_CONSTRUCT"
	ErrSandboxSyntax    ErrorCode = "SANDBOX_SYNTAX_ERROR"
	ErrSandboxTimeout   ErrorCode = "SANDBOX_TIMED_OUT"
	ErrSandboxRuntime   ErrorCode = "SANDBOX_RUNTIME_ERROR"
	ErrSandboxMemory    ErrorCode = "SANDBOX_MEMORY_LIMIT_EXCEEDED"
)

// Dispatch error codes
const (
	ErrDispatchUpstream       ErrorCode = "DISPATCH_UPSTREAM"
	ErrDispatchUnexpected     ErrorCode = "DISPATCH_UNEXPECTED"
	ErrDispatchPluginNotFound ErrorCode = "DISPATCH_PLUGIN_NOT_FOUND"
	ErrDispatchAgentNotFound  ErrorCode = "DISPATCH_AGENT_NOT_FOUND"
	ErrDispatchRateLimited    ErrorCode = "DISPATCH_RATE_LIMITED"
)

// Executor error codes
const (
	ErrExecutorNoWorkflow ErrorCode = "EXECUTOR_NO_WORKFLOW"
	ErrExecutorBadGuard   ErrorCode = "EXECUTOR_BAD_GUARD"
)

// Collaborator error codes
const (
	ErrEmbeddingUnconfigured ErrorCode = "EMBEDDING_UNCONFIGURED"
	ErrEmbeddingFailed       ErrorCode = "EMBEDDING_FAILED"
	ErrStorage               ErrorCode = "STORAGE_ERROR"
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrInternalError         ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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

// Is matches errors by code so errors.Is(err, types.NewError(code, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
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

// NewBadRequestError builds a client-caused error (HTTP 400).
func NewBadRequestError(code ErrorCode, message string) *Error {
	return NewError(code, message).WithHTTPStatus(http.StatusBadRequest)
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether any *Error in the chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
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

// IsSandboxError reports whether err came from running a plugin in the
// sandbox. Such errors fail the node, not the run.
func IsSandboxError(err error) bool {
	return strings.HasPrefix(string(GetErrorCode(err)), "SANDBOX_")
}

// IsClientError reports whether err was caused by the caller (bad graph,
// bad input, bad plugin) rather than the infrastructure.
func IsClientError(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}
