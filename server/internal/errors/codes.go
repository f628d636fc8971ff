package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for chat operations.
type ErrorCode string

const (
	// ErrCodeBadRequest indicates invalid input parameters.
	ErrCodeBadRequest ErrorCode = "bad_request"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeForbidden indicates the caller does not own the resource.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeNotFound indicates the requested resource does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	// ErrCodeToolError indicates an ability invocation failed.
	ErrCodeToolError ErrorCode = "tool_error"
	// ErrCodeUploadError indicates a generated file could not be stored.
	ErrCodeUploadError ErrorCode = "upload_error"
	// ErrCodeStreamFatal indicates the provider stream broke before completion.
	ErrCodeStreamFatal ErrorCode = "stream_fatal"
	// ErrCodeNoResponse indicates the model produced no output at all.
	ErrCodeNoResponse ErrorCode = "no_response"
)

// ChatError represents a structured error for chat operations.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ChatError) WithContext(key string, value interface{}) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *ChatError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// BadRequest creates a bad request error.
func BadRequest(msg string) *ChatError {
	return &ChatError{Code: ErrCodeBadRequest, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *ChatError {
	return &ChatError{Code: ErrCodeUnauthorized, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *ChatError {
	return &ChatError{Code: ErrCodeForbidden, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *ChatError {
	return &ChatError{Code: ErrCodeNotFound, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ChatError {
	return &ChatError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// ToolError creates a tool invocation error.
func ToolError(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeToolError, Message: msg, Cause: cause}
}

// UploadError creates an upload error.
func UploadError(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeUploadError, Message: msg, Cause: cause}
}

// StreamFatal creates a fatal stream error.
func StreamFatal(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeStreamFatal, Message: msg, Cause: cause}
}

// NoResponse creates an empty response error.
func NoResponse(msg string) *ChatError {
	return &ChatError{Code: ErrCodeNoResponse, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ChatError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if chatErr, ok := err.(*ChatError); ok {
		return chatErr.Code
	}
	return defaultCode
}
