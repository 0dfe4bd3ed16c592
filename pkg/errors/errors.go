package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown       ErrorCode = "UNKNOWN"
	ErrInternal      ErrorCode = "INTERNAL"
	ErrInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrPermission    ErrorCode = "PERMISSION"

	// Descriptor and version errors
	ErrSchema           ErrorCode = "SCHEMA"
	ErrVersionFormat    ErrorCode = "VERSION_FORMAT"
	ErrConstraintSyntax ErrorCode = "CONSTRAINT_SYNTAX"

	// Resolver errors
	ErrCycle          ErrorCode = "CYCLE"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrMissingCommand ErrorCode = "MISSING_COMMAND"

	// Archive and state-store errors
	ErrArchiveIntegrity ErrorCode = "ARCHIVE_INTEGRITY"
	ErrLockHeld         ErrorCode = "LOCK_HELD"

	// FileSystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrFileCreate ErrorCode = "FILE_CREATE"
	ErrFileWrite  ErrorCode = "FILE_WRITE"
	ErrDirCreate  ErrorCode = "DIR_CREATE"
)

// IpakError represents a structured error with code and details
type IpakError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *IpakError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *IpakError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *IpakError) Is(target error) bool {
	var targetErr *IpakError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new IpakError with the given code and message
func New(code ErrorCode, message string) *IpakError {
	return &IpakError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new IpakError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *IpakError {
	return &IpakError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an IpakError
func Wrap(err error, code ErrorCode, message string) *IpakError {
	if err == nil {
		return nil
	}
	return &IpakError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *IpakError {
	if err == nil {
		return nil
	}
	return &IpakError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *IpakError) WithDetail(key string, value interface{}) *IpakError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *IpakError) WithDetails(details map[string]interface{}) *IpakError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var ipakErr *IpakError
	if errors.As(err, &ipakErr) {
		return ipakErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not an IpakError
func GetErrorCode(err error) ErrorCode {
	var ipakErr *IpakError
	if errors.As(err, &ipakErr) {
		return ipakErr.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details from an error, or nil if not an IpakError
func GetErrorDetails(err error) map[string]interface{} {
	var ipakErr *IpakError
	if errors.As(err, &ipakErr) {
		return ipakErr.Details
	}
	return nil
}
