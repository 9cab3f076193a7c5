package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Validation errors. These are raised before anything reaches the backend.
	ErrCodeMissingName     ErrorCode = "MISSING_NAME"
	ErrCodeInvalidResource ErrorCode = "INVALID_RESOURCE"

	// Backend errors
	ErrCodeBackendFailed   ErrorCode = "BACKEND_FAILED"
	ErrCodeOperationFailed ErrorCode = "OPERATION_FAILED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists   ErrorCode = "ALREADY_EXISTS"

	// Git errors
	ErrCodeNothingToCommit ErrorCode = "NOTHING_TO_COMMIT"
	ErrCodeGitNotInstalled ErrorCode = "GIT_NOT_INSTALLED"
	ErrCodeCommandFailed   ErrorCode = "COMMAND_FAILED"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Stream errors
	ErrCodeStreamDisconnected ErrorCode = "STREAM_DISCONNECTED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// SyncError represents a structured error with context
type SyncError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *SyncError) WithDetail(key string, value interface{}) *SyncError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *SyncError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new SyncError
func New(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a SyncError
func Wrap(err error, code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// As finds the first SyncError in err's chain.
func As(err error) (*SyncError, bool) {
	var syncErr *SyncError
	if stderrors.As(err, &syncErr) {
		return syncErr, true
	}
	return nil, false
}

// Is checks if any SyncError in the chain carries the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var syncErr *SyncError
		if !stderrors.As(err, &syncErr) {
			return false
		}
		if syncErr.Code == code {
			return true
		}
		err = syncErr.Cause
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if syncErr, ok := As(err); ok {
		return syncErr.Code
	}
	return ""
}

// Message returns the human-readable message of err, without the code
// prefix when err is a SyncError.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if syncErr, ok := As(err); ok {
		if syncErr.Cause != nil && syncErr.Message == "" {
			return syncErr.Cause.Error()
		}
		return syncErr.Message
	}
	return err.Error()
}
