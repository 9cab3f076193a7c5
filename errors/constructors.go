package errors

import (
	"fmt"
	"os/exec"
)

// MissingName creates the validation error raised when a submitted resource
// document has no metadata.name.
func MissingName(kind string) *SyncError {
	return New(ErrCodeMissingName, fmt.Sprintf("%s resource is missing metadata.name", kind)).
		WithDetail("kind", kind)
}

// InvalidResource creates a resource validation error
func InvalidResource(reason string) *SyncError {
	return New(ErrCodeInvalidResource, fmt.Sprintf("invalid resource: %s", reason))
}

// NotFound creates a not found error for a resource or path
func NotFound(what string) *SyncError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", what)).
		WithDetail("target", what)
}

// AlreadyExists creates an error for a create that collides with an existing resource
func AlreadyExists(what string) *SyncError {
	return New(ErrCodeAlreadyExists, fmt.Sprintf("%s already exists", what)).
		WithDetail("target", what)
}

// BackendFailed wraps a failed backend call
func BackendFailed(op string, err error) *SyncError {
	return Wrap(err, ErrCodeBackendFailed, fmt.Sprintf("%s failed", op)).
		WithDetail("operation", op)
}

// OperationFailed creates the error for a backend result that reported
// success=false.
func OperationFailed(op, reason string) *SyncError {
	if reason == "" {
		reason = "unknown error"
	}
	return New(ErrCodeOperationFailed, fmt.Sprintf("%s failed: %s", op, reason)).
		WithDetail("operation", op)
}

// NothingToCommit creates the error returned by a commit with a clean tree
func NothingToCommit() *SyncError {
	return New(ErrCodeNothingToCommit, "nothing to commit, working tree clean")
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *SyncError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *SyncError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// StreamDisconnected wraps an event stream failure
func StreamDisconnected(stream string, err error) *SyncError {
	return Wrap(err, ErrCodeStreamDisconnected, fmt.Sprintf("%s stream disconnected", stream)).
		WithDetail("stream", stream)
}

// CommandFailed creates a command execution failure error
func CommandFailed(cmd string, err error) *SyncError {
	syncErr := Wrap(err, ErrCodeCommandFailed, fmt.Sprintf("command failed: %s", cmd)).
		WithDetail("command", cmd)

	// Extract exit code if available
	if exitErr, ok := err.(*exec.ExitError); ok {
		syncErr = syncErr.WithDetail("exitCode", exitErr.ExitCode())
	}

	return syncErr
}
