// Package api defines the HTTP protocol between the rulesync daemon and its
// clients: routes, request bodies and the error envelope.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/grovetools/rulesync/errors"
)

// BaseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const BaseURL = "http://unix"

// Routes.
const (
	PathHealth        = "/health"
	PathTree          = "/api/tree"
	PathGitStatus     = "/api/git/status"
	PathBranches      = "/api/git/branches"
	PathResources     = "/api/resources"
	PathFiles         = "/api/files"
	PathFileMove      = "/api/files/move"
	PathFileMkdir     = "/api/files/mkdir"
	PathFileDelete    = "/api/files/delete"
	PathGitCommit     = "/api/git/commit"
	PathGitPull       = "/api/git/pull"
	PathGitCheckout   = "/api/git/checkout"
	PathGitBranch     = "/api/git/branch"
	PathGitInitialize = "/api/git/initialize"
	PathEvents        = "/api/events"
)

// Event topics served under PathEvents.
const (
	TopicConfig     = "config"
	TopicOperations = "operations"
	TopicJobs       = "jobs"
)

// CreateResourceRequest is the body of POST /api/resources.
type CreateResourceRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	YAML string `json:"yaml"`
	Path string `json:"path,omitempty"`
}

// UpdateResourceRequest is the body of PUT /api/resources/{kind}/{name}.
type UpdateResourceRequest struct {
	YAML string `json:"yaml"`
}

// FileContent is the body returned by GET /api/files.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// MoveRequest is the body of POST /api/files/move.
type MoveRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// PathRequest is the body of the single-path file operations.
type PathRequest struct {
	Path string `json:"path"`
}

// CommitRequest is the body of POST /api/git/commit.
type CommitRequest struct {
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

// CheckoutRequest is the body of POST /api/git/checkout.
type CheckoutRequest struct {
	Branch string `json:"branch"`
}

// BranchRequest is the body of POST /api/git/branch.
type BranchRequest struct {
	Name     string `json:"name"`
	SwitchTo bool   `json:"switchTo"`
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Code    errors.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusFor maps an error code to the HTTP status the daemon answers with.
func StatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeMissingName, errors.ErrCodeInvalidResource, errors.ErrCodeInvalidInput,
		errors.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeConfigNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyExists, errors.ErrCodeNothingToCommit:
		return http.StatusConflict
	case errors.ErrCodeStreamDisconnected:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err as an ErrorBody. Errors without a code are reported
// as backend failures.
func WriteError(w http.ResponseWriter, err error) {
	body := ErrorBody{Code: errors.ErrCodeBackendFailed, Message: err.Error()}
	if syncErr, ok := errors.As(err); ok {
		body = ErrorBody{Code: syncErr.Code, Message: errors.Message(syncErr), Details: syncErr.Details}
	}
	WriteJSON(w, StatusFor(body.Code), body)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeError rebuilds the SyncError carried by a non-2xx response.
func DecodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		return errors.New(errors.ErrCodeBackendFailed, "daemon returned status "+http.StatusText(resp.StatusCode)).
			WithDetail("status", resp.StatusCode)
	}
	syncErr := errors.New(body.Code, body.Message)
	for k, v := range body.Details {
		syncErr = syncErr.WithDetail(k, v)
	}
	return syncErr
}
