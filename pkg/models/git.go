package models

import (
	"path/filepath"
	"strings"
)

// FileState is the git state of a single file.
type FileState string

const (
	StateModified  FileState = "modified"
	StateAdded     FileState = "added"
	StateDeleted   FileState = "deleted"
	StateUntracked FileState = "untracked"
	StateRenamed   FileState = "renamed"
	StateStaged    FileState = "staged"
	StateConflict  FileState = "conflict"
)

// FileStatus is one entry of the repository status.
type FileStatus struct {
	Path   string    `json:"path"`
	Status FileState `json:"status"`
	Staged bool      `json:"staged"`
}

// GitStatus is the status of the repository at the configuration root.
type GitStatus struct {
	IsRepo bool         `json:"isRepo"`
	Branch string       `json:"branch,omitempty"`
	Ahead  int          `json:"ahead,omitempty"`
	Behind int          `json:"behind,omitempty"`
	Files  []FileStatus `json:"files"`
}

// IsDirty reports whether any file has uncommitted changes.
func (s *GitStatus) IsDirty() bool {
	return s != nil && len(s.Files) > 0
}

// Conflicts returns the paths currently carrying merge conflict markers.
func (s *GitStatus) Conflicts() []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, f := range s.Files {
		if f.Status == StateConflict {
			out = append(out, f.Path)
		}
	}
	return out
}

// StatusIndex maps file paths to a simplified status label. It is derived
// from one GitStatus value and rebuilt only when that value changes.
type StatusIndex struct {
	labels map[string]FileState
}

// NewStatusIndex builds the lookup map for status. Conflicts win over every
// other state for the same path.
func NewStatusIndex(status *GitStatus) *StatusIndex {
	idx := &StatusIndex{labels: make(map[string]FileState)}
	if status == nil {
		return idx
	}
	for _, f := range status.Files {
		key := normalizeStatusPath(f.Path)
		if prev, ok := idx.labels[key]; ok && prev == StateConflict {
			continue
		}
		idx.labels[key] = simplify(f)
	}
	return idx
}

func simplify(f FileStatus) FileState {
	switch f.Status {
	case StateConflict, StateDeleted, StateUntracked, StateRenamed, StateAdded:
		return f.Status
	case StateStaged:
		return StateModified
	}
	return StateModified
}

// Lookup returns the label for path. An exact match wins; otherwise a label is
// returned only when exactly one indexed path matches path as an absolute or
// relative suffix of the other.
func (i *StatusIndex) Lookup(path string) (FileState, bool) {
	if i == nil || len(i.labels) == 0 {
		return "", false
	}
	key := normalizeStatusPath(path)
	if label, ok := i.labels[key]; ok {
		return label, true
	}

	var (
		found FileState
		count int
	)
	for p, label := range i.labels {
		if strings.HasSuffix(p, "/"+key) || strings.HasSuffix(key, "/"+p) {
			found = label
			count++
			if count > 1 {
				return "", false
			}
		}
	}
	return found, count == 1
}

// Len returns the number of indexed paths.
func (i *StatusIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.labels)
}

func normalizeStatusPath(p string) string {
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimSuffix(p, "/")
}

// BranchInfo describes a local or remote-tracking branch.
type BranchInfo struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
	Remote  bool   `json:"remote"`
}

// InitializeResult is the outcome of the first synchronization of the
// configuration root with its remote repository.
type InitializeResult struct {
	Merged           bool     `json:"merged"`
	ConflictingFiles []string `json:"conflictingFiles"`
	Message          string   `json:"message"`
}

// HasConflicts reports whether the synchronization needs manual resolution.
func (r *InitializeResult) HasConflicts() bool {
	return r != nil && len(r.ConflictingFiles) > 0
}

// OperationResult is the result of a file operation. A false Success is a
// failure reported in-band rather than as a transport error.
type OperationResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
