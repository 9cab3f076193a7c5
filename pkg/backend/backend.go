// Package backend defines the capability surface the rulesync engine consumes.
// The engine never touches files or git directly; everything goes through a
// Backend, which is either in-process (package local) or the rulesync daemon
// reached over its unix socket (package remote).
package backend

import (
	"context"

	"github.com/grovetools/rulesync/pkg/models"
)

// Reader is the read side of the backend.
type Reader interface {
	GetFileTree(ctx context.Context) (*models.FileTreeNode, error)
	GetGitStatus(ctx context.Context) (*models.GitStatus, error)
	GetBranches(ctx context.Context) ([]models.BranchInfo, error)
	GetResource(ctx context.Context, kind models.Kind, name string) (*models.Resource, error)
	// ListResources lists resources of the given kind, or of every kind when
	// kind is empty.
	ListResources(ctx context.Context, kind models.Kind) ([]models.ResourceInfo, error)
	ReadRawFile(ctx context.Context, path string) (string, error)
}

// Mutator is the write side of the backend.
type Mutator interface {
	CreateResource(ctx context.Context, kind models.Kind, name, yaml, path string) (*models.Resource, error)
	UpdateResource(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error)
	DeleteResource(ctx context.Context, kind models.Kind, name string) error

	// File operations report failure in-band through OperationResult; the
	// returned error is reserved for transport failures.
	MoveFile(ctx context.Context, src, dst string) (models.OperationResult, error)
	CreateDirectory(ctx context.Context, path string) (models.OperationResult, error)
	DeleteFile(ctx context.Context, path string) (models.OperationResult, error)

	GitCommit(ctx context.Context, message string, files []string) error
	GitPull(ctx context.Context) error
	GitCheckout(ctx context.Context, branch string) error
	GitCreateBranch(ctx context.Context, name string, switchTo bool) error
	GitInitialize(ctx context.Context) (*models.InitializeResult, error)
}

// Subscriber exposes the backend's event streams. Each call returns a channel
// that is closed when ctx is done or the stream breaks.
type Subscriber interface {
	SubscribeConfigChanges(ctx context.Context) (<-chan models.ConfigChange, error)
	SubscribeOperations(ctx context.Context) (<-chan models.OperationProgressEvent, error)
	SubscribeJobs(ctx context.Context) (<-chan models.JobEvent, error)
}

// Backend is the complete capability surface.
type Backend interface {
	Reader
	Mutator
	Subscriber

	// IsRemote reports whether calls cross the daemon socket.
	IsRemote() bool
	Close() error
}
