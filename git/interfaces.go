package git

import (
	"context"

	"github.com/grovetools/rulesync/pkg/models"
)

// Client is the set of git operations the local backend relies on
type Client interface {
	// Inspection
	IsRepo(ctx context.Context) bool
	Status(ctx context.Context) (*models.GitStatus, error)
	Branches(ctx context.Context) ([]models.BranchInfo, error)
	CurrentBranch(ctx context.Context) (string, error)
	HasCommits(ctx context.Context) bool
	HasStagedChanges(ctx context.Context) (bool, error)
	RemoteBranchExists(ctx context.Context, remote, branch string) bool

	// Local changes
	Init(ctx context.Context, branch string) error
	AddRemote(ctx context.Context, name, url string) error
	Stage(ctx context.Context, files []string) error
	Commit(ctx context.Context, message string, files []string) error
	Checkout(ctx context.Context, branch string) error
	CreateBranch(ctx context.Context, name string, switchTo bool) error
	Merge(ctx context.Context, ref string) ([]string, error)
	ResetTo(ctx context.Context, ref string) error
	SetUpstream(ctx context.Context, upstream string) error

	// Network operations stream their --progress output
	RunWithProgress(ctx context.Context, onLine ProgressFunc, args ...string) error
}

// Ensure it implements the interface
var _ Client = (*Repository)(nil)
