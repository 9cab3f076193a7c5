package local

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/git"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
)

const remoteName = "origin"

// GetGitStatus implements backend.Reader.
func (b *Backend) GetGitStatus(ctx context.Context) (*models.GitStatus, error) {
	status, err := b.git.Status(ctx)
	if err != nil {
		return nil, b.gitError("status", err)
	}
	return status, nil
}

// GetBranches implements backend.Reader.
func (b *Backend) GetBranches(ctx context.Context) ([]models.BranchInfo, error) {
	branches, err := b.git.Branches(ctx)
	if err != nil {
		return nil, b.gitError("list branches", err)
	}
	return branches, nil
}

// operation publishes the progress events of one git operation.
type operation struct {
	b   *Backend
	id  string
	typ models.OperationType
}

func (b *Backend) startOperation(typ models.OperationType) *operation {
	op := &operation{b: b, id: uuid.Must(uuid.NewV7()).String(), typ: typ}
	op.phase(models.PhaseStarting, "")
	return op
}

func (op *operation) publish(ev models.OperationProgressEvent) {
	ev.OperationID = op.id
	ev.OperationType = op.typ
	ev.Timestamp = op.b.clock.Now()
	op.b.operationEvents.Publish(ev)
}

func (op *operation) phase(p models.Phase, msg string) {
	op.publish(models.OperationProgressEvent{Phase: p, Message: msg})
}

// line turns one line of git --progress output into an event.
func (op *operation) line(line string) {
	if p, ok := git.ParseProgress(line); ok {
		op.publish(p.Event(op.id, op.typ))
	}
}

// finish publishes the terminal event for err and returns it.
func (op *operation) finish(err error, msg string) error {
	if err != nil {
		op.publish(models.OperationProgressEvent{Phase: models.PhaseFailed, Error: errors.Message(err)})
		return err
	}
	op.phase(models.PhaseCompleted, msg)
	return nil
}

// GitCommit implements backend.Mutator.
func (b *Backend) GitCommit(ctx context.Context, message string, files []string) error {
	if message == "" {
		return errors.New(errors.ErrCodeInvalidInput, "commit message is required")
	}
	rel := make([]string, 0, len(files))
	for _, f := range files {
		r, err := b.relative(f)
		if err != nil {
			return err
		}
		rel = append(rel, r)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.git.IsRepo(ctx) {
		return errors.OperationFailed("commit", "not a git repository")
	}

	op := b.startOperation(models.OpCommit)
	op.phase(models.PhaseStagingFiles, "")
	if err := b.git.Stage(ctx, rel); err != nil {
		return op.finish(b.gitError("commit", err), "")
	}
	staged, err := b.git.HasStagedChanges(ctx)
	if err != nil {
		return op.finish(b.gitError("commit", err), "")
	}
	if !staged {
		return op.finish(errors.NothingToCommit(), "")
	}
	op.phase(models.PhaseCommitting, "")
	if err := b.git.Commit(ctx, message, rel); err != nil {
		return op.finish(b.gitError("commit", err), "")
	}
	return op.finish(nil, message)
}

// GitPull implements backend.Mutator.
func (b *Backend) GitPull(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.git.IsRepo(ctx) {
		return errors.OperationFailed("pull", "not a git repository")
	}

	op := b.startOperation(models.OpPull)
	op.phase(models.PhasePulling, "")
	err := b.git.RunWithProgress(ctx, op.line, "pull", "--progress", "--no-rebase", "--no-edit")
	if err != nil {
		return op.finish(b.gitError("pull", err), "")
	}
	return op.finish(nil, "")
}

// GitCheckout implements backend.Mutator.
func (b *Backend) GitCheckout(ctx context.Context, branch string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	op := b.startOperation(models.OpCheckout)
	op.phase(models.PhaseCheckingOut, branch)
	if err := b.git.Checkout(ctx, branch); err != nil {
		return op.finish(b.gitError("checkout", err), "")
	}
	return op.finish(nil, branch)
}

// GitCreateBranch implements backend.Mutator.
func (b *Backend) GitCreateBranch(ctx context.Context, name string, switchTo bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.git.CreateBranch(ctx, name, switchTo); err != nil {
		return b.gitError("create branch", err)
	}
	return nil
}

// GitInitialize implements backend.Mutator. It turns the root into a clone
// of the repository named by the Settings resource, keeping local files:
//
//   - remote branch missing: local files become the first commit and are
//     pushed;
//   - no local files: the work tree is reset to the remote branch;
//   - otherwise local files are committed and the remote branch merged in.
//
// A conflicting merge is aborted and reported through ConflictingFiles.
func (b *Backend) GitInitialize(ctx context.Context) (*models.InitializeResult, error) {
	settings, err := b.settings(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.RemoteConfigured() {
		return nil, errors.ConfigInvalid("git sync is not enabled or has no repository")
	}
	branch := settings.Git.Branch
	if branch == "" {
		branch = DefaultBranch
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.git.IsRepo(ctx) {
		return &models.InitializeResult{ConflictingFiles: []string{}, Message: "already a git repository"}, nil
	}

	op := b.startOperation(models.OpInitialize)
	res, err := b.initialize(ctx, op, settings.Git.Repository, branch)
	if err != nil {
		return nil, op.finish(b.gitError("initialize", err), "")
	}
	if res.HasConflicts() {
		op.phase(models.PhaseCompleted, res.Message)
		return res, nil
	}
	return res, op.finish(nil, res.Message)
}

func (b *Backend) initialize(ctx context.Context, op *operation, url, branch string) (res *models.InitializeResult, err error) {
	if err := b.git.Init(ctx, branch); err != nil {
		return nil, err
	}
	// Any failure after init leaves no repository behind.
	defer func() {
		if err != nil {
			b.rollback()
			res = nil
		}
	}()
	if err := b.git.AddRemote(ctx, remoteName, url); err != nil {
		return nil, err
	}

	op.phase(models.PhaseFetching, url)
	if err := b.git.RunWithProgress(ctx, op.line, "fetch", "--progress", remoteName); err != nil {
		return nil, err
	}

	res = &models.InitializeResult{ConflictingFiles: []string{}}
	remoteRef := remoteName + "/" + branch
	if err := b.git.Stage(ctx, nil); err != nil {
		return nil, err
	}
	hasLocal, err := b.git.HasStagedChanges(ctx)
	if err != nil {
		return nil, err
	}

	if !b.git.RemoteBranchExists(ctx, remoteName, branch) {
		if !hasLocal {
			res.Message = "initialized repository; remote branch " + branch + " does not exist yet"
			return res, nil
		}
		op.phase(models.PhaseCommitting, "")
		if err := b.git.Commit(ctx, "Initial configuration", nil); err != nil {
			return nil, err
		}
		op.phase(models.PhasePushing, "")
		if err := b.git.RunWithProgress(ctx, op.line, "push", "--progress", "-u", remoteName, branch); err != nil {
			return nil, err
		}
		res.Message = "pushed local configuration to " + remoteRef
		return res, nil
	}

	if !hasLocal {
		if err := b.git.ResetTo(ctx, remoteRef); err != nil {
			return nil, err
		}
		if err := b.git.SetUpstream(ctx, remoteRef); err != nil {
			return nil, err
		}
		res.Message = "checked out " + remoteRef
		return res, nil
	}

	op.phase(models.PhaseCommitting, "")
	if err := b.git.Commit(ctx, "Local configuration before sync", nil); err != nil {
		return nil, err
	}
	op.phase(models.PhaseMerging, remoteRef)
	conflicts, err := b.git.Merge(ctx, remoteRef)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		res.ConflictingFiles = conflicts
		res.Message = "local changes conflict with " + remoteRef
		return res, nil
	}
	if err := b.git.SetUpstream(ctx, remoteRef); err != nil {
		return nil, err
	}
	res.Merged = true
	res.Message = "merged " + remoteRef
	return res, nil
}

// rollback removes a repository created by a failed initialize so the next
// attempt starts over.
func (b *Backend) rollback() {
	if err := os.RemoveAll(filepath.Join(b.root, ".git")); err != nil {
		b.logger.WithError(err).Warn("Failed to remove partial repository")
	}
}

// settings reads the Settings resource. No resource yields zero settings.
func (b *Backend) settings(ctx context.Context) (*models.Settings, error) {
	s, err := b.scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range s.entries {
		if e.ref.Kind != models.KindSettings {
			continue
		}
		res, err := b.load(e)
		if err != nil {
			return nil, err
		}
		return resource.ParseSettings(res.YAML)
	}
	return &models.Settings{}, nil
}

// gitError keeps structured errors and wraps the rest as backend failures.
func (b *Backend) gitError(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.BackendFailed(op, err)
}
