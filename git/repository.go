// Package git drives the git CLI for a single configuration root.
package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/command"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
)

// Repository runs git commands in one directory.
type Repository struct {
	dir        string
	cmdBuilder *command.SafeBuilder
	logger     *logrus.Entry
}

// NewRepository creates a Repository for dir using the real git binary.
func NewRepository(dir string) *Repository {
	return NewRepositoryWithBuilder(dir, command.NewSafeBuilder())
}

// NewRepositoryWithBuilder creates a Repository with a custom command builder.
func NewRepositoryWithBuilder(dir string, builder *command.SafeBuilder) *Repository {
	return &Repository{
		dir:        dir,
		cmdBuilder: builder,
		logger:     logging.NewLogger("git"),
	}
}

// Dir returns the working directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Available reports whether the git binary can be found.
func Available() bool {
	return command.NewSafeBuilder().Available("git")
}

// run executes git with args and returns stdout.
func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	res, err := r.runResult(ctx, args...)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (r *Repository) runResult(ctx context.Context, args ...string) (*command.Result, error) {
	cmd, err := r.cmdBuilder.Build(ctx, "git", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build command: %w", err)
	}
	r.logger.WithField("args", args).Debug("Running git")
	res, err := cmd.InDir(r.dir).Run()
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return res, errors.New(errors.ErrCodeGitNotInstalled, "git executable not found")
		}
		return res, errors.CommandFailed(cmd.String(), err).
			WithDetail("stderr", strings.TrimSpace(res.Stderr))
	}
	return res, nil
}

// IsRepo reports whether dir is the top level of a git work tree. A
// directory nested inside another repository is not.
func (r *Repository) IsRepo(ctx context.Context) bool {
	out, err := r.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return false
	}
	top, err := filepath.EvalSymlinks(strings.TrimSpace(out))
	if err != nil {
		return false
	}
	dir, err := filepath.EvalSymlinks(r.dir)
	if err != nil {
		return false
	}
	return top == dir
}

// Init creates a repository with the given initial branch.
func (r *Repository) Init(ctx context.Context, branch string) error {
	if err := r.cmdBuilder.Validate("gitRef", branch); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid branch name")
	}
	if _, err := r.run(ctx, "init", "--initial-branch="+branch); err != nil {
		return err
	}
	return nil
}

// AddRemote registers url as origin.
func (r *Repository) AddRemote(ctx context.Context, name, url string) error {
	if err := r.cmdBuilder.Validate("remoteURL", url); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid remote URL")
	}
	_, err := r.run(ctx, "remote", "add", name, url)
	return err
}

// CurrentBranch returns the checked out branch, empty when detached.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(out), nil
}

// Stage adds files to the index, or every change when files is empty.
func (r *Repository) Stage(ctx context.Context, files []string) error {
	args := []string{"add", "-A"}
	if len(files) > 0 {
		args = append(args, "--")
		for _, f := range files {
			if err := r.cmdBuilder.Validate("fileName", f); err != nil {
				return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid file path")
			}
			args = append(args, f)
		}
	}
	_, err := r.run(ctx, args...)
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repository) HasStagedChanges(ctx context.Context) (bool, error) {
	res, err := r.runResult(ctx, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	if res != nil && res.ExitCode == 1 {
		return true, nil
	}
	return false, err
}

// Commit stages files (every change when empty) and commits them. A clean
// index fails with ErrCodeNothingToCommit.
func (r *Repository) Commit(ctx context.Context, message string, files []string) error {
	if err := r.Stage(ctx, files); err != nil {
		return err
	}
	staged, err := r.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if !staged {
		return errors.NothingToCommit()
	}
	_, err = r.run(ctx, "commit", "--quiet", "-m", message)
	return err
}

// Checkout switches to an existing branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	if err := r.cmdBuilder.Validate("gitRef", branch); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid branch name")
	}
	_, err := r.run(ctx, "checkout", "--quiet", branch)
	return err
}

// CreateBranch creates name at HEAD, switching to it when switchTo is set.
func (r *Repository) CreateBranch(ctx context.Context, name string, switchTo bool) error {
	if err := r.cmdBuilder.Validate("gitRef", name); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid branch name")
	}
	if switchTo {
		_, err := r.run(ctx, "checkout", "--quiet", "-b", name)
		return err
	}
	_, err := r.run(ctx, "branch", name)
	return err
}

// RemoteBranchExists reports whether origin has branch after a fetch.
func (r *Repository) RemoteBranchExists(ctx context.Context, remote, branch string) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/remotes/"+remote+"/"+branch)
	return err == nil
}

// HasCommits reports whether HEAD points at a commit.
func (r *Repository) HasCommits(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}

// Merge merges ref into HEAD. On conflict the merge is aborted, restoring
// the pre-merge state, and the conflicting paths are returned.
func (r *Repository) Merge(ctx context.Context, ref string) ([]string, error) {
	_, err := r.run(ctx, "merge", "--no-edit", "--allow-unrelated-histories", ref)
	if err == nil {
		return nil, nil
	}
	out, diffErr := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if diffErr != nil || strings.TrimSpace(out) == "" {
		return nil, err
	}
	conflicts := splitLines(out)
	if _, abortErr := r.run(ctx, "merge", "--abort"); abortErr != nil {
		r.logger.WithError(abortErr).Warn("Failed to abort conflicting merge")
	}
	return conflicts, nil
}

// ResetTo points the current branch at ref and updates the work tree.
func (r *Repository) ResetTo(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "reset", "--quiet", "--hard", ref)
	return err
}

// SetUpstream sets the upstream of the current branch.
func (r *Repository) SetUpstream(ctx context.Context, upstream string) error {
	_, err := r.run(ctx, "branch", "--set-upstream-to="+upstream)
	return err
}

// ProgressFunc receives each progress line git writes to stderr.
type ProgressFunc func(line string)

// RunWithProgress runs a network command with --progress and streams its
// stderr lines to onLine.
func (r *Repository) RunWithProgress(ctx context.Context, onLine ProgressFunc, args ...string) error {
	cmd, err := r.cmdBuilder.Build(ctx, "git", args...)
	if err != nil {
		return fmt.Errorf("failed to build command: %w", err)
	}
	defer cmd.Release()
	cmd = cmd.WithTimeout(ctx, command.MaxTimeout).InDir(r.dir).WithEnv("GIT_TERMINAL_PROMPT=0")

	execCmd := cmd.Exec()
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stderr: %w", err)
	}
	execCmd.Stdout = io.Discard

	r.logger.WithField("args", args).Debug("Running git with progress")
	if err := execCmd.Start(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			return errors.New(errors.ErrCodeGitNotInstalled, "git executable not found")
		}
		return errors.CommandFailed(cmd.String(), err)
	}

	var tail bytes.Buffer
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.WriteString(line)
		tail.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}

	if err := execCmd.Wait(); err != nil {
		return errors.CommandFailed(cmd.String(), err).
			WithDetail("stderr", lastLines(tail.String(), 5))
	}
	return nil
}

// scanProgressLines splits on \n and on the \r git uses to redraw a line.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
