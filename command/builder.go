package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default command execution timeout
	DefaultTimeout = 2 * time.Minute

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 10 * time.Minute
)

var (
	gitRefPattern       = regexp.MustCompile(`^[a-zA-Z0-9/_.-]+$`)
	resourceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
	remoteURLPattern    = regexp.MustCompile(`^([a-z][a-z0-9+.-]*://|[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+:|/|\.{1,2}/)`)
)

// SafeBuilder provides secure command execution with validation
type SafeBuilder struct {
	defaultTimeout time.Duration
	validators     map[string]func(string) error
	executor       Executor
}

// NewSafeBuilder creates a SafeBuilder that runs binaries from PATH.
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(SystemExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	return &SafeBuilder{
		defaultTimeout: DefaultTimeout,
		validators:     makeDefaultValidators(),
		executor:       exec,
	}
}

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]func(string) error {
	return map[string]func(string) error{
		"fileName":     validateFileName,
		"gitRef":       validateGitRef,
		"resourceName": validateResourceName,
		"remoteURL":    validateRemoteURL,
	}
}

// validateFileName ensures file paths are safe
func validateFileName(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	// Prevent directory traversal
	for _, part := range strings.Split(strings.ReplaceAll(path, "\\", "/"), "/") {
		if part == ".." {
			return fmt.Errorf("file path cannot contain '..'")
		}
	}

	// Prevent command injection via shell metacharacters
	if strings.ContainsAny(path, ";|&$`") {
		return fmt.Errorf("file path contains invalid characters")
	}

	// Leading dashes would be read as options
	if strings.HasPrefix(path, "-") {
		return fmt.Errorf("file path cannot start with '-'")
	}

	return nil
}

// validateGitRef ensures git references are safe
func validateGitRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("git ref cannot be empty")
	}

	// Git refs: alphanumeric, slashes, hyphens, underscores, dots
	if !gitRefPattern.MatchString(ref) || strings.HasPrefix(ref, "-") || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid git ref: %s", ref)
	}

	return nil
}

// validateResourceName ensures resource names map to safe file names
func validateResourceName(name string) error {
	if name == "" {
		return fmt.Errorf("resource name cannot be empty")
	}
	if !resourceNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid resource name: %s", name)
	}
	return nil
}

// validateRemoteURL accepts URL, scp-like and local path remotes
func validateRemoteURL(url string) error {
	if url == "" {
		return fmt.Errorf("remote URL cannot be empty")
	}
	if strings.HasPrefix(url, "-") || strings.ContainsAny(url, " ;|&$`\n") {
		return fmt.Errorf("remote URL contains invalid characters")
	}
	if !remoteURLPattern.MatchString(url) {
		return fmt.Errorf("unsupported remote URL: %s", url)
	}
	return nil
}

// Command represents a safe command configuration
type Command struct {
	ctx      context.Context
	cancel   context.CancelFunc
	name     string
	args     []string
	dir      string
	env      []string
	timeout  time.Duration
	executor Executor
}

// Build creates a new command with validation
func (sb *SafeBuilder) Build(ctx context.Context, name string, args ...string) (*Command, error) {
	// Validate command name
	if name == "" {
		return nil, fmt.Errorf("command name cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sb.defaultTimeout)

	return &Command{
		ctx:      timeoutCtx,
		cancel:   cancel,
		name:     name,
		args:     args,
		timeout:  sb.defaultTimeout,
		executor: sb.executor,
	}, nil
}

// WithTimeout sets a custom timeout for the command, derived from the
// context the command was built with.
func (c *Command) WithTimeout(parent context.Context, timeout time.Duration) *Command {
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	c.cancel()
	c.ctx, c.cancel = context.WithTimeout(parent, timeout)
	c.timeout = timeout
	return c
}

// InDir sets the working directory
func (c *Command) InDir(dir string) *Command {
	c.dir = dir
	return c
}

// WithEnv appends environment variables in KEY=VALUE form
func (c *Command) WithEnv(env ...string) *Command {
	c.env = append(c.env, env...)
	return c
}

// Available reports whether the named binary can be resolved.
func (sb *SafeBuilder) Available(name string) bool {
	_, err := sb.executor.LookPath(name)
	return err == nil
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

// String returns the command line for logging
func (c *Command) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

// Exec creates and returns an exec.Cmd. The caller must call Release once
// the command has finished.
func (c *Command) Exec() *exec.Cmd {
	cmd := c.executor.CommandContext(c.ctx, c.name, c.args...) //nolint:gosec // SafeBuilder provides validation
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}
	return cmd
}

// Release frees the command's timeout context
func (c *Command) Release() {
	c.cancel()
}

// Result is the captured output of a finished command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes the command and captures its output. A non-zero exit is
// returned as an error alongside the captured result.
func (c *Command) Run() (*Result, error) {
	defer c.Release()

	cmd := c.Exec()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil {
		if c.ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%s timed out after %s", c.String(), c.timeout)
		}
		return res, err
	}
	return res, nil
}
