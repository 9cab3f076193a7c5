package command

import (
	"context"
	"os/exec"
)

// Executor starts the processes a Command runs and resolves binaries for
// availability checks.
type Executor interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
	LookPath(name string) (string, error)
}

// SystemExecutor resolves binaries from PATH.
type SystemExecutor struct{}

func (SystemExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

func (SystemExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
