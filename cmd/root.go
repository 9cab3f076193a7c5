// Package cmd holds the rulesync command line.
package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/pkg/engine"
	"github.com/grovetools/rulesync/pkg/models"
)

// NewRootCmd returns the rulesync command tree.
func NewRootCmd() *cobra.Command {
	root := cli.NewStandardCommand(
		"rulesync",
		"Keep a configuration repository of rules, variables and settings in sync",
	)

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewInitCmd())
	root.AddCommand(NewWatchCmd())
	root.AddCommand(NewResourceCmd())
	root.AddCommand(NewEditCmd())
	root.AddCommand(NewGitCmd())
	root.AddCommand(cli.NewVersionCommand("rulesync"))

	return root
}

// Execute runs the command line and reports a failure to stderr.
func Execute() error {
	root := NewRootCmd()
	cmd, err := root.ExecuteC()
	if err != nil {
		verbose, _ := root.PersistentFlags().GetBool("verbose")
		if cmd == nil {
			cmd = root
		}
		cli.NewErrorHandler(verbose, cmd.ErrOrStderr()).Handle(err)
	}
	return err
}

// openEngine loads the configuration and opens an engine on the backend
// it selects.
func openEngine(cmd *cobra.Command, watch bool) (*engine.Engine, error) {
	cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
	if err != nil {
		return nil, err
	}
	return engine.Open(cmd.Context(), cfg, watch)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// drainWindow bounds how long a command waits for the last progress
// events of an operation that already returned.
const drainWindow = 500 * time.Millisecond

// followOperations renders operation progress until the returned func is
// called. The func waits briefly for a terminal event so the final phase
// is printed.
func followOperations(ctx context.Context, e *engine.Engine, r *cli.ProgressRenderer) func() {
	ctx, cancel := context.WithCancel(ctx)
	updates := e.Operations.Subscribe()
	done := make(chan struct{})
	terminal := make(chan struct{}, 1)

	go func() {
		defer close(done)
		var last models.OperationProgressEvent
		for {
			select {
			case <-ctx.Done():
				return
			case <-updates:
				ev, ok := e.Operations.Current()
				if !ok || (ev.OperationID == last.OperationID && ev.Phase == last.Phase && ev.Timestamp.Equal(last.Timestamp)) {
					continue
				}
				last = ev
				r.Operation(ev)
				if ev.Phase.IsTerminal() {
					select {
					case terminal <- struct{}{}:
					default:
					}
				}
			}
		}
	}()

	return func() {
		select {
		case <-terminal:
		case <-time.After(drainWindow):
		}
		cancel()
		<-done
		e.Operations.Unsubscribe(updates)
		r.Done()
	}
}
