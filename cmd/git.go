package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
)

// NewGitCmd returns the git command group. Each subcommand goes through the
// backend so the change is reflected by every connected client.
func NewGitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "git",
		Short: "Commit, pull and switch branches in the configuration root",
	}

	cmd.AddCommand(newGitCommitCmd())
	cmd.AddCommand(newGitPullCmd())
	cmd.AddCommand(newGitCheckoutCmd())
	cmd.AddCommand(newGitBranchCmd())
	return cmd
}

func newGitCommitCmd() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "commit -m MESSAGE [FILE...]",
		Short: "Commit changes, all of them when no files are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return errors.New(errors.ErrCodeInvalidInput, "commit message is required")
			}
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Mutations.Commit(cmd.Context(), message, args); err != nil {
				return err
			}
			if !cli.GetOptions(cmd).JSONOutput {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Changes committed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	return cmd
}

func newGitPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Pull the current branch from the remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.Start(ctx); err != nil {
				return err
			}

			var done func()
			if !opts.JSONOutput {
				done = followOperations(ctx, e, cli.NewProgressRenderer(cmd.OutOrStdout()))
			}
			err = e.Mutations.Pull(ctx)
			if done != nil {
				done()
			}
			if err != nil {
				return err
			}
			if !opts.JSONOutput {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success("Pulled from remote")
			}
			return nil
		},
	}
}

func newGitCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout BRANCH",
		Short: "Switch to an existing branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Mutations.Checkout(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !cli.GetOptions(cmd).JSONOutput {
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).
					Success(fmt.Sprintf("Switched to %s", args[0]))
			}
			return nil
		},
	}
}

func newGitBranchCmd() *cobra.Command {
	var switchTo bool
	cmd := &cobra.Command{
		Use:   "branch NAME",
		Short: "Create a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Mutations.CreateBranch(cmd.Context(), args[0], switchTo); err != nil {
				return err
			}
			if !cli.GetOptions(cmd).JSONOutput {
				msg := fmt.Sprintf("Created branch %s", args[0])
				if switchTo {
					msg += " and switched to it"
				}
				logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()).Success(msg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&switchTo, "switch", "s", false, "Switch to the new branch")
	return cmd
}
