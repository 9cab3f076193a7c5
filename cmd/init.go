package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/gitinit"
)

// NewInitCmd returns the init command.
func NewInitCmd() *cobra.Command {
	var resolve bool
	var branch string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Connect the configuration root to its remote repository",
		Long: `Run the first synchronization of the configuration root with the git
repository named in the Settings resource.

Local and remote files are merged. When they conflict the merge is undone
and the conflicting files are listed; rerun with --resolve-branch to save the
local changes on a separate branch.`,
		Example: `# Initialize when settings enable git sync
rulesync init

# Move conflicting local changes to a branch
rulesync init --resolve-branch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.Start(ctx); err != nil {
				return err
			}

			if resolve {
				if err := e.Init.ResolveConflict(ctx, branch); err != nil {
					return err
				}
				if !opts.JSONOutput {
					p.Success("Local changes saved on their own branch")
				}
				return nil
			}

			if err := e.Load(ctx); err != nil {
				return err
			}
			if !e.Init.NeedsInitialization() {
				if opts.JSONOutput {
					return printJSON(cmd, map[string]bool{"needsInitialization": false})
				}
				p.InfoPretty("Nothing to initialize")
				return nil
			}

			var done func()
			if !opts.JSONOutput {
				done = followOperations(ctx, e, cli.NewProgressRenderer(cmd.OutOrStdout()))
			}
			res, err := e.Init.Initialize(ctx)
			if done != nil {
				done()
			}
			if err != nil {
				return err
			}

			if opts.JSONOutput {
				return printJSON(cmd, res)
			}
			switch res.Outcome {
			case gitinit.OutcomeConflict:
				p.WarnPretty(fmt.Sprintf("%d files conflict with the remote", len(res.ConflictingFiles)))
				p.List(res.ConflictingFiles)
				p.InfoPretty(fmt.Sprintf("Run 'rulesync init --resolve-branch --branch %s' to keep them on a branch.", res.RecommendedBranch))
			case gitinit.OutcomeMerged:
				p.Success("Merged local configuration with the remote")
			default:
				msg := res.Message
				if msg == "" {
					msg = "Configuration root initialized"
				}
				p.Success(msg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&resolve, "resolve-branch", false, "Commit local changes and switch them to a new branch")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch name for --resolve-branch (default: local-changes-<date>)")
	return cmd
}
