package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

// StatusOutput is the JSON output of `status`.
type StatusOutput struct {
	Root                string            `json:"root"`
	Remote              bool              `json:"remote"`
	Git                 *models.GitStatus `json:"git,omitempty"`
	Settings            *models.Settings  `json:"settings,omitempty"`
	Resources           int               `json:"resources"`
	NeedsInitialization bool              `json:"needsInitialization"`
}

// NewStatusCmd returns the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the repository and sync status of the configuration root",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			e, err := openEngine(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.Load(ctx); err != nil {
				return err
			}

			out := StatusOutput{
				Root:                e.Config().Root,
				Remote:              e.IsRemote(),
				NeedsInitialization: e.Init.NeedsInitialization(),
			}
			out.Git, _ = e.Collections.GitStatus.Peek()
			out.Settings, _ = e.Collections.Settings.Peek()
			resources, err := e.Collections.Resources.Get(ctx)
			if err != nil {
				return err
			}
			out.Resources = len(resources)

			if opts.JSONOutput {
				return printJSON(cmd, out)
			}
			printStatus(cmd, out)
			return nil
		},
	}
}

func printStatus(cmd *cobra.Command, out StatusOutput) {
	p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())

	p.Path("Root", out.Root)
	backend := "local"
	if out.Remote {
		backend = "daemon"
	}
	p.Field("Backend", backend)
	p.Field("Resources", out.Resources)

	if out.Settings != nil && out.Settings.RemoteConfigured() {
		p.Field("Remote", out.Settings.Git.Repository)
	}

	switch {
	case out.Git == nil || !out.Git.IsRepo:
		p.WarnPretty("Not a git repository")
	default:
		branch := out.Git.Branch
		if branch == "" {
			branch = "(detached)"
		}
		if out.Git.Ahead > 0 || out.Git.Behind > 0 {
			branch = fmt.Sprintf("%s (ahead %d, behind %d)", branch, out.Git.Ahead, out.Git.Behind)
		}
		p.Field("Branch", branch)

		if !out.Git.IsDirty() {
			p.Success("Working tree clean")
		} else {
			p.Field("Changes", len(out.Git.Files))
			for _, f := range out.Git.Files {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-10s %s\n", f.Status, f.Path)
			}
		}
	}

	if out.NeedsInitialization {
		p.InfoPretty("Git sync is configured but not initialized. Run 'rulesync init'.")
	}
}
