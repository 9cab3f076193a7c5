package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/logging"
)

// BackendFlag is the --backend flag: auto, local or remote.
type BackendFlag string

func (b *BackendFlag) String() string { return string(*b) }

// Set validates and stores the flag value.
func (b *BackendFlag) Set(v string) error {
	switch v {
	case config.ModeAuto, config.ModeLocal, config.ModeRemote:
		*b = BackendFlag(v)
		return nil
	}
	return fmt.Errorf("must be one of %s", strings.Join([]string{config.ModeAuto, config.ModeLocal, config.ModeRemote}, ", "))
}

// Type names the flag value in help output.
func (b *BackendFlag) Type() string { return "mode" }

// CommandOptions holds the persistent options of every rulesync command.
type CommandOptions struct {
	ConfigFile string
	Verbose    bool
	JSONOutput bool
	Backend    string
	Root       string
}

// NewStandardCommand creates a new command with the standard rulesync flags.
func NewStandardCommand(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Loggers read the level when first created
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				os.Setenv(logging.EnvLogLevel, "debug")
			}
		},
	}

	var backend BackendFlag
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to rulesync.yml config file")
	cmd.PersistentFlags().String("root", "", "Configuration root directory (overrides the config file)")
	cmd.PersistentFlags().Var(&backend, "backend", "Backend to use: auto, local, remote")

	SetStyledHelp(cmd)
	return cmd
}

// GetOptions extracts common options from a command
func GetOptions(cmd *cobra.Command) CommandOptions {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	root, _ := cmd.Flags().GetString("root")

	var backend string
	if f := cmd.Flags().Lookup("backend"); f != nil {
		backend = f.Value.String()
	}

	return CommandOptions{
		ConfigFile: configFile,
		Verbose:    verbose,
		JSONOutput: jsonOutput,
		Backend:    backend,
		Root:       root,
	}
}

// LoadConfig loads the configuration named by --config, or the nearest
// rulesync.yml, and applies the flag overrides.
func LoadConfig(opts CommandOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.Load(opts.ConfigFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	if opts.Backend != "" {
		cfg.Backend.Mode = opts.Backend
	}
	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	return cfg, nil
}
