package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/internal/pidfile"
	"github.com/grovetools/rulesync/internal/server"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend/remote"
	"github.com/grovetools/rulesync/pkg/engine"
	"github.com/grovetools/rulesync/pkg/paths"
	"github.com/grovetools/rulesync/version"
)

// NewServeCmd returns the daemon command with its control subcommands.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configuration root over the daemon socket",
		Long: `Run the rulesync daemon in the foreground.

The daemon owns the configuration root: it watches the files, runs git and
feeds job progress. Other rulesync commands find its socket and use it
instead of opening the root themselves.`,
		RunE: runServe,
	}

	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger("rulesyncd")

	cfg, err := cli.LoadConfig(cli.GetOptions(cmd))
	if err != nil {
		return err
	}
	if err := paths.EnsureDirs(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create state directories")
	}

	pidPath := paths.PidFilePath()
	sockPath := engine.SocketPath(cfg)

	// The daemon is always the local backend
	b, err := engine.OpenLocal(cfg, true)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := pidfile.Acquire(pidPath, pidfile.Record{Root: b.Root(), Socket: sockPath}); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.WithError(err).Error("Failed to release pid file")
		}
	}()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	srv := server.New(b, logger)
	go func() {
		<-ctx.Done()
		logger.Info("Received stop signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithField("pid", os.Getpid()).WithField("root", b.Root()).
		WithField("version", version.GetInfo().Short()).Info("Starting daemon")
	if err := srv.ListenAndServe(sockPath); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackendFailed, "daemon server failed").WithDetail("socket", sockPath)
	}
	return nil
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := pidfile.Running(paths.PidFilePath())
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(rec.PID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to find daemon process").WithDetail("pid", rec.PID)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to stop daemon").WithDetail("pid", rec.PID)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", rec.PID)
			return nil
		},
	}
}

// DaemonStatus is the JSON output of `serve status`.
type DaemonStatus struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Root    string        `json:"root,omitempty"`
	Socket  string        `json:"socket"`
	Started time.Time     `json:"started"`
	Version *version.Info `json:"version,omitempty"`
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.GetOptions(cmd)
			cfg, err := cli.LoadConfig(opts)
			if err != nil {
				return err
			}

			rec, err := pidfile.Running(paths.PidFilePath())
			if err != nil {
				return err
			}
			status := DaemonStatus{Socket: engine.SocketPath(cfg)}
			if rec != nil {
				status.Running = true
				status.PID = rec.PID
				status.Root = rec.Root
				status.Started = rec.Started
				if rec.Socket != "" {
					status.Socket = rec.Socket
				}
				if c, err := remote.Dial(cmd.Context(), status.Socket, remote.DefaultTimeout); err == nil {
					if info, err := c.DaemonVersion(cmd.Context()); err == nil {
						status.Version = &info
					}
					c.Close()
				}
			}

			if opts.JSONOutput {
				return printJSON(cmd, status)
			}
			p := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if !status.Running {
				p.InfoPretty("Stopped")
				return nil
			}
			p.Success(fmt.Sprintf("Running (PID %d)", status.PID))
			p.Path("Root", status.Root)
			p.Path("Socket", status.Socket)
			p.Field("Up since", status.Started.Format(time.DateTime))
			if status.Version != nil {
				p.Field("Version", status.Version.Short())
			}
			return nil
		},
	}
}
