package engine

import (
	"context"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/backend/local"
	"github.com/grovetools/rulesync/pkg/backend/remote"
	"github.com/grovetools/rulesync/pkg/jobsource"
	"github.com/grovetools/rulesync/pkg/paths"
)

// SocketPath returns the daemon socket cfg points at.
func SocketPath(cfg *config.Config) string {
	if cfg.Backend.Socket != "" {
		return cfg.Backend.Socket
	}
	return paths.SocketPath()
}

// OpenBackend returns the backend selected by cfg.Backend.Mode.
//
// In auto mode the daemon is used when its socket answers, otherwise the
// configuration root is served in-process. Callers do not need to know
// which one they got. watch enables the file watcher of a local backend.
func OpenBackend(ctx context.Context, cfg *config.Config, watch bool) (backend.Backend, error) {
	logger := logging.NewLogger("engine")
	socketPath := SocketPath(cfg)

	switch cfg.Backend.Mode {
	case config.ModeRemote:
		return remote.Dial(ctx, socketPath, remote.DefaultTimeout)
	case config.ModeLocal:
		return OpenLocal(cfg, watch)
	}

	client, err := remote.Dial(ctx, socketPath, remote.DefaultTimeout)
	if err == nil {
		logger.WithField("socket", socketPath).Debug("Using daemon backend")
		return client, nil
	}
	logger.WithError(err).Debug("Daemon not available, using local backend")
	return OpenLocal(cfg, watch)
}

// OpenLocal serves cfg.Root in-process, with the job source cfg selects.
func OpenLocal(cfg *config.Config, watch bool) (*local.Backend, error) {
	if cfg.Root == "" {
		return nil, errors.ConfigInvalid("root is not set")
	}

	jobsPath := cfg.Jobs.Path
	if cfg.Jobs.Source == config.JobsSQLite && jobsPath == "" {
		if err := paths.EnsureDirs(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create state directory")
		}
		jobsPath = paths.JobsDBPath()
	}
	jobs, err := jobsource.Open(jobsource.Options{
		Kind:         jobsource.Kind(cfg.Jobs.Source),
		Path:         jobsPath,
		PollInterval: cfg.Jobs.PollInterval(),
	})
	if err != nil {
		return nil, err
	}

	b, err := local.New(local.Options{
		Root:     cfg.Root,
		Ignore:   cfg.Watch.Ignore,
		Debounce: cfg.Watch.Debounce(),
		Watch:    watch,
		Jobs:     jobs,
	})
	if err != nil {
		if jobs != nil {
			_ = jobs.Close()
		}
		return nil, err
	}
	return b, nil
}
