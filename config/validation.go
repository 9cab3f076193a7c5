package config

import (
	"fmt"

	"github.com/moby/patternmatcher"

	"github.com/grovetools/rulesync/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case ModeAuto, ModeLocal, ModeRemote:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("backend.mode must be auto, local or remote, got %q", c.Backend.Mode)).
			WithDetail("mode", c.Backend.Mode)
	}

	if c.Autosave.DelayMs < 0 {
		return errors.ConfigInvalid("autosave.delay_ms cannot be negative")
	}
	if c.Banner.TimeoutMs < 0 {
		return errors.ConfigInvalid("banner.timeout_ms cannot be negative")
	}
	if c.Watch.DebounceMs < 0 {
		return errors.ConfigInvalid("watch.debounce_ms cannot be negative")
	}

	switch c.Jobs.Source {
	case JobsNone:
	case JobsLog:
		if c.Jobs.Path == "" {
			return errors.ConfigInvalid("jobs.path is required for the log job source")
		}
	case JobsSQLite:
		if c.Jobs.PollIntervalMs < 0 {
			return errors.ConfigInvalid("jobs.poll_interval_ms cannot be negative")
		}
	default:
		return errors.ConfigInvalid(fmt.Sprintf("jobs.source must be none, sqlite or log, got %q", c.Jobs.Source)).
			WithDetail("source", c.Jobs.Source)
	}

	if _, err := patternmatcher.New(c.Watch.Ignore); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid watch.ignore pattern")
	}

	return nil
}
