// Package jobsource feeds document-processing job events into the backend's
// job stream. Jobs are produced by an external processor that either writes
// them to a SQLite table or appends them to an NDJSON log.
package jobsource

import (
	"context"
	"fmt"
	"time"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
)

// Kind selects a job source implementation.
type Kind string

const (
	KindNone   Kind = "none"
	KindSQLite Kind = "sqlite"
	KindLog    Kind = "log"
)

// DefaultPollInterval is how often the SQLite source looks for changes.
const DefaultPollInterval = 2 * time.Second

// Source produces job events until ctx ends.
type Source interface {
	Run(ctx context.Context, publish func(models.JobEvent)) error
	Close() error
}

// Options configures Open.
type Options struct {
	Kind         Kind
	Path         string
	PollInterval time.Duration
}

// Open creates the source selected by opts. KindNone yields a nil Source.
func Open(opts Options) (Source, error) {
	switch opts.Kind {
	case "", KindNone:
		return nil, nil
	case KindSQLite:
		src, err := OpenSQLite(opts.Path, opts.PollInterval)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindLog:
		return NewLog(opts.Path), nil
	}
	return nil, errors.ConfigInvalid(fmt.Sprintf("unknown job source %q", opts.Kind))
}
