// Package local implements backend.Backend directly on the filesystem and the
// git CLI. It is what `rulesync serve` exposes and what clients fall back to
// when no daemon is running.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/git"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/jobsource"
	"github.com/grovetools/rulesync/pkg/models"
)

// IgnoreFileName is the per-root ignore file, using .dockerignore syntax.
const IgnoreFileName = ".rulesyncignore"

// DefaultBranch is used when the Settings resource names no branch.
const DefaultBranch = "main"

// DefaultDebounce is the quiet period before a burst of file system events
// is reported as one config change.
const DefaultDebounce = 200 * time.Millisecond

// Options configures a local Backend.
type Options struct {
	// Root is the configuration root directory.
	Root string
	// Ignore holds extra patterns hidden from the file tree.
	Ignore []string
	// Debounce for the config change watcher; zero means DefaultDebounce.
	Debounce time.Duration
	// Watch enables the fsnotify config change watcher.
	Watch bool
	// Jobs feeds the job stream. Nil leaves the stream silent.
	Jobs jobsource.Source
	// Git overrides the git client; nil uses the git CLI in Root.
	Git   git.Client
	Clock clock.Clock
}

// Backend serves one configuration root.
type Backend struct {
	root     string
	ignore   []string
	git      git.Client
	jobsrc   jobsource.Source
	clock    clock.Clock
	logger   *logrus.Entry
	debounce time.Duration

	// mu serializes mutations; git cannot run two commands on one work tree.
	mu sync.Mutex

	configEvents    *backend.Broker[models.ConfigChange]
	operationEvents *backend.Broker[models.OperationProgressEvent]
	jobEvents       *backend.Broker[models.JobEvent]

	cancel context.CancelFunc
	group  *errgroup.Group
	closer sync.Once
}

var _ backend.Backend = (*Backend)(nil)

// New opens the configuration root and starts the watcher and job feed.
func New(opts Options) (*Backend, error) {
	if opts.Root == "" {
		return nil, errors.ConfigInvalid("root directory is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid root directory")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.ConfigNotFound(root)
	}
	if !info.IsDir() {
		return nil, errors.ConfigInvalid(root + " is not a directory")
	}

	b := &Backend{
		root:            root,
		ignore:          opts.Ignore,
		git:             opts.Git,
		jobsrc:          opts.Jobs,
		clock:           opts.Clock,
		logger:          logging.NewLogger("backend.local"),
		debounce:        opts.Debounce,
		configEvents:    backend.NewBroker[models.ConfigChange](16),
		operationEvents: backend.NewBroker[models.OperationProgressEvent](64),
		jobEvents:       backend.NewBroker[models.JobEvent](64),
	}
	if b.git == nil {
		b.git = git.NewRepository(root)
	}
	if b.clock == nil {
		b.clock = clock.RealClock{}
	}
	if b.debounce <= 0 {
		b.debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.group = &errgroup.Group{}

	if opts.Watch {
		w, err := newWatcher(b)
		if err != nil {
			cancel()
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to start config watcher")
		}
		b.group.Go(func() error {
			w.run(ctx)
			return nil
		})
	}

	if b.jobsrc != nil {
		b.group.Go(func() error {
			err := b.jobsrc.Run(ctx, b.jobEvents.Publish)
			if err != nil && ctx.Err() == nil {
				b.logger.WithError(err).Error("Job source stopped")
				return err
			}
			return nil
		})
	}

	b.logger.WithField("root", root).Debug("Local backend opened")
	return b, nil
}

// Root returns the absolute configuration root.
func (b *Backend) Root() string {
	return b.root
}

// IsRemote implements backend.Backend.
func (b *Backend) IsRemote() bool {
	return false
}

// SubscribeConfigChanges implements backend.Subscriber.
func (b *Backend) SubscribeConfigChanges(ctx context.Context) (<-chan models.ConfigChange, error) {
	return b.configEvents.Subscribe(ctx), nil
}

// SubscribeOperations implements backend.Subscriber.
func (b *Backend) SubscribeOperations(ctx context.Context) (<-chan models.OperationProgressEvent, error) {
	return b.operationEvents.Subscribe(ctx), nil
}

// SubscribeJobs implements backend.Subscriber.
func (b *Backend) SubscribeJobs(ctx context.Context) (<-chan models.JobEvent, error) {
	return b.jobEvents.Subscribe(ctx), nil
}

// Close stops background work and closes every subscription.
func (b *Backend) Close() error {
	var err error
	b.closer.Do(func() {
		b.cancel()
		err = b.group.Wait()
		if b.jobsrc != nil {
			err = multierr.Append(err, b.jobsrc.Close())
		}
		b.configEvents.Close()
		b.operationEvents.Close()
		b.jobEvents.Close()
	})
	return err
}
