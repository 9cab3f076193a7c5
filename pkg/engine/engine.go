// Package engine wires the synchronization components around one backend:
// the resource store and its collections, the mutation dispatcher with its
// failure banner, the initialization reconciler, the operation and job
// trackers, and the selection.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/autosave"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/gitinit"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/mutation"
	"github.com/grovetools/rulesync/pkg/notify"
	"github.com/grovetools/rulesync/pkg/progress"
	"github.com/grovetools/rulesync/pkg/selection"
	"github.com/grovetools/rulesync/pkg/store"
)

// resubscribeDelay is the pause before the config change subscription is
// reopened after the backend dropped it.
const resubscribeDelay = time.Second

// Engine owns one backend and the components built on it.
type Engine struct {
	Backend     backend.Backend
	Store       *store.Store
	Collections *store.Collections
	Mutations   *mutation.Dispatcher
	Banner      *notify.Banner
	Init        *gitinit.Reconciler
	Operations  *progress.OperationTracker
	Jobs        *progress.JobTracker
	Selection   *selection.Selection

	cfg    *config.Config
	clock  clock.Clock
	logger *logrus.Entry

	mu          sync.Mutex
	cancel      context.CancelFunc
	group       *errgroup.Group
	stopDeletes func()
	ownsBackend bool
	closeOnce   sync.Once
	closeErr    error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock for timers and timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithConfig applies the banner and auto-save settings of cfg.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// Open selects a backend for cfg and builds an engine that closes it.
func Open(ctx context.Context, cfg *config.Config, watch bool, opts ...Option) (*Engine, error) {
	b, err := OpenBackend(ctx, cfg, watch)
	if err != nil {
		return nil, err
	}
	e := New(b, append([]Option{WithConfig(cfg)}, opts...)...)
	e.ownsBackend = true
	return e, nil
}

// New builds an engine on b. The caller keeps ownership of b.
func New(b backend.Backend, opts ...Option) *Engine {
	e := &Engine{
		Backend: b,
		cfg:     config.Default(),
		clock:   clock.RealClock{},
		logger:  logging.NewLogger("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.Store = store.New(store.WithClock(e.clock))
	e.Collections = store.NewCollections(e.Store, b)
	e.Banner = notify.NewBanner(e.clock, e.cfg.Banner.Timeout())
	e.Mutations = mutation.New(b, e.Store, mutation.WithReporter(e.Banner))
	e.Init = gitinit.NewReconciler(e.Collections, e.Mutations, e.clock)
	e.Operations = progress.NewOperationTracker(b.SubscribeOperations)
	e.Jobs = progress.NewJobTracker(b.SubscribeJobs)
	e.Selection = selection.New(e.Collections, b)
	e.stopDeletes = e.Mutations.OnDelete(e.Selection.ClearResource)
	return e
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// IsRemote reports whether the engine talks to the daemon.
func (e *Engine) IsRemote() bool {
	return e.Backend.IsRemote()
}

// Start subscribes the trackers and begins invalidating the store on
// config changes. Stream failures do not fail Start: the trackers report
// them through Connected and Err until Reconnect succeeds.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.group, ctx = errgroup.WithContext(ctx)

	if err := e.Operations.Start(ctx); err != nil {
		e.logger.WithError(err).Warn("Operation progress unavailable")
	}
	if err := e.Jobs.Start(ctx); err != nil {
		e.logger.WithError(err).Warn("Job progress unavailable")
	}

	e.group.Go(func() error {
		e.watchConfig(ctx)
		return nil
	})
	return nil
}

// Load fetches the collections the initialization decision reads. Every
// fetch runs; failures are combined.
func (e *Engine) Load(ctx context.Context) error {
	var g errgroup.Group
	var mu sync.Mutex
	var errs error
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = multierr.Append(errs, err)
	}

	g.Go(func() error {
		_, err := e.Collections.FileTree.Get(ctx)
		record(err)
		return nil
	})
	g.Go(func() error {
		_, err := e.Collections.GitStatus.Get(ctx)
		record(err)
		return nil
	})
	g.Go(func() error {
		_, err := e.Collections.Settings.Get(ctx)
		record(err)
		return nil
	})
	_ = g.Wait()
	return errs
}

// watchConfig invalidates the cached collections whenever the backend
// reports a change, resubscribing if the stream drops.
func (e *Engine) watchConfig(ctx context.Context) {
	for {
		changes, err := e.Backend.SubscribeConfigChanges(ctx)
		if err != nil {
			e.logger.WithError(err).Warn("Failed to subscribe to config changes")
		} else {
			for change := range changes {
				e.onConfigChange(change)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-e.clock.After(resubscribeDelay):
			e.logger.Debug("Resubscribing to config changes")
		}
	}
}

func (e *Engine) onConfigChange(change models.ConfigChange) {
	e.logger.WithField("path", change.Path).Debug("Config changed")
	keys := []store.QueryKey{store.KeyFileTree, store.KeyGitStatus, store.KeyResourceList, store.KeySettings}
	for _, key := range e.Store.Keys() {
		if key.IsResource() {
			keys = append(keys, key)
		}
	}
	e.Store.Invalidate(keys...)
}

// NewAutosave builds an auto-save controller using the engine's clock and
// the configured delay and enabled flag.
func NewAutosave[T any](e *Engine, save autosave.SaveFunc[T], opts ...autosave.Option[T]) *autosave.Controller[T] {
	base := []autosave.Option[T]{
		autosave.WithClock[T](e.clock),
		autosave.WithEnabled[T](e.cfg.Autosave.IsEnabled()),
	}
	return autosave.New(save, e.cfg.Autosave.Delay(), append(base, opts...)...)
}

// Close stops the engine's goroutines and, when the engine opened its
// backend, closes it.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		cancel, group := e.cancel, e.group
		e.mu.Unlock()

		e.stopDeletes()
		e.Operations.Stop()
		e.Jobs.Stop()
		if cancel != nil {
			cancel()
			e.closeErr = multierr.Append(e.closeErr, group.Wait())
		}
		e.Banner.Dismiss()
		if e.ownsBackend {
			e.closeErr = multierr.Append(e.closeErr, e.Backend.Close())
		}
	})
	return e.closeErr
}
