// Package mutation performs every write against the backend and invalidates
// the cached collections each write can affect.
package mutation

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/command"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/resource"
	"github.com/grovetools/rulesync/pkg/store"
)

// Reporter receives operation failures, typically a notify.Banner.
type Reporter interface {
	Report(operation string, err error)
}

// DeleteListener is called after a resource was deleted.
type DeleteListener func(ref models.Ref)

// Dispatcher is the only writer of backend state.
type Dispatcher struct {
	backend  backend.Mutator
	store    *store.Store
	reporter Reporter
	log      *logrus.Entry

	mu        sync.Mutex
	listeners map[int]DeleteListener
	nextID    int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithReporter reports every failed operation to r.
func WithReporter(r Reporter) Option {
	return func(d *Dispatcher) {
		d.reporter = r
	}
}

// New creates a Dispatcher writing to m and invalidating st.
func New(m backend.Mutator, st *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend:   m,
		store:     st,
		log:       logging.NewLogger("mutation"),
		listeners: make(map[int]DeleteListener),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnDelete registers fn to run after every successful resource deletion. The
// returned func removes the listener.
func (d *Dispatcher) OnDelete(fn DeleteListener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// CreateResource creates a resource from its YAML text. The name is read
// from metadata.name; a document without one fails before reaching the
// backend. An empty path stores the resource at its kind's default location.
func (d *Dispatcher) CreateResource(ctx context.Context, kind models.Kind, yaml, path string) (*models.Resource, error) {
	doc, err := resource.ParseAs(kind, yaml)
	if err != nil {
		return nil, d.fail(OpCreateResource, err)
	}
	if path == "" {
		if err := command.NewSafeBuilder().Validate("resourceName", doc.Name); err != nil {
			return nil, d.fail(OpCreateResource, errors.Wrap(err, errors.ErrCodeInvalidInput, "resource name cannot be used as a file name").
				WithDetail("name", doc.Name))
		}
		path = models.DefaultPath(kind, doc.Name)
	}

	res, err := d.backend.CreateResource(ctx, kind, doc.Name, yaml, path)
	if err != nil {
		return nil, d.fail(OpCreateResource, err)
	}
	ref := doc.Ref()
	d.succeed(OpCreateResource, &ref)
	return res, nil
}

// UpdateResource replaces the body of an existing resource.
func (d *Dispatcher) UpdateResource(ctx context.Context, kind models.Kind, name, yaml string) (*models.Resource, error) {
	if strings.TrimSpace(name) == "" {
		return nil, d.fail(OpUpdateResource, errors.MissingName(string(kind)))
	}
	if _, err := resource.ParseAs(kind, yaml); err != nil {
		return nil, d.fail(OpUpdateResource, err)
	}

	res, err := d.backend.UpdateResource(ctx, kind, name, yaml)
	if err != nil {
		return nil, d.fail(OpUpdateResource, err)
	}
	ref := models.Ref{Kind: kind, Name: name}
	d.succeed(OpUpdateResource, &ref)
	return res, nil
}

// DeleteResource deletes a resource and notifies the delete listeners.
func (d *Dispatcher) DeleteResource(ctx context.Context, kind models.Kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return d.fail(OpDeleteResource, errors.MissingName(string(kind)))
	}
	if err := d.backend.DeleteResource(ctx, kind, name); err != nil {
		return d.fail(OpDeleteResource, err)
	}
	ref := models.Ref{Kind: kind, Name: name}
	d.succeed(OpDeleteResource, &ref)

	d.mu.Lock()
	listeners := make([]DeleteListener, 0, len(d.listeners))
	for _, fn := range d.listeners {
		listeners = append(listeners, fn)
	}
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(ref)
	}
	return nil
}

// Commit commits files, or every change when files is empty.
func (d *Dispatcher) Commit(ctx context.Context, message string, files []string) error {
	if strings.TrimSpace(message) == "" {
		return d.fail(OpCommit, errors.New(errors.ErrCodeInvalidInput, "commit message is required"))
	}
	if err := d.backend.GitCommit(ctx, message, files); err != nil {
		return d.fail(OpCommit, err)
	}
	d.succeed(OpCommit, nil)
	return nil
}

// Pull pulls from the configured remote.
func (d *Dispatcher) Pull(ctx context.Context) error {
	if err := d.backend.GitPull(ctx); err != nil {
		return d.fail(OpPull, err)
	}
	d.succeed(OpPull, nil)
	return nil
}

// Checkout switches to branch.
func (d *Dispatcher) Checkout(ctx context.Context, branch string) error {
	if strings.TrimSpace(branch) == "" {
		return d.fail(OpCheckout, errors.New(errors.ErrCodeInvalidInput, "branch name is required"))
	}
	if err := d.backend.GitCheckout(ctx, branch); err != nil {
		return d.fail(OpCheckout, err)
	}
	d.succeed(OpCheckout, nil)
	return nil
}

// CreateBranch creates a branch, switching to it when switchTo is set.
func (d *Dispatcher) CreateBranch(ctx context.Context, name string, switchTo bool) error {
	if strings.TrimSpace(name) == "" {
		return d.fail(OpCreateBranch, errors.New(errors.ErrCodeInvalidInput, "branch name is required"))
	}
	if err := d.backend.GitCreateBranch(ctx, name, switchTo); err != nil {
		return d.fail(OpCreateBranch, err)
	}
	d.succeed(OpCreateBranch, nil)
	return nil
}

// Initialize performs the first synchronization with the configured remote.
// Conflicts are part of the result, not an error.
func (d *Dispatcher) Initialize(ctx context.Context) (*models.InitializeResult, error) {
	res, err := d.backend.GitInitialize(ctx)
	if err != nil {
		return nil, d.fail(OpInitialize, err)
	}
	d.succeed(OpInitialize, nil)
	return res, nil
}

// MoveFile moves src to dst.
func (d *Dispatcher) MoveFile(ctx context.Context, src, dst string) error {
	res, err := d.backend.MoveFile(ctx, src, dst)
	return d.fileOp(OpMoveFile, res, err)
}

// CreateDirectory creates a directory.
func (d *Dispatcher) CreateDirectory(ctx context.Context, path string) error {
	res, err := d.backend.CreateDirectory(ctx, path)
	return d.fileOp(OpCreateDirectory, res, err)
}

// DeleteFile deletes a file or directory.
func (d *Dispatcher) DeleteFile(ctx context.Context, path string) error {
	res, err := d.backend.DeleteFile(ctx, path)
	return d.fileOp(OpDeleteFile, res, err)
}

func (d *Dispatcher) fileOp(op Op, res models.OperationResult, err error) error {
	if err != nil {
		return d.fail(op, err)
	}
	if !res.Success {
		return d.fail(op, errors.OperationFailed(string(op), res.Error))
	}
	d.succeed(op, nil)
	return nil
}

func (d *Dispatcher) succeed(op Op, ref *models.Ref) {
	keys := KeysFor(op, ref)
	d.log.WithFields(logrus.Fields{"op": op, "keys": keys}).Debug("Operation succeeded")
	d.store.Invalidate(keys...)
}

// fail normalizes err into a SyncError and reports it. A clean tree on
// commit is returned to the caller but not reported.
func (d *Dispatcher) fail(op Op, err error) error {
	if _, ok := errors.As(err); !ok {
		err = errors.BackendFailed(string(op), err)
	}
	if errors.Is(err, errors.ErrCodeNothingToCommit) {
		d.log.WithField("op", op).Debug("Nothing to commit")
		return err
	}
	d.log.WithError(err).WithField("op", op).Warn("Operation failed")
	if d.reporter != nil {
		d.reporter.Report(string(op), err)
	}
	return err
}
