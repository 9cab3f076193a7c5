// Package gitinit decides when a configuration root needs its first
// synchronization with the configured remote repository, runs it, and
// escalates conflicts to the caller.
package gitinit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/store"
)

// Facts are the independently loaded inputs of the initialization decision.
type Facts struct {
	Settings     *models.Settings
	SettingsOK   bool
	Status       *models.GitStatus
	StatusLoaded bool
	TreeLoaded   bool
}

// InitialLoadComplete reports whether both the tree and the status loaded.
func (f Facts) InitialLoadComplete() bool {
	return f.TreeLoaded && f.StatusLoaded
}

// NeedsInitialization reports whether git sync is enabled with a repository
// configured while the root is not yet a repository. It is false until the
// initial load completes so a half-loaded view never triggers initialization.
func NeedsInitialization(f Facts) bool {
	if !f.InitialLoadComplete() || !f.SettingsOK {
		return false
	}
	if !f.Settings.RemoteConfigured() {
		return false
	}
	return f.Status != nil && !f.Status.IsRepo
}

// Outcome classifies the result of Initialize.
type Outcome string

const (
	OutcomeInitialized Outcome = "initialized"
	OutcomeMerged      Outcome = "merged"
	OutcomeConflict    Outcome = "conflict"
)

// Result is what Initialize reports to the caller.
type Result struct {
	Outcome           Outcome
	ConflictingFiles  []string
	RecommendedBranch string
	Message           string
}

// Dispatcher is the subset of the mutation dispatcher the reconciler drives.
type Dispatcher interface {
	Initialize(ctx context.Context) (*models.InitializeResult, error)
	Commit(ctx context.Context, message string, files []string) error
	CreateBranch(ctx context.Context, name string, switchTo bool) error
}

// Reconciler gates and runs the one-shot initialization.
type Reconciler struct {
	collections *store.Collections
	dispatcher  Dispatcher
	clock       clock.PassiveClock
	group       singleflight.Group
	log         *logrus.Entry
}

// NewReconciler creates a Reconciler reading facts from c.
func NewReconciler(c *store.Collections, d Dispatcher, clk clock.PassiveClock) *Reconciler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Reconciler{
		collections: c,
		dispatcher:  d,
		clock:       clk,
		log:         logging.NewLogger("gitinit"),
	}
}

// Facts reads the current facts from the cache without fetching.
func (r *Reconciler) Facts() Facts {
	settings, settingsOK := r.collections.Settings.Peek()
	status, statusOK := r.collections.GitStatus.Peek()
	return Facts{
		Settings:     settings,
		SettingsOK:   settingsOK,
		Status:       status,
		StatusLoaded: statusOK,
		TreeLoaded:   r.collections.FileTree.State().Loaded,
	}
}

// NeedsInitialization evaluates the decision on the cached facts.
func (r *Reconciler) NeedsInitialization() bool {
	return NeedsInitialization(r.Facts())
}

// Initialize runs the first synchronization. Concurrent calls share one
// backend call. After the call the facts are re-read from the backend, so a
// repeated call on an initialized root is a no-op for the decision.
func (r *Reconciler) Initialize(ctx context.Context) (*Result, error) {
	v, err, shared := r.group.Do("initialize", func() (interface{}, error) {
		return r.initialize(ctx)
	})
	if shared {
		r.log.Debug("Joined in-flight initialization")
	}
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	return &res, nil
}

func (r *Reconciler) initialize(ctx context.Context) (*Result, error) {
	r.log.Info("Initializing configuration repository")
	res, err := r.dispatcher.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &models.InitializeResult{}
	}

	if res.HasConflicts() {
		branch := RecommendedBranchName(r.clock)
		r.log.WithFields(logrus.Fields{
			"files":  len(res.ConflictingFiles),
			"branch": branch,
		}).Warn("Initialization produced conflicts")
		return &Result{
			Outcome:           OutcomeConflict,
			ConflictingFiles:  append([]string(nil), res.ConflictingFiles...),
			RecommendedBranch: branch,
			Message:           res.Message,
		}, nil
	}

	out := &Result{Outcome: OutcomeInitialized, Message: res.Message}
	if res.Merged {
		out.Outcome = OutcomeMerged
	}
	return out, nil
}

// ResolveConflict saves local changes and moves them onto branch so the
// remote can be synced. A clean tree is not an error.
func (r *Reconciler) ResolveConflict(ctx context.Context, branch string) error {
	if branch == "" {
		branch = RecommendedBranchName(r.clock)
	}
	msg := CommitMessage(branch)
	if err := r.dispatcher.Commit(ctx, msg, nil); err != nil && !errors.Is(err, errors.ErrCodeNothingToCommit) {
		return err
	}
	return r.dispatcher.CreateBranch(ctx, branch, true)
}

// RecommendedBranchName returns the branch suggested for local changes that
// conflict with the remote.
func RecommendedBranchName(clk clock.PassiveClock) string {
	return "local-changes-" + clk.Now().UTC().Format("20060102")
}

// CommitMessage is the message used to save local changes before branching.
func CommitMessage(branch string) string {
	return fmt.Sprintf("Save local changes before syncing (branch %s)", branch)
}
