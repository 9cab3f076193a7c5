package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/autosave"
	"github.com/grovetools/rulesync/pkg/backend/local"
	"github.com/grovetools/rulesync/pkg/backend/mocks"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/store"
)

func tree() *models.FileTreeNode {
	return &models.FileTreeNode{
		Name: "root", Path: "/cfg", IsDirectory: true,
		Children: []*models.FileTreeNode{
			{Name: "invoices.yaml", Path: "/cfg/rules/invoices.yaml", Resource: &models.Ref{Kind: models.KindRule, Name: "invoices"}},
		},
	}
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *mocks.MockBackend) {
	t.Helper()
	mb := mocks.NewMockBackend()
	mb.GetFileTreeFunc = func(ctx context.Context) (*models.FileTreeNode, error) {
		return tree(), nil
	}
	e := New(mb, opts...)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e, mb
}

func TestStartFeedsTrackers(t *testing.T) {
	e, mb := newEngine(t)
	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Operations.Connected())
	assert.True(t, e.Jobs.Connected())

	mb.OperationEvents.Publish(models.OperationProgressEvent{
		OperationID:   "op-1",
		OperationType: models.OpPull,
		Phase:         models.PhaseReceiving,
	})
	mb.JobEvents.Publish(models.JobEvent{JobID: "job-1", Status: models.Ptr(models.JobProcessing)})

	require.Eventually(t, func() bool {
		_, ok := e.Operations.Get("op-1")
		return ok
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := e.Jobs.Jobs()["job-1"]
		return ok
	}, time.Second, time.Millisecond)
}

func TestStartSurvivesStreamFailure(t *testing.T) {
	mb := mocks.NewMockBackend()
	mb.SubscribeJobsFunc = func(ctx context.Context) (<-chan models.JobEvent, error) {
		return nil, errors.New(errors.ErrCodeBackendFailed, "no jobs")
	}
	e := New(mb)
	defer e.Close()

	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Operations.Connected())
	assert.False(t, e.Jobs.Connected())
	assert.True(t, errors.Is(e.Jobs.Err(), errors.ErrCodeStreamDisconnected))
}

func TestConfigChangeInvalidatesCollections(t *testing.T) {
	e, mb := newEngine(t)
	ctx := context.Background()

	_, err := e.Collections.FileTree.Get(ctx)
	require.NoError(t, err)
	_, err = e.Collections.Resource(models.Ref{Kind: models.KindRule, Name: "invoices"}).Get(ctx)
	require.NoError(t, err)
	_, err = e.Collections.Branches.Get(ctx)
	require.NoError(t, err)

	invalidations := e.Store.Subscribe()
	defer e.Store.Unsubscribe(invalidations)

	require.NoError(t, e.Start(ctx))
	require.Eventually(t, func() bool { return mb.ConfigEvents.Len() == 1 }, time.Second, time.Millisecond)

	mb.ConfigEvents.Publish(models.ConfigChange{Path: "/cfg/rules/invoices.yaml"})

	got := map[store.QueryKey]bool{}
	require.Eventually(t, func() bool {
		for {
			select {
			case inv := <-invalidations:
				got[inv.Key] = true
			default:
				return got[store.KeyFileTree] && got[store.KeyGitStatus] &&
					got[store.ResourceKey(models.KindRule, "invoices")]
			}
		}
	}, time.Second, time.Millisecond)
	assert.False(t, got[store.KeyBranches])

	_, err = e.Collections.FileTree.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mb.CallCount("GetFileTree"))
}

func TestDeleteClearsSelection(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Selection.Select(ctx, "/cfg/rules/invoices.yaml"))
	require.NotNil(t, e.Selection.State().Resource)

	require.NoError(t, e.Mutations.DeleteResource(ctx, models.KindRule, "invoices"))
	assert.Nil(t, e.Selection.State().Resource)
}

func TestMutationFailureShowsBanner(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	cfg := config.Default()
	cfg.Banner.TimeoutMs = 1000
	e, mb := newEngine(t, WithClock(fc), WithConfig(cfg))

	mb.GitPullFunc = func(ctx context.Context) error {
		return errors.OperationFailed("pull", "remote rejected")
	}
	require.Error(t, e.Mutations.Pull(context.Background()))

	msg := e.Banner.Current()
	require.NotNil(t, msg)
	assert.Equal(t, errors.ErrCodeOperationFailed, msg.Code)

	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(time.Second)
	require.Eventually(t, func() bool { return e.Banner.Current() == nil }, time.Second, time.Millisecond)
}

func TestNewAutosaveUsesConfig(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	cfg := config.Default()
	cfg.Autosave.DelayMs = 300
	e, _ := newEngine(t, WithClock(fc), WithConfig(cfg))

	var mu sync.Mutex
	var saved []string
	ctrl := NewAutosave(e, func(ctx context.Context, v string) error {
		mu.Lock()
		defer mu.Unlock()
		saved = append(saved, v)
		return nil
	})
	defer ctrl.Close()

	ctrl.Update("draft", true)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(300 * time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(saved) == 1
	}, time.Second, time.Millisecond)
}

func TestNewAutosaveDisabled(t *testing.T) {
	disabled := false
	cfg := config.Default()
	cfg.Autosave.Enabled = &disabled
	e, _ := newEngine(t, WithConfig(cfg))

	ctrl := NewAutosave(e, func(ctx context.Context, v string) error { return nil })
	defer ctrl.Close()

	ctrl.Update("draft", true)
	assert.Equal(t, autosave.StatusIdle, ctrl.State().Status)
}

func TestOpenBackend(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "rule.yaml"), []byte("kind: Rule\nmetadata:\n  name: r\n"), 0644))
	socket := filepath.Join(t.TempDir(), "missing.sock")

	cfg := config.Default()
	cfg.Root = root
	cfg.Backend.Socket = socket

	t.Run("auto falls back to local", func(t *testing.T) {
		b, err := OpenBackend(context.Background(), cfg, false)
		require.NoError(t, err)
		defer b.Close()
		assert.False(t, b.IsRemote())
		assert.IsType(t, &local.Backend{}, b)
	})

	t.Run("remote requires daemon", func(t *testing.T) {
		remoteCfg := *cfg
		remoteCfg.Backend.Mode = config.ModeRemote
		_, err := OpenBackend(context.Background(), &remoteCfg, false)
		assert.True(t, errors.Is(err, errors.ErrCodeBackendFailed))
	})

	t.Run("local without root", func(t *testing.T) {
		localCfg := *cfg
		localCfg.Backend.Mode = config.ModeLocal
		localCfg.Root = ""
		_, err := OpenBackend(context.Background(), &localCfg, false)
		assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))
	})
}

func TestOpenClosesBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Mode = config.ModeLocal
	cfg.Root = t.TempDir()

	e, err := Open(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Same(t, cfg, e.Config())
	require.NoError(t, e.Start(context.Background()))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.False(t, e.Operations.Connected())
}

func TestLoadPrimesInitializationFacts(t *testing.T) {
	e, mb := newEngine(t)
	mb.GetGitStatusFunc = func(ctx context.Context) (*models.GitStatus, error) {
		return &models.GitStatus{IsRepo: false}, nil
	}
	assert.False(t, e.Init.Facts().InitialLoadComplete())

	require.NoError(t, e.Load(context.Background()))
	facts := e.Init.Facts()
	assert.True(t, facts.InitialLoadComplete())
	assert.True(t, facts.SettingsOK)
}

func TestLoadCombinesFailures(t *testing.T) {
	e, mb := newEngine(t)
	mb.GetFileTreeFunc = func(ctx context.Context) (*models.FileTreeNode, error) {
		return nil, errors.New(errors.ErrCodeBackendFailed, "tree")
	}
	mb.GetGitStatusFunc = func(ctx context.Context) (*models.GitStatus, error) {
		return nil, errors.New(errors.ErrCodeBackendFailed, "status")
	}

	err := e.Load(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}
