package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/grovetools/rulesync/cli"
	"github.com/grovetools/rulesync/pkg/engine"
	"github.com/grovetools/rulesync/pkg/models"
	"github.com/grovetools/rulesync/pkg/store"
)

const reconnectInterval = 2 * time.Second

// NewWatchCmd returns the watch command.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow git operations, processing jobs and config changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := e.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", e.Config().Root)

			w := &watcher{
				engine:   e,
				renderer: cli.NewProgressRenderer(cmd.OutOrStdout()),
				cmd:      cmd,
				ops:      make(map[string]models.OperationProgressEvent),
				jobs:     make(map[string]models.StoredJob),
			}
			w.run(ctx)
			return nil
		},
	}
}

// watcher prints what changed since the previous snapshot.
type watcher struct {
	engine   *engine.Engine
	renderer *cli.ProgressRenderer
	cmd      *cobra.Command
	ops      map[string]models.OperationProgressEvent
	jobs     map[string]models.StoredJob
}

func (w *watcher) run(ctx context.Context) {
	opUpdates := w.engine.Operations.Subscribe()
	defer w.engine.Operations.Unsubscribe(opUpdates)
	jobUpdates := w.engine.Jobs.Subscribe()
	defer w.engine.Jobs.Unsubscribe(jobUpdates)
	invalidations := w.engine.Store.Subscribe()
	defer w.engine.Store.Unsubscribe(invalidations)

	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()

	// The initial job snapshot
	w.printJobs()

	for {
		select {
		case <-ctx.Done():
			w.renderer.Done()
			return
		case <-opUpdates:
			w.printOperations()
		case <-jobUpdates:
			w.printJobs()
		case inv := <-invalidations:
			if inv.Key == store.KeyFileTree {
				w.renderer.Done()
				fmt.Fprintf(w.cmd.OutOrStdout(), "%s config changed\n", inv.Timestamp.Format("15:04:05"))
			}
		case <-ticker.C:
			w.reconnect(ctx)
		}
	}
}

func (w *watcher) printOperations() {
	for _, ev := range w.engine.Operations.All() {
		if prev, ok := w.ops[ev.OperationID]; ok && cmp.Equal(prev, ev) {
			continue
		}
		w.ops[ev.OperationID] = ev
		w.renderer.Operation(ev)
	}
}

func (w *watcher) printJobs() {
	jobs := w.engine.Jobs.Jobs()
	ids := make([]string, 0, len(jobs))
	for id := range jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		job := jobs[id]
		if prev, ok := w.jobs[id]; ok && cmp.Equal(prev, job) {
			continue
		}
		w.jobs[id] = job
		w.renderer.Job(job)
	}
}

// reconnect reopens streams the backend dropped.
func (w *watcher) reconnect(ctx context.Context) {
	if !w.engine.Operations.Connected() {
		if err := w.engine.Operations.Reconnect(ctx); err == nil {
			fmt.Fprintln(w.cmd.OutOrStdout(), "operation stream reconnected")
		}
	}
	if !w.engine.Jobs.Connected() {
		if err := w.engine.Jobs.Reconnect(ctx); err == nil {
			fmt.Fprintln(w.cmd.OutOrStdout(), "job stream reconnected")
		}
	}
}
