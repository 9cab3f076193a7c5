package progress

import (
	"context"
	"sort"
	"sync"

	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

// JobTracker folds partial job updates into the latest state of each job.
type JobTracker struct {
	*stream[models.JobEvent]

	mu   sync.RWMutex
	jobs map[string]models.StoredJob
}

// NewJobTracker creates a tracker reading from source.
func NewJobTracker(source Source[models.JobEvent]) *JobTracker {
	t := &JobTracker{jobs: make(map[string]models.StoredJob)}
	t.stream = newStream("jobs", source, t.fold, logging.NewLogger("progress.jobs"))
	return t
}

// Start subscribes to the stream. It is a no-op while already subscribed.
func (t *JobTracker) Start(ctx context.Context) error { return t.start(ctx) }

// Stop tears the subscription down.
func (t *JobTracker) Stop() { t.stop() }

// Reconnect tears down and re-subscribes. Known jobs are kept.
func (t *JobTracker) Reconnect(ctx context.Context) error { return t.reconnect(ctx) }

// Connected reports whether the subscription is live.
func (t *JobTracker) Connected() bool {
	ok, _ := t.status()
	return ok
}

// Err returns the last subscription failure.
func (t *JobTracker) Err() error {
	_, err := t.status()
	return err
}

// Subscribe returns a channel signalled after every change.
func (t *JobTracker) Subscribe() chan struct{} { return t.subscribe() }

// Unsubscribe removes a subscription.
func (t *JobTracker) Unsubscribe(ch chan struct{}) { t.unsubscribe(ch) }

func (t *JobTracker) fold(ev models.JobEvent) {
	if ev.JobID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[ev.JobID] = t.jobs[ev.JobID].Fold(ev)
}

// Apply feeds an event directly, bypassing the subscription.
func (t *JobTracker) Apply(ev models.JobEvent) {
	t.fold(ev)
	t.changed()
}

// Jobs returns a copy of the folded job map.
func (t *JobTracker) Jobs() map[string]models.StoredJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.StoredJob, len(t.jobs))
	for id, j := range t.jobs {
		out[id] = j
	}
	return out
}

// Partitions derives the status partitions of the current jobs.
func (t *JobTracker) Partitions() Partitions {
	return Partition(t.Jobs())
}

// Partitions groups jobs by status.
type Partitions struct {
	Processing []models.StoredJob
	Completed  []models.StoredJob
	Failed     []models.StoredJob
}

// Partition splits jobs by status. Completed jobs are newest first with
// untimestamped jobs last; the other groups are ordered by job id.
// Superseded jobs belong to no partition.
func Partition(jobs map[string]models.StoredJob) Partitions {
	var p Partitions
	for _, j := range jobs {
		switch j.Status {
		case models.JobProcessing:
			p.Processing = append(p.Processing, j)
		case models.JobCompleted:
			p.Completed = append(p.Completed, j)
		case models.JobFailed:
			p.Failed = append(p.Failed, j)
		}
	}

	byID := func(s []models.StoredJob) func(i, j int) bool {
		return func(i, j int) bool { return s[i].JobID < s[j].JobID }
	}
	sort.Slice(p.Processing, byID(p.Processing))
	sort.Slice(p.Failed, byID(p.Failed))
	sort.SliceStable(p.Completed, func(i, j int) bool {
		a, b := p.Completed[i], p.Completed[j]
		switch {
		case a.Timestamp == nil && b.Timestamp == nil:
			return a.JobID < b.JobID
		case a.Timestamp == nil:
			return false
		case b.Timestamp == nil:
			return true
		case a.Timestamp.Equal(*b.Timestamp):
			return a.JobID < b.JobID
		}
		return a.Timestamp.After(*b.Timestamp)
	})
	return p
}
