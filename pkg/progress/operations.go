package progress

import (
	"context"
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/grovetools/rulesync/logging"
	"github.com/grovetools/rulesync/pkg/models"
)

type trackedOp struct {
	event models.OperationProgressEvent
	seq   uint64
}

// OperationTracker keeps the latest snapshot of every git operation seen on
// the stream, in arrival order.
type OperationTracker struct {
	*stream[models.OperationProgressEvent]

	mu  sync.RWMutex
	ops *orderedmap.OrderedMap[string, trackedOp]
	seq uint64
}

// NewOperationTracker creates a tracker reading from source.
func NewOperationTracker(source Source[models.OperationProgressEvent]) *OperationTracker {
	t := &OperationTracker{
		ops: orderedmap.NewOrderedMap[string, trackedOp](),
	}
	t.stream = newStream("operations", source, t.upsert, logging.NewLogger("progress.operations"))
	return t
}

// Start subscribes to the stream. It is a no-op while already subscribed.
func (t *OperationTracker) Start(ctx context.Context) error { return t.start(ctx) }

// Stop tears the subscription down. Events still in flight are dropped.
func (t *OperationTracker) Stop() { t.stop() }

// Reconnect tears down and re-subscribes. Known operations are kept.
func (t *OperationTracker) Reconnect(ctx context.Context) error { return t.reconnect(ctx) }

// Connected reports whether the subscription is live.
func (t *OperationTracker) Connected() bool {
	ok, _ := t.status()
	return ok
}

// Err returns the last subscription failure.
func (t *OperationTracker) Err() error {
	_, err := t.status()
	return err
}

// Subscribe returns a channel signalled after every change.
func (t *OperationTracker) Subscribe() chan struct{} { return t.subscribe() }

// Unsubscribe removes a subscription.
func (t *OperationTracker) Unsubscribe(ch chan struct{}) { t.unsubscribe(ch) }

// upsert replaces the snapshot of ev's operation. The operation keeps its
// original position.
func (t *OperationTracker) upsert(ev models.OperationProgressEvent) {
	if ev.OperationID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.ops.Set(ev.OperationID, trackedOp{event: ev, seq: t.seq})
}

// Apply feeds an event directly, bypassing the subscription.
func (t *OperationTracker) Apply(ev models.OperationProgressEvent) {
	t.upsert(ev)
	t.changed()
}

// Current returns the most relevant operation: the first still running one
// in arrival order, else the most recently updated failed one, else the
// last completed one.
func (t *OperationTracker) Current() (models.OperationProgressEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		failed       *trackedOp
		lastComplete *trackedOp
	)
	for e := t.ops.Front(); e != nil; e = e.Next() {
		op := e.Value
		switch op.event.Phase {
		case models.PhaseFailed:
			if failed == nil || op.seq > failed.seq {
				failed = &op
			}
		case models.PhaseCompleted:
			lastComplete = &op
		default:
			return op.event, true
		}
	}
	if failed != nil {
		return failed.event, true
	}
	if lastComplete != nil {
		return lastComplete.event, true
	}
	return models.OperationProgressEvent{}, false
}

// Active returns every non-terminal operation in arrival order.
func (t *OperationTracker) Active() []models.OperationProgressEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []models.OperationProgressEvent
	for e := t.ops.Front(); e != nil; e = e.Next() {
		if !e.Value.event.Phase.IsTerminal() {
			out = append(out, e.Value.event)
		}
	}
	return out
}

// All returns every known operation in arrival order.
func (t *OperationTracker) All() []models.OperationProgressEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.OperationProgressEvent, 0, t.ops.Len())
	for e := t.ops.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.event)
	}
	return out
}

// Get returns the snapshot of one operation.
func (t *OperationTracker) Get(id string) (models.OperationProgressEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.ops.Get(id)
	return op.event, ok
}

// ClearCompleted drops every operation in a terminal phase.
func (t *OperationTracker) ClearCompleted() {
	t.mu.Lock()
	var done []string
	for e := t.ops.Front(); e != nil; e = e.Next() {
		if e.Value.event.Phase.IsTerminal() {
			done = append(done, e.Key)
		}
	}
	for _, id := range done {
		t.ops.Delete(id)
	}
	t.mu.Unlock()
	if len(done) > 0 {
		t.changed()
	}
}
