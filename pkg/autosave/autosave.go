// Package autosave debounces edits and saves a snapshot of the edited value
// once the user stops typing.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/clock"

	"github.com/grovetools/rulesync/logging"
)

// DefaultDelay is the debounce delay when none is configured.
const DefaultDelay = 1500 * time.Millisecond

// Status is the save status shown next to an editor.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// State is a snapshot of the controller.
type State struct {
	Status    Status
	Enabled   bool
	LastSaved time.Time
	Err       error
}

// SaveFunc persists value.
type SaveFunc[T any] func(ctx context.Context, value T) error

// Option configures a Controller.
type Option[T any] func(*Controller[T])

// WithClock sets the clock driving the debounce timer.
func WithClock[T any](c clock.Clock) Option[T] {
	return func(ctl *Controller[T]) {
		ctl.clock = c
	}
}

// WithCloner sets how the value is snapshotted before a save.
func WithCloner[T any](fn func(T) (T, error)) Option[T] {
	return func(ctl *Controller[T]) {
		ctl.clone = fn
	}
}

// WithStatusHook calls fn after every state transition.
func WithStatusHook[T any](fn func(State)) Option[T] {
	return func(ctl *Controller[T]) {
		ctl.hook = fn
	}
}

// WithEnabled sets the initial enabled flag. Controllers start enabled.
func WithEnabled[T any](enabled bool) Option[T] {
	return func(ctl *Controller[T]) {
		ctl.enabled = enabled
	}
}

// Controller schedules saves of the latest value. Each save works on a deep
// copy taken when it starts; edits arriving while it runs schedule another
// cycle after it finishes. Failed saves are not retried.
type Controller[T any] struct {
	save  SaveFunc[T]
	delay time.Duration
	clock clock.Clock
	clone func(T) (T, error)
	hook  func(State)
	log   *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	value      T
	hasChanges bool
	enabled    bool
	status     Status
	lastSaved  time.Time
	err        error
	closed     bool

	// inflight is closed when the running save returns. Reset leaves it set
	// so saves never overlap.
	inflight chan struct{}

	// edits counts changes; snapshot is the count a save started from.
	edits    uint64
	snapshot uint64

	// epoch changes on Reset so in-flight results are ignored.
	epoch uint64
	timer clock.Timer
	stop  chan struct{}
}

// New creates a Controller calling save after delay of inactivity.
func New[T any](save SaveFunc[T], delay time.Duration, opts ...Option[T]) *Controller[T] {
	if delay <= 0 {
		delay = DefaultDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller[T]{
		save:    save,
		delay:   delay,
		clock:   clock.RealClock{},
		clone:   YAMLClone[T],
		log:     logging.NewLogger("autosave"),
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
		status:  StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update records the latest value. hasChanges reports whether it differs
// from what is persisted.
func (c *Controller[T]) Update(value T, hasChanges bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.value = value
	c.hasChanges = hasChanges
	var states []State
	switch {
	case !hasChanges:
		c.stopTimer()
		if c.status == StatusPending {
			states = append(states, c.transition(StatusIdle))
		}
	case !c.enabled:
	default:
		c.edits++
		if c.inflight == nil {
			states = append(states, c.schedule())
		}
	}
	c.mu.Unlock()
	c.notify(states...)
}

// SetEnabled turns scheduling on or off. Disabling cancels a pending save.
func (c *Controller[T]) SetEnabled(enabled bool) {
	c.mu.Lock()
	if c.closed || c.enabled == enabled {
		c.mu.Unlock()
		return
	}
	c.enabled = enabled
	var states []State
	if !enabled {
		c.stopTimer()
		if c.status == StatusPending {
			states = append(states, c.transition(StatusIdle))
		}
	} else if c.hasChanges && c.inflight == nil {
		c.edits++
		states = append(states, c.schedule())
	}
	c.mu.Unlock()
	c.notify(states...)
}

// Reset forgets pending changes and errors, e.g. when another entity is
// opened. A save in flight completes but its result is ignored; edits made
// meanwhile are saved after it.
func (c *Controller[T]) Reset() {
	c.mu.Lock()
	c.stopTimer()
	var zero T
	c.value = zero
	c.hasChanges = false
	c.err = nil
	c.epoch++
	c.snapshot = c.edits
	st := c.transition(StatusIdle)
	c.mu.Unlock()
	c.notify(st)
}

// Flush saves a pending change immediately. When a save is running, Flush
// waits for it and then saves the edits made while it ran.
func (c *Controller[T]) Flush() error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		if done := c.inflight; done != nil {
			c.mu.Unlock()
			<-done
			continue
		}
		if c.status != StatusPending {
			c.mu.Unlock()
			return nil
		}
		c.stopTimer()
		c.mu.Unlock()
		if err := c.run(c.ctx); err != nil {
			return err
		}
	}
}

// State returns a snapshot of the controller.
func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Close stops scheduling and cancels a save in flight.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopTimer()
	c.cancel()
}

// schedule (re)starts the debounce timer. Callers hold c.mu.
func (c *Controller[T]) schedule() State {
	c.stopTimer()
	c.timer = c.clock.NewTimer(c.delay)
	c.stop = make(chan struct{})
	go c.wait(c.timer, c.stop)
	return c.transition(StatusPending)
}

func (c *Controller[T]) wait(t clock.Timer, stop <-chan struct{}) {
	select {
	case <-t.C():
	case <-stop:
		return
	}
	c.mu.Lock()
	if c.stop != stop {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.stop = nil
	c.mu.Unlock()
	_ = c.run(c.ctx)
}

// run saves a snapshot of the current value and schedules a follow-up cycle
// for edits made while it ran.
func (c *Controller[T]) run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || !c.enabled || !c.hasChanges || c.inflight != nil {
		c.mu.Unlock()
		return nil
	}
	snap, err := c.clone(c.value)
	if err != nil {
		err = fmt.Errorf("failed to snapshot value: %w", err)
		c.err = err
		st := c.transition(StatusError)
		c.mu.Unlock()
		c.notify(st)
		return err
	}
	done := make(chan struct{})
	c.inflight = done
	c.snapshot = c.edits
	epoch := c.epoch
	states := []State{c.transition(StatusSaving)}
	c.mu.Unlock()
	c.notify(states...)

	saveErr := c.save(ctx, snap)

	c.mu.Lock()
	c.inflight = nil
	close(done)
	states = states[:0]
	switch {
	case c.epoch != epoch:
		saveErr = nil
	case saveErr != nil:
		c.err = saveErr
		c.log.WithError(saveErr).Warn("Auto-save failed")
		states = append(states, c.transition(StatusError))
	default:
		c.err = nil
		c.lastSaved = c.clock.Now()
		states = append(states, c.transition(StatusSaved))
	}
	if c.edits > c.snapshot && c.enabled && c.hasChanges && !c.closed {
		states = append(states, c.schedule())
	}
	c.mu.Unlock()
	c.notify(states...)
	return saveErr
}

// transition sets the status. Callers hold c.mu.
func (c *Controller[T]) transition(s Status) State {
	c.status = s
	return c.stateLocked()
}

func (c *Controller[T]) stateLocked() State {
	return State{
		Status:    c.status,
		Enabled:   c.enabled,
		LastSaved: c.lastSaved,
		Err:       c.err,
	}
}

func (c *Controller[T]) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

func (c *Controller[T]) notify(states ...State) {
	if c.hook == nil {
		return
	}
	for _, s := range states {
		c.hook(s)
	}
}

// YAMLClone deep-copies v through a YAML round trip.
func YAMLClone[T any](v T) (T, error) {
	var out T
	data, err := yaml.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
