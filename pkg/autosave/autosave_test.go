package autosave

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

const delay = time.Second

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	saved    []string
}

func (r *recorder) hook(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s.Status)
}

func (r *recorder) save(ctx context.Context, v string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, v)
	return nil
}

func (r *recorder) savedValues() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func (r *recorder) statusPath() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func newController(t *testing.T, save SaveFunc[string], opts ...Option[string]) (*Controller[string], *clocktesting.FakeClock) {
	t.Helper()
	fc := clocktesting.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	opts = append([]Option[string]{WithClock[string](fc)}, opts...)
	c := New(save, delay, opts...)
	t.Cleanup(c.Close)
	return c, fc
}

func TestSingleSaveAfterDelay(t *testing.T) {
	rec := &recorder{}
	c, fc := newController(t, rec.save, WithStatusHook[string](rec.hook))

	c.Update("a", true)
	assert.Equal(t, StatusPending, c.State().Status)
	require.True(t, fc.HasWaiters())

	fc.Step(delay - time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.savedValues())

	fc.Step(time.Millisecond)
	require.Eventually(t, func() bool { return c.State().Status == StatusSaved }, time.Second, time.Millisecond)

	assert.Equal(t, []string{"a"}, rec.savedValues())
	assert.Equal(t, []Status{StatusPending, StatusSaving, StatusSaved}, rec.statusPath())
	assert.Equal(t, fc.Now(), c.State().LastSaved)
}

func TestEditsRestartDebounce(t *testing.T) {
	rec := &recorder{}
	c, fc := newController(t, rec.save)

	c.Update("a", true)
	fc.Step(delay / 2)
	c.Update("ab", true)
	fc.Step(delay / 2)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, rec.savedValues())

	fc.Step(delay / 2)
	require.Eventually(t, func() bool { return c.State().Status == StatusSaved }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"ab"}, rec.savedValues())
}

func TestEditDuringSaveSchedulesSecondCycle(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []string
	)
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	save := func(ctx context.Context, v string) error {
		started <- struct{}{}
		if v == "first" {
			<-release
		}
		mu.Lock()
		saved = append(saved, v)
		mu.Unlock()
		return nil
	}
	c, fc := newController(t, save)

	c.Update("first", true)
	fc.Step(delay)
	<-started
	assert.Equal(t, StatusSaving, c.State().Status)

	c.Update("second", true)
	assert.Equal(t, StatusSaving, c.State().Status, "an edit does not interrupt the running save")

	close(release)
	require.Eventually(t, func() bool { return c.State().Status == StatusPending }, time.Second, time.Millisecond)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	fc.Step(delay)
	<-started
	require.Eventually(t, func() bool { return c.State().Status == StatusSaved }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, saved)
}

func TestSaveWorksOnSnapshot(t *testing.T) {
	got := make(chan map[string]string, 1)
	release := make(chan struct{})
	save := func(ctx context.Context, v map[string]string) error {
		<-release
		got <- v
		return nil
	}
	fc := clocktesting.NewFakeClock(time.Now())
	c := New(save, delay, WithClock[map[string]string](fc))
	defer c.Close()

	value := map[string]string{"name": "orig"}
	c.Update(value, true)
	fc.Step(delay)
	require.Eventually(t, func() bool { return c.State().Status == StatusSaving }, time.Second, time.Millisecond)

	value["name"] = "changed"
	close(release)
	assert.Equal(t, "orig", (<-got)["name"])
}

func TestDisabledNeverSchedules(t *testing.T) {
	rec := &recorder{}
	c, fc := newController(t, rec.save, WithEnabled[string](false))

	c.Update("a", true)
	assert.False(t, fc.HasWaiters())
	assert.Equal(t, StatusIdle, c.State().Status)

	c.SetEnabled(true)
	assert.Equal(t, StatusPending, c.State().Status)
	c.SetEnabled(false)
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, fc.HasWaiters())
}

func TestFailedSaveIsNotRetried(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	save := func(ctx context.Context, v string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return fmt.Errorf("disk full")
	}
	c, fc := newController(t, save)

	c.Update("a", true)
	fc.Step(delay)
	require.Eventually(t, func() bool { return c.State().Status == StatusError }, time.Second, time.Millisecond)
	assert.EqualError(t, c.State().Err, "disk full")
	assert.False(t, fc.HasWaiters())

	fc.Step(10 * delay)
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestRevertingChangesCancelsPendingSave(t *testing.T) {
	rec := &recorder{}
	c, fc := newController(t, rec.save)

	c.Update("a", true)
	c.Update("", false)
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, fc.HasWaiters())
}

func TestFlush(t *testing.T) {
	rec := &recorder{}
	c, _ := newController(t, rec.save)

	require.NoError(t, c.Flush())
	assert.Empty(t, rec.savedValues())

	c.Update("a", true)
	require.NoError(t, c.Flush())
	assert.Equal(t, []string{"a"}, rec.savedValues())
	assert.Equal(t, StatusSaved, c.State().Status)
}

func TestReset(t *testing.T) {
	rec := &recorder{}
	c, fc := newController(t, rec.save)

	c.Update("a", true)
	c.Reset()
	assert.Equal(t, StatusIdle, c.State().Status)
	assert.False(t, fc.HasWaiters())
}

// blockingSaver holds saves of block until release is closed and records the
// highest number of saves running at once.
type blockingSaver struct {
	block   string
	started chan string
	release chan struct{}

	mu      sync.Mutex
	running int
	peak    int
	saved   []string
}

func newBlockingSaver(block string) *blockingSaver {
	return &blockingSaver{block: block, started: make(chan string, 4), release: make(chan struct{})}
}

func (b *blockingSaver) save(ctx context.Context, v string) error {
	b.mu.Lock()
	b.running++
	if b.running > b.peak {
		b.peak = b.running
	}
	b.mu.Unlock()
	b.started <- v
	if v == b.block {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running--
	b.saved = append(b.saved, v)
	return nil
}

func (b *blockingSaver) result() ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.saved...), b.peak
}

func TestFlushWaitsForRunningSaveAndSavesNewerEdits(t *testing.T) {
	bs := newBlockingSaver("a")
	c, fc := newController(t, bs.save)

	c.Update("a", true)
	fc.Step(delay)
	assert.Equal(t, "a", <-bs.started)

	c.Update("b", true)
	flushed := make(chan error, 1)
	go func() { flushed <- c.Flush() }()

	select {
	case <-flushed:
		t.Fatal("Flush returned while a save was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(bs.release)
	require.NoError(t, <-flushed)
	c.Close()

	saved, peak := bs.result()
	assert.Equal(t, []string{"a", "b"}, saved)
	assert.Equal(t, 1, peak)
	assert.Equal(t, StatusSaved, c.State().Status)
}

func TestResetDoesNotAllowOverlappingSaves(t *testing.T) {
	bs := newBlockingSaver("a")
	c, fc := newController(t, bs.save)

	c.Update("a", true)
	fc.Step(delay)
	assert.Equal(t, "a", <-bs.started)

	c.Reset()
	c.Update("b", true)
	assert.False(t, fc.HasWaiters(), "no cycle is scheduled while the old save runs")

	close(bs.release)
	require.Eventually(t, func() bool { return c.State().Status == StatusPending }, time.Second, time.Millisecond)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	fc.Step(delay)
	assert.Equal(t, "b", <-bs.started)
	require.Eventually(t, func() bool { return c.State().Status == StatusSaved }, time.Second, time.Millisecond)

	saved, peak := bs.result()
	assert.Equal(t, []string{"a", "b"}, saved)
	assert.Equal(t, 1, peak)
}
