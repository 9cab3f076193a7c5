package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/grovetools/rulesync/errors"
)

func TestBannerClearsAfterTimeout(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	b := NewBanner(fc, 3*time.Second)

	b.Report("commit", errors.OperationFailed("commit", "remote rejected"))
	msg := b.Current()
	require.NotNil(t, msg)
	assert.Equal(t, errors.ErrCodeOperationFailed, msg.Code)
	assert.Equal(t, "commit", msg.Operation)

	fc.Step(2 * time.Second)
	assert.NotNil(t, b.Current())

	fc.Step(time.Second)
	require.Eventually(t, func() bool { return b.Current() == nil }, time.Second, time.Millisecond)
}

func TestBannerNewerReportRestartsTimer(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Now())
	b := NewBanner(fc, 3*time.Second)

	b.Report("pull", errors.BackendFailed("pull", assert.AnError))
	fc.Step(2 * time.Second)
	b.Report("checkout", errors.BackendFailed("checkout", assert.AnError))

	fc.Step(2 * time.Second)
	// The first timer was replaced and must not clear the newer message.
	time.Sleep(10 * time.Millisecond)
	msg := b.Current()
	require.NotNil(t, msg)
	assert.Equal(t, "checkout", msg.Operation)

	fc.Step(time.Second)
	require.Eventually(t, func() bool { return b.Current() == nil }, time.Second, time.Millisecond)
}

func TestBannerIgnoresNilAndDismisses(t *testing.T) {
	b := NewBanner(clocktesting.NewFakeClock(time.Now()), 0)
	b.Report("pull", nil)
	assert.Nil(t, b.Current())

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Report("pull", errors.NothingToCommit())
	assert.NotNil(t, <-ch)
	b.Dismiss()
	assert.Nil(t, <-ch)
	assert.Nil(t, b.Current())
}
