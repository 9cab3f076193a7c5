package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncError(t *testing.T) {
	err := New(ErrCodeNotFound, "rule not found")
	assert.Equal(t, ErrCodeNotFound, err.Code)

	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeBackendFailed, "backend failed")
	assert.Equal(t, cause, wrapped.Unwrap())

	assert.True(t, Is(wrapped, ErrCodeBackendFailed))
	assert.False(t, Is(wrapped, ErrCodeNotFound))

	detailed := err.WithDetail("kind", "Rule").WithDetail("name", "invoices")
	assert.Equal(t, "Rule", detailed.Details["kind"])
}

func TestIsWalksNestedSyncErrors(t *testing.T) {
	inner := NothingToCommit()
	outer := BackendFailed("git commit", inner)
	wrapped := fmt.Errorf("resolving conflict: %w", outer)

	assert.True(t, Is(wrapped, ErrCodeBackendFailed))
	assert.True(t, Is(wrapped, ErrCodeNothingToCommit))
	assert.False(t, Is(wrapped, ErrCodeMissingName))
	assert.Equal(t, ErrCodeBackendFailed, GetCode(wrapped))
	assert.False(t, Is(nil, ErrCodeInternal))
	assert.Equal(t, ErrorCode(""), GetCode(fmt.Errorf("plain")))
}

func TestErrorConstructors(t *testing.T) {
	err := MissingName("Rule")
	assert.Equal(t, ErrCodeMissingName, err.Code)
	assert.Equal(t, "Rule", err.Details["kind"])

	err = OperationFailed("move file", "")
	assert.Equal(t, ErrCodeOperationFailed, err.Code)
	assert.Contains(t, err.Message, "unknown error")

	syncErr, ok := As(fmt.Errorf("wrap: %w", ConfigInvalid("bad root")))
	require.True(t, ok)
	assert.Equal(t, ErrCodeConfigInvalid, syncErr.Code)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "plain", Message(fmt.Errorf("plain")))
	assert.Equal(t, "move file failed: target exists", Message(OperationFailed("move file", "target exists")))
}
