package pidfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/errors"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "rulesyncd.pid")

	require.NoError(t, Acquire(path, Record{Root: "/srv/rules", Socket: "/run/rulesyncd.sock"}))
	rec, err := Running(path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "/srv/rules", rec.Root)
	assert.Equal(t, "/run/rulesyncd.sock", rec.Socket)
	assert.False(t, rec.Started.IsZero())

	// Re-acquiring from the same process is allowed
	require.NoError(t, Acquire(path, Record{Root: "/srv/other"}))

	require.NoError(t, Release(path))
	rec, err = Running(path)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Releasing twice is a no-op
	require.NoError(t, Release(path))
}

func writeRecord(t *testing.T, path string, rec Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulesyncd.pid")
	// PIDs are capped well below this on every supported platform
	writeRecord(t, path, Record{PID: 1 << 30, Root: "/old"})

	require.NoError(t, Acquire(path, Record{Root: "/new"}))
	rec, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "/new", rec.Root)
}

func TestAcquireRejectsLiveDaemon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulesyncd.pid")
	// The parent process stands in for another running daemon
	writeRecord(t, path, Record{PID: os.Getppid(), Root: "/srv/rules"})

	err := Acquire(path, Record{Root: "/srv/rules"})
	assert.True(t, errors.Is(err, errors.ErrCodeAlreadyExists))
}

func TestReleaseKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulesyncd.pid")
	writeRecord(t, path, Record{PID: os.Getppid()})

	require.NoError(t, Release(path))
	assert.FileExists(t, path)
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rulesyncd.pid")
	require.NoError(t, os.WriteFile(path, []byte("1234"), 0644))

	_, err := Running(path)
	assert.True(t, errors.Is(err, errors.ErrCodeInternal))
}

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
}
