package jobsource

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
)

func TestSQLiteRecordAndPoll(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"), time.Second)
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	ts := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, src.Record(ctx, models.JobEvent{
		JobID:    "j1",
		Filename: models.Ptr("scan.pdf"),
		Status:   models.Ptr(models.JobProcessing),
		Category: models.Ptr("receipts"),
	}))

	events, err := src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "scan.pdf", *events[0].Filename)
	assert.Nil(t, events[0].Timestamp)

	events, err = src.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, events, "unchanged rows are not returned again")

	require.NoError(t, src.Record(ctx, models.JobEvent{
		JobID:     "j1",
		Status:    models.Ptr(models.JobCompleted),
		Symlinks:  []string{"/links/a"},
		Timestamp: &ts,
	}))
	events, err = src.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.JobCompleted, *ev.Status)
	assert.Equal(t, "receipts", *ev.Category, "partial writes keep stored fields")
	assert.Equal(t, []string{"/links/a"}, ev.Symlinks)
	require.NotNil(t, ev.Timestamp)
	assert.True(t, ts.Equal(*ev.Timestamp))
}

func TestSQLiteRunPublishesExistingRows(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"), 10*time.Millisecond)
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Record(context.Background(), models.JobEvent{JobID: "a", Status: models.Ptr(models.JobFailed)}))

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- src.Run(ctx, func(ev models.JobEvent) {
			mu.Lock()
			got = append(got, ev.JobID)
			mu.Unlock()
		})
	}()

	require.NoError(t, src.Record(context.Background(), models.JobEvent{JobID: "b", Status: models.Ptr(models.JobProcessing)}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestParseLine(t *testing.T) {
	ev, ok := ParseLine(`{"jobId":"j9","status":"processing","message":"ocr"}`)
	require.True(t, ok)
	assert.Equal(t, "j9", ev.JobID)
	assert.Equal(t, models.JobProcessing, *ev.Status)
	assert.Nil(t, ev.Category)

	_, ok = ParseLine(`{"status":"processing"}`)
	assert.False(t, ok)
	_, ok = ParseLine("not json")
	assert.False(t, ok)
	_, ok = ParseLine("   ")
	assert.False(t, ok)
}

func TestLogReplaysAndFollows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(`{"jobId":"old","status":"completed"}`+"\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan models.JobEvent, 10)
	go func() {
		_ = NewLog(path).Run(ctx, func(ev models.JobEvent) { events <- ev })
	}()

	select {
	case ev := <-events:
		assert.Equal(t, "old", ev.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("existing line was not replayed")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("garbage\n" + `{"jobId":"new","status":"processing"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-events:
		assert.Equal(t, "new", ev.JobID)
	case <-time.After(5 * time.Second):
		t.Fatal("appended line was not followed")
	}
}

func TestOpen(t *testing.T) {
	src, err := Open(Options{Kind: KindNone})
	require.NoError(t, err)
	assert.Nil(t, src)

	src, err = Open(Options{Kind: KindLog, Path: "/tmp/x.ndjson"})
	require.NoError(t, err)
	assert.IsType(t, &Log{}, src)

	_, err = Open(Options{Kind: "kafka"})
	assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid))
}
