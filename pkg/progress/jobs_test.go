package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/pkg/backend"
	"github.com/grovetools/rulesync/pkg/models"
)

func TestJobFoldKeepsUnsuppliedFields(t *testing.T) {
	tr := NewJobTracker(nil)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tr.Apply(models.JobEvent{
		JobID:      "j1",
		Filename:   models.Ptr("invoice.pdf"),
		Status:     models.Ptr(models.JobProcessing),
		Category:   models.Ptr("finance"),
		OutputPath: models.Ptr("/out/invoice.md"),
	})
	tr.Apply(models.JobEvent{
		JobID:     "j1",
		Status:    models.Ptr(models.JobCompleted),
		Message:   models.Ptr("done"),
		Timestamp: &ts,
	})

	want := models.StoredJob{
		JobID:      "j1",
		Filename:   "invoice.pdf",
		Status:     models.JobCompleted,
		Message:    "done",
		Category:   "finance",
		OutputPath: "/out/invoice.md",
		Timestamp:  &ts,
	}
	if diff := cmp.Diff(want, tr.Jobs()["j1"]); diff != "" {
		t.Errorf("folded job mismatch (-want +got):\n%s", diff)
	}
}

func TestPartition(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	jobs := map[string]models.StoredJob{
		"p":  {JobID: "p", Status: models.JobProcessing},
		"c1": {JobID: "c1", Status: models.JobCompleted, Timestamp: &older},
		"c2": {JobID: "c2", Status: models.JobCompleted},
		"c3": {JobID: "c3", Status: models.JobCompleted, Timestamp: &newer},
		"f":  {JobID: "f", Status: models.JobFailed, Error: "ocr failed"},
		"s":  {JobID: "s", Status: models.JobSuperseded},
	}

	p := Partition(jobs)
	ids := func(js []models.StoredJob) []string {
		var out []string
		for _, j := range js {
			out = append(out, j.JobID)
		}
		return out
	}
	assert.Equal(t, []string{"p"}, ids(p.Processing))
	assert.Equal(t, []string{"c3", "c1", "c2"}, ids(p.Completed))
	assert.Equal(t, []string{"f"}, ids(p.Failed))
}

func TestJobTrackerConsumesStream(t *testing.T) {
	broker := backend.NewBroker[models.JobEvent](0)
	tr := NewJobTracker(func(ctx context.Context) (<-chan models.JobEvent, error) {
		return broker.Subscribe(ctx), nil
	})
	require.NoError(t, tr.Start(context.Background()))
	defer tr.Stop()

	broker.Publish(models.JobEvent{JobID: "j", Status: models.Ptr(models.JobFailed), Error: models.Ptr("boom")})
	require.Eventually(t, func() bool {
		return len(tr.Partitions().Failed) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "boom", tr.Partitions().Failed[0].Error)
}
