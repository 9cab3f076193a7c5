package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *FileTreeNode {
	return &FileTreeNode{
		Name: "config", Path: "/repo", IsDirectory: true,
		Children: []*FileTreeNode{
			{Name: "rules", Path: "/repo/rules", IsDirectory: true, Children: []*FileTreeNode{
				{Name: "invoices.yaml", Path: "/repo/rules/invoices.yaml", Resource: &Ref{Kind: KindRule, Name: "invoices"}},
				{Name: "notes.txt", Path: "/repo/rules/notes.txt"},
			}},
			{Name: "settings.yaml", Path: "/repo/settings.yaml", Resource: &Ref{Kind: KindSettings, Name: "settings"}},
		},
	}
}

func TestTreeIndex(t *testing.T) {
	idx := NewTreeIndex(sampleTree())
	assert.Equal(t, 5, idx.Len())

	ref, ok := idx.ResourceAt("/repo/rules/invoices.yaml")
	require.True(t, ok)
	assert.Equal(t, Ref{Kind: KindRule, Name: "invoices"}, ref)

	_, ok = idx.ResourceAt("/repo/rules/notes.txt")
	assert.False(t, ok, "plain files carry no resource")

	_, ok = idx.ResourceAt("/repo/rules")
	assert.False(t, ok, "directories carry no resource")

	p, ok := idx.PathOf(Ref{Kind: KindSettings, Name: "settings"})
	require.True(t, ok)
	assert.Equal(t, "/repo/settings.yaml", p)

	var nilIdx *TreeIndex
	_, ok = nilIdx.Node("/repo")
	assert.False(t, ok)
}

func TestStatusIndexLookup(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{{Path: "rules/a.yaml", Status: StateAdded}}})
		label, ok := idx.Lookup("rules/a.yaml")
		require.True(t, ok)
		assert.Equal(t, StateAdded, label)
	})

	t.Run("relative query against absolute key", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{{Path: "/repo/a/b.yaml", Status: StateModified}}})
		label, ok := idx.Lookup("a/b.yaml")
		require.True(t, ok)
		assert.Equal(t, StateModified, label)
	})

	t.Run("absolute query against relative key", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{{Path: "a/b.yaml", Status: StateUntracked}}})
		label, ok := idx.Lookup("/home/me/config/a/b.yaml")
		require.True(t, ok)
		assert.Equal(t, StateUntracked, label)
	})

	t.Run("ambiguous suffix", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{
			{Path: "/x/a/b.yaml", Status: StateModified},
			{Path: "/y/a/b.yaml", Status: StateDeleted},
		}})
		_, ok := idx.Lookup("a/b.yaml")
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{{Path: "/repo/a/b.yaml", Status: StateModified}}})
		_, ok := idx.Lookup("c.yaml")
		assert.False(t, ok)
		_, ok = idx.Lookup("b.yaml/x")
		assert.False(t, ok)
	})

	t.Run("conflict wins", func(t *testing.T) {
		idx := NewStatusIndex(&GitStatus{IsRepo: true, Files: []FileStatus{
			{Path: "rules/a.yaml", Status: StateConflict},
			{Path: "rules/a.yaml", Status: StateModified},
		}})
		label, _ := idx.Lookup("rules/a.yaml")
		assert.Equal(t, StateConflict, label)
	})
}

func TestStoredJobFold(t *testing.T) {
	ts1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Minute)

	job := StoredJob{}.Fold(JobEvent{
		JobID:      "job-1",
		Filename:   Ptr("scan.pdf"),
		Status:     Ptr(JobProcessing),
		Category:   Ptr("invoices"),
		OutputPath: Ptr("/out/invoices/scan.pdf"),
		Timestamp:  &ts1,
	})
	job = job.Fold(JobEvent{
		JobID:     "job-1",
		Status:    Ptr(JobCompleted),
		Message:   Ptr("filed"),
		Timestamp: &ts2,
	})

	assert.Equal(t, JobCompleted, job.Status)
	assert.Equal(t, "filed", job.Message)
	assert.Equal(t, "invoices", job.Category)
	assert.Equal(t, "/out/invoices/scan.pdf", job.OutputPath)
	assert.Equal(t, "scan.pdf", job.Filename)
	require.NotNil(t, job.Timestamp)
	assert.Equal(t, ts2, *job.Timestamp)
}

func TestKindAndDefaultPath(t *testing.T) {
	k, err := ParseKind("Rule")
	require.NoError(t, err)
	assert.Equal(t, KindRule, k)
	_, err = ParseKind("Secret")
	assert.Error(t, err)

	assert.Equal(t, "rules/invoices.yaml", DefaultPath(KindRule, "invoices"))
	assert.Equal(t, "settings.yaml", DefaultPath(KindSettings, "default"))
	assert.True(t, (&Resource{Path: "/repo/readme.md"}).IsRaw())
	assert.True(t, PhaseFailed.IsTerminal())
	assert.False(t, PhaseReceiving.IsTerminal())
}
