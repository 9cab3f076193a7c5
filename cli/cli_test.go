package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
)

func TestBackendFlag(t *testing.T) {
	var b BackendFlag
	require.NoError(t, b.Set("remote"))
	assert.Equal(t, "remote", b.String())
	assert.Error(t, b.Set("cloud"))
	assert.Equal(t, "remote", b.String())
}

func TestGetOptionsAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulesync.yml")
	require.NoError(t, os.WriteFile(path, []byte("root: cfg\nbackend:\n  mode: local\n"), 0644))

	cmd := NewStandardCommand("rulesync", "test")
	var opts CommandOptions
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts = GetOptions(cmd)
		return nil
	}
	cmd.SetArgs([]string{"--config", path, "--backend", "remote", "--json"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, CommandOptions{ConfigFile: path, JSONOutput: true, Backend: "remote"}, opts)

	cfg, err := LoadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, config.ModeRemote, cfg.Backend.Mode)
	assert.Equal(t, filepath.Join(dir, "cfg"), cfg.Root)

	opts.Root = "/elsewhere"
	cfg, err = LoadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere", cfg.Root)
}

func TestInvalidBackendFlag(t *testing.T) {
	cmd := NewStandardCommand("rulesync", "test")
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return nil }
	cmd.SetArgs([]string{"--backend", "cloud"})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewErrorHandler(true, &buf)

	err := errors.NothingToCommit()
	assert.Same(t, err, h.Handle(err))
	out := buf.String()
	assert.Contains(t, out, "no changes to commit")
	assert.Contains(t, out, "Error details")
	assert.Nil(t, h.Handle(nil))
}

func TestOperationLine(t *testing.T) {
	pct, cur, total := 45, 450, 1000
	bytesDone := int64(3 * 1024 * 1024)

	line := OperationLine(models.OperationProgressEvent{
		OperationType:    models.OpPull,
		Phase:            models.PhaseReceiving,
		Progress:         &pct,
		Current:          &cur,
		Total:            &total,
		BytesTransferred: &bytesDone,
		TransferSpeed:    "1.50 MiB/s",
	})
	assert.True(t, strings.HasPrefix(line, "[pull] receiving "))
	assert.Contains(t, line, " 45%")
	assert.Contains(t, line, "(450/1000)")
	assert.Contains(t, line, "3.00 MiB | 1.50 MiB/s")

	failed := OperationLine(models.OperationProgressEvent{
		OperationType: models.OpCommit,
		Phase:         models.PhaseFailed,
		Error:         "nothing to commit",
	})
	assert.Equal(t, "[commit] failed: nothing to commit", failed)
}

func TestProgressRendererNonInteractive(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressRenderer(&buf)
	p.Operation(models.OperationProgressEvent{OperationType: models.OpPull, Phase: models.PhasePulling})
	p.Operation(models.OperationProgressEvent{OperationType: models.OpPull, Phase: models.PhaseCompleted, Message: "up to date"})
	p.Job(models.StoredJob{JobID: "j1", Filename: "invoice.pdf", Status: models.JobProcessing, CurrentPhase: "ocr"})

	assert.Equal(t, "[pull] pulling\n[pull] completed: up to date\nprocessing invoice.pdf [ocr]\n", buf.String())
}

func TestBar(t *testing.T) {
	assert.Equal(t, "█████░░░░░", Bar(50, 10))
	assert.Equal(t, "░░░░░░░░░░", Bar(-5, 10))
	assert.Equal(t, "██████████", Bar(150, 10))
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512))
	assert.Equal(t, "1.00 KiB", HumanBytes(1024))
	assert.Equal(t, "1.50 MiB", HumanBytes(1536*1024))
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "short", wrapText("short", 20))
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
}

func TestRenderHelp(t *testing.T) {
	root := NewStandardCommand("rulesync", "Sync configuration")
	root.AddCommand(&cobra.Command{Use: "status", Short: "Show status", Run: func(*cobra.Command, []string) {}})

	var buf bytes.Buffer
	renderHelp(&buf, root, 60)
	out := buf.String()
	assert.Contains(t, out, "RULESYNC")
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "--backend")
	assert.Contains(t, out, "RULESYNC_LOG_LEVEL")
	assert.NotContains(t, out, "GLOBAL FLAGS")
}

func TestRenderHelpSubcommand(t *testing.T) {
	root := NewStandardCommand("rulesync", "Sync configuration")
	sub := &cobra.Command{Use: "list", Aliases: []string{"ls"}, Short: "List", Run: func(*cobra.Command, []string) {}}
	sub.Flags().String("kind", "", "Only this kind")
	root.AddCommand(sub)

	var buf bytes.Buffer
	renderHelp(&buf, sub, 60)
	out := buf.String()
	assert.Contains(t, out, "aliases: ls")
	assert.Contains(t, out, "--kind")
	assert.Contains(t, out, "GLOBAL FLAGS")
	assert.Contains(t, out, "--config")
	assert.NotContains(t, out, "ENVIRONMENT")
}
