package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/errors"
	"github.com/grovetools/rulesync/pkg/models"
)

const invoicesRule = "kind: Rule\nmetadata:\n  name: invoices\nspec:\n  match: invoices\n"

// run executes the command line against a local backend on root.
func run(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(root, "rulesync.yml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		require.NoError(t, os.WriteFile(cfgPath, []byte("backend:\n  mode: local\njobs:\n  source: none\n"), 0644))
	}

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-c", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "status", "init", "watch", "resource", "edit", "git", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestParseKindArg(t *testing.T) {
	kind, err := parseKindArg("rule")
	require.NoError(t, err)
	assert.Equal(t, models.KindRule, kind)

	kind, err = parseKindArg("importsource")
	require.NoError(t, err)
	assert.Equal(t, models.KindImportSource, kind)

	_, err = parseKindArg("Secret")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestResourceLifecycle(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(t.TempDir(), "invoices.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(invoicesRule), 0644))

	out, err := run(t, root, "resource", "apply", "-f", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "Rule/invoices applied")
	assert.FileExists(t, filepath.Join(root, "rules", "invoices.yaml"))

	out, err = run(t, root, "resource", "get", "rule", "invoices")
	require.NoError(t, err)
	assert.Equal(t, invoicesRule, out)

	updated := "kind: Rule\nmetadata:\n  name: invoices\nspec:\n  match: receipts\n"
	require.NoError(t, os.WriteFile(doc, []byte(updated), 0644))
	_, err = run(t, root, "resource", "apply", "-f", doc)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "rules", "invoices.yaml"))
	require.NoError(t, err)
	assert.Equal(t, updated, string(data))

	out, err = run(t, root, "--json", "resource", "list", "--kind", "Rule")
	require.NoError(t, err)
	var list []models.ResourceInfo
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "invoices", list[0].Name)

	_, err = run(t, root, "resource", "delete", "Rule", "invoices")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root, "rules", "invoices.yaml"))

	_, err = run(t, root, "resource", "get", "Rule", "invoices")
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestResourceApplyRejectsMissingName(t *testing.T) {
	root := t.TempDir()
	doc := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("kind: Rule\nmetadata: {}\nspec: {}\n"), 0644))

	_, err := run(t, root, "resource", "apply", "-f", doc)
	assert.True(t, errors.Is(err, errors.ErrCodeMissingName))
}

func TestGitCommitRequiresMessage(t *testing.T) {
	_, err := run(t, t.TempDir(), "git", "commit")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, t.TempDir(), "--json", "version")
	require.NoError(t, err)
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
}
