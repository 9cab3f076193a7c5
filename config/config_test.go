package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/rulesync/errors"
)

// TestExtensions verifies that unknown top-level sections are kept as
// extensions and can be decoded on demand.
func TestExtensions(t *testing.T) {
	yamlContent := []byte(`
backend:
  mode: local

logging:
  level: debug
  format: json

monitoring:
  enabled: true
  interval: 30
`)

	cfg, err := LoadFromBytes(yamlContent, FormatYAML)
	require.NoError(t, err)
	require.Contains(t, cfg.Extensions, "logging")
	require.Contains(t, cfg.Extensions, "monitoring")
	assert.NotContains(t, cfg.Extensions, "backend")

	type LoggingConfig struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	var logCfg LoggingConfig
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "debug", logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)

	var missing LoggingConfig
	require.NoError(t, cfg.UnmarshalExtension("nope", &missing))
	assert.Empty(t, missing.Level)
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(""), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, ModeAuto, cfg.Backend.Mode)
	assert.True(t, cfg.Autosave.IsEnabled())
	assert.Equal(t, DefaultAutosaveDelay, cfg.Autosave.Delay())
	assert.Equal(t, DefaultBannerTimeout, cfg.Banner.Timeout())
	assert.Equal(t, JobsNone, cfg.Jobs.Source)
	assert.Equal(t, DefaultJobPollInterval, cfg.Jobs.PollInterval())
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce())
	assert.Empty(t, cfg.Extensions)
}

func TestSections(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
root: /srv/rules
backend:
  mode: remote
  socket: /tmp/rulesyncd.sock
autosave:
  enabled: false
  delay_ms: 750
banner:
  timeout_ms: 3000
jobs:
  source: sqlite
  path: /var/lib/jobs.db
  poll_interval_ms: 500
watch:
  debounce_ms: 50
  ignore:
    - "*.tmp"
    - drafts/
`), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "/srv/rules", cfg.Root)
	assert.Equal(t, BackendConfig{Mode: ModeRemote, Socket: "/tmp/rulesyncd.sock"}, cfg.Backend)
	assert.False(t, cfg.Autosave.IsEnabled())
	assert.Equal(t, 750*time.Millisecond, cfg.Autosave.Delay())
	assert.Equal(t, 3*time.Second, cfg.Banner.Timeout())
	assert.Equal(t, JobsConfig{Source: JobsSQLite, Path: "/var/lib/jobs.db", PollIntervalMs: 500}, cfg.Jobs)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce())
	assert.Equal(t, []string{"*.tmp", "drafts/"}, cfg.Watch.Ignore)
	assert.Empty(t, cfg.Extensions)
}

func TestTOML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
root = "rules"

[backend]
mode = "local"

[jobs]
source = "log"
path = "jobs.ndjson"

[logging]
level = "warn"
`), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, "rules", cfg.Root)
	assert.Equal(t, ModeLocal, cfg.Backend.Mode)
	assert.Equal(t, JobsLog, cfg.Jobs.Source)
	assert.Contains(t, cfg.Extensions, "logging")
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("RULESYNC_TEST_DELAY", "900")
	cfg, err := LoadFromBytes([]byte(`
autosave:
  delay_ms: ${RULESYNC_TEST_DELAY}
backend:
  socket: ${RULESYNC_TEST_UNSET:-/run/default.sock}
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Autosave.DelayMs)
	assert.Equal(t, "/run/default.sock", cfg.Backend.Socket)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unparseable", "backend: [unclosed"},
		{"bad mode", "backend:\n  mode: sometimes\n"},
		{"unknown key in section", "backend:\n  modee: local\n"},
		{"negative delay", "autosave:\n  delay_ms: -1\n"},
		{"log job source without path", "jobs:\n  source: log\n"},
		{"negative poll interval", "jobs:\n  source: sqlite\n  poll_interval_ms: -5\n"},
		{"unknown job source", "jobs:\n  source: kafka\n  path: x\n"},
		{"bad ignore pattern", "watch:\n  ignore: [\"[\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.content), FormatYAML)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeConfigInvalid), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulesync.yml")
	require.NoError(t, os.WriteFile(path, []byte("root: config\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, filepath.Join(dir, "config"), cfg.Root)

	_, err = Load(filepath.Join(dir, "missing.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestFindConfigFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	_, err := FindConfigFile(nested)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))

	tomlPath := filepath.Join(root, "rulesync.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(""), 0644))
	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, tomlPath, found)

	// yml takes precedence over toml in the same directory
	ymlPath := filepath.Join(root, "rulesync.yml")
	require.NoError(t, os.WriteFile(ymlPath, []byte(""), 0644))
	found, err = FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, ymlPath, found)

	// nearer files win
	nearPath := filepath.Join(root, "a", "rulesync.yaml")
	require.NoError(t, os.WriteFile(nearPath, []byte(""), 0644))
	found, err = FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, nearPath, found)
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadDefault()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, cfg.Root)
	assert.Empty(t, cfg.Path)
}
