package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.Data["component"])

	// Loggers are cached per component
	assert.Same(t, logger, NewLogger("test-component"))
	assert.NotSame(t, logger, NewLogger("other-component"))
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "test message",
				Data: logrus.Fields{
					"component": "test-component",
					"key1":      "value1",
				},
			},
			want: []string{"[INFO]", "[test-component]", "test message", "key1=value1"},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "careful",
				Data:    logrus.Fields{"component": "hidden"},
			},
			want:    []string{"[WARN] careful"},
			notWant: []string{"hidden"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &TextFormatter{Config: tt.config}
			out, err := f.Format(tt.entry)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, string(out), w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, string(out), nw)
			}
		})
	}
}

func TestTextFormatterSortsFields(t *testing.T) {
	f := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}}
	out, err := f.Format(&logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "m",
		Data:    logrus.Fields{"b": 2, "a": 1, "c": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "[INFO] m a=1 b=2 c=3\n", string(out))
}

func TestTextFormatterErrorLastAndQuoted(t *testing.T) {
	f := &TextFormatter{Config: FormatConfig{DisableTimestamp: true}}
	out, err := f.Format(&logrus.Entry{
		Level:   logrus.ErrorLevel,
		Message: "save failed",
		Data: logrus.Fields{
			logrus.ErrorKey: errors.New("disk full"),
			"path":          "rules/a b.yaml",
			"attempt":       2,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "[ERROR] save failed attempt=2 path=\"rules/a b.yaml\" error=\"disk full\"\n", string(out))
}

func tempStderr(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestConfigureLevel(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	logger := configure(logrus.New(), Config{Level: "warn"}, tempStderr(t))
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger = configure(logrus.New(), Config{Level: "bogus"}, tempStderr(t))
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	t.Setenv(EnvLogLevel, "debug")
	logger = configure(logrus.New(), Config{Level: "warn"}, tempStderr(t))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestConfigureCaller(t *testing.T) {
	t.Setenv(EnvLogCaller, "true")
	logger := configure(logrus.New(), Config{}, tempStderr(t))
	assert.True(t, logger.ReportCaller)
}

func TestConfigureJSONToNonTerminal(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	stderr := tempStderr(t)

	logger := configure(logrus.New(), Config{Format: FormatConfig{Preset: "json"}}, stderr)
	logger.WithField("component", "x").Info("hello")

	data, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "x", line["component"])
}

func TestConfigureFileSink(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	path := filepath.Join(t.TempDir(), "logs", "rulesync.log")

	logger := configure(logrus.New(), Config{
		File:   FileSinkConfig{Enabled: true, Path: path},
		Format: FormatConfig{StructuredToStderr: "never"},
	}, tempStderr(t))
	logger.Error("boom")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[ERROR] boom"))
}

func TestConfigureNeverDiscards(t *testing.T) {
	stderr := tempStderr(t)
	logger := configure(logrus.New(), Config{Format: FormatConfig{StructuredToStderr: "never"}}, stderr)
	logger.Error("dropped")

	data, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Success("done")
	p.WarnPretty("careful")
	p.ErrorPretty("failed", errors.New("cause"))
	p.Field("branch", "main")
	p.Path("root", "/srv/rules")
	p.List([]string{"rules/a.yaml"})

	out := buf.String()
	assert.Contains(t, out, "failed: cause")
	assert.Contains(t, out, "rules/a.yaml")
	for _, want := range []string{"done", "careful", "branch", "main", "root", "/srv/rules"} {
		assert.Contains(t, out, want)
	}
}
