package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/rulesync/config"
	"github.com/grovetools/rulesync/pkg/paths"
)

// Environment overrides.
const (
	EnvLogLevel  = "RULESYNC_LOG_LEVEL"
	EnvLogCaller = "RULESYNC_LOG_CALLER"
	EnvDebug     = "RULESYNC_DEBUG"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	// loadConfig reads the `logging` section. Replaced in tests.
	loadConfig = func() Config {
		var logCfg Config
		cfg, err := config.LoadDefault()
		if err != nil {
			return logCfg
		}
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			// Log a warning if parsing fails, but continue with defaults
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
		return logCfg
	}
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// It uses a singleton pattern per component to avoid re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	entry := configure(logrus.New(), loadConfig(), os.Stderr).WithField("component", component)
	loggers[component] = entry
	return entry
}

// SetLevel changes the level of every logger created so far.
func SetLevel(level logrus.Level) {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, entry := range loggers {
		entry.Logger.SetLevel(level)
	}
}

// configure applies logCfg and the environment overrides to logger.
func configure(logger *logrus.Logger, logCfg Config, stderr *os.File) *logrus.Logger {
	// Configure Level
	levelStr := "info"
	if v := os.Getenv(EnvLogLevel); v != "" {
		levelStr = v
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Configure Caller Reporting
	if os.Getenv(EnvLogCaller) == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	interactive := isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd())

	// Configure Formatter
	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format, Color: interactive})
	}

	// Configure Output Sinks
	var writers []io.Writer
	if logCfg.File.Enabled {
		path := filepath.Join(paths.StateDir(), "rulesync.log")
		if logCfg.File.Path != "" {
			path = expandPath(logCfg.File.Path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			logger.Warnf("Failed to create log directory %s: %v", filepath.Dir(path), err)
		} else if file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err != nil {
			logger.Warnf("Failed to open log file %s: %v", path, err)
		} else {
			writers = append(writers, file)
		}
	}

	stderrMode := "auto"
	if logCfg.Format.StructuredToStderr != "" {
		stderrMode = logCfg.Format.StructuredToStderr
	}

	shouldLogToStderr := true
	switch stderrMode {
	case "never":
		shouldLogToStderr = false
	case "auto":
		// Only show structured logs on an interactive terminal when debugging
		isDebug := os.Getenv(EnvDebug) == "1" || logger.GetLevel() >= logrus.DebugLevel
		shouldLogToStderr = isDebug || !interactive
	}
	if shouldLogToStderr {
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
	return logger
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
