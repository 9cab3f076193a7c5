// Package paths provides XDG-compliant path resolution for rulesync.
//
// Resolution order:
// 1. RULESYNC_HOME (portable root) → $RULESYNC_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/rulesync
// 3. Platform defaults → ~/.config/rulesync, ~/.local/state/rulesync, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "rulesync"

// HomeEnv names the portable root override.
const HomeEnv = "RULESYNC_HOME"

// base resolves one XDG base directory.
func base(sub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv(HomeEnv); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, append(fallback, appName)...)...)
	}
	return ""
}

// ConfigDir returns the user configuration directory.
// Used for a user-wide rulesync.yml.
func ConfigDir() string {
	return base("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory.
// Used for the pid file, logs and the default job database.
func StateDir() string {
	return base("state", "XDG_STATE_HOME", ".local", "state")
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return base("cache", "XDG_CACHE_HOME", ".cache")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv(HomeEnv); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// SocketPath returns the path to the rulesync daemon unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "rulesyncd.sock")
}

// PidFilePath returns the path to the rulesync daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "rulesyncd.pid")
}

// JobsDBPath returns the default SQLite job database.
func JobsDBPath() string {
	return filepath.Join(StateDir(), "jobs.db")
}

// EnsureDirs creates all rulesync directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
