package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Backend modes.
const (
	ModeAuto   = "auto"
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Job source kinds.
const (
	JobsNone   = "none"
	JobsSQLite = "sqlite"
	JobsLog    = "log"
)

// Defaults applied by SetDefaults.
const (
	DefaultAutosaveDelay   = 1500 * time.Millisecond
	DefaultBannerTimeout   = 5 * time.Second
	DefaultJobPollInterval = 2 * time.Second
	DefaultWatchDebounce   = 200 * time.Millisecond
)

// BackendConfig selects how the engine reaches the configuration store.
type BackendConfig struct {
	// Mode is auto, local or remote. Auto uses the daemon when its socket
	// answers and falls back to an in-process local backend.
	Mode   string `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Socket string `yaml:"socket,omitempty" toml:"socket,omitempty"`
}

// AutosaveConfig controls draft auto-saving in the editor.
type AutosaveConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	DelayMs int   `yaml:"delay_ms,omitempty" toml:"delay_ms,omitempty"`
}

// IsEnabled reports whether auto-save is on. Unset means on.
func (a AutosaveConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Delay returns the debounce delay.
func (a AutosaveConfig) Delay() time.Duration {
	return time.Duration(a.DelayMs) * time.Millisecond
}

// BannerConfig controls how long failure banners stay visible.
type BannerConfig struct {
	TimeoutMs int `yaml:"timeout_ms,omitempty" toml:"timeout_ms,omitempty"`
}

// Timeout returns the banner lifetime.
func (b BannerConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// JobsConfig selects where document-processing job events come from.
type JobsConfig struct {
	Source         string `yaml:"source,omitempty" toml:"source,omitempty"`
	Path           string `yaml:"path,omitempty" toml:"path,omitempty"`
	PollIntervalMs int    `yaml:"poll_interval_ms,omitempty" toml:"poll_interval_ms,omitempty"`
}

// PollInterval returns the SQLite poll interval.
func (j JobsConfig) PollInterval() time.Duration {
	return time.Duration(j.PollIntervalMs) * time.Millisecond
}

// WatchConfig controls the filesystem watcher of the local backend.
type WatchConfig struct {
	DebounceMs int      `yaml:"debounce_ms,omitempty" toml:"debounce_ms,omitempty"`
	Ignore     []string `yaml:"ignore,omitempty" toml:"ignore,omitempty"`
}

// Debounce returns the change notification debounce.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// Config is the rulesync.yml configuration.
type Config struct {
	// Root is the configuration repository directory. Relative paths are
	// resolved against the directory holding the config file.
	Root     string         `yaml:"root,omitempty" toml:"root,omitempty"`
	Backend  BackendConfig  `yaml:"backend,omitempty" toml:"backend,omitempty"`
	Autosave AutosaveConfig `yaml:"autosave,omitempty" toml:"autosave,omitempty"`
	Banner   BannerConfig   `yaml:"banner,omitempty" toml:"banner,omitempty"`
	Jobs     JobsConfig     `yaml:"jobs,omitempty" toml:"jobs,omitempty"`
	Watch    WatchConfig    `yaml:"watch,omitempty" toml:"watch,omitempty"`

	// Extensions captures all other top-level keys for extensibility.
	Extensions map[string]interface{} `yaml:"-" toml:"-"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `yaml:"-" toml:"-"`
}

// knownSections are the top-level keys decoded into Config fields.
var knownSections = map[string]bool{
	"root":     true,
	"backend":  true,
	"autosave": true,
	"banner":   true,
	"jobs":     true,
	"watch":    true,
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Backend.Mode == "" {
		c.Backend.Mode = ModeAuto
	}
	if c.Autosave.DelayMs == 0 {
		c.Autosave.DelayMs = int(DefaultAutosaveDelay / time.Millisecond)
	}
	if c.Banner.TimeoutMs == 0 {
		c.Banner.TimeoutMs = int(DefaultBannerTimeout / time.Millisecond)
	}
	if c.Jobs.Source == "" {
		c.Jobs.Source = JobsNone
	}
	if c.Jobs.PollIntervalMs == 0 {
		c.Jobs.PollIntervalMs = int(DefaultJobPollInterval / time.Millisecond)
	}
	if c.Watch.DebounceMs == 0 {
		c.Watch.DebounceMs = int(DefaultWatchDebounce / time.Millisecond)
	}
}

// UnmarshalExtension decodes a specific extension's configuration into
// the provided target struct. The target must be a pointer. A missing
// section leaves the target untouched.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		return nil
	}
	if err := decode(extensionConfig, target, false); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}
	return nil
}

// decode maps a generic value onto target using yaml tags, converting
// numeric strings produced by environment expansion. Strict decoding
// rejects keys target does not declare.
func decode(input, target interface{}, strict bool) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      strict,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}
	return decoder.Decode(input)
}
