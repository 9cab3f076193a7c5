package logging

// Config is the `logging` section of rulesync.yml. RULESYNC_LOG_LEVEL and
// RULESYNC_LOG_CALLER override Level and ReportCaller.
type Config struct {
	Level        string         `yaml:"level"`
	ReportCaller bool           `yaml:"report_caller"`
	File         FileSinkConfig `yaml:"file"`
	Format       FormatConfig   `yaml:"format"`
}

// FileSinkConfig adds a log file next to stderr. An empty Path writes to
// rulesync.log in the state directory.
type FileSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// FormatConfig controls how entries are rendered.
type FormatConfig struct {
	// Preset is "default", "simple" or "json".
	Preset           string `yaml:"preset"`
	DisableTimestamp bool   `yaml:"disable_timestamp"`
	DisableComponent bool   `yaml:"disable_component"`
	// StructuredToStderr is "auto", "always" or "never". Auto writes to
	// stderr only in debug mode or when stderr is not a terminal.
	StructuredToStderr string `yaml:"structured_to_stderr"`
}
