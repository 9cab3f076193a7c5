package config

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/grovetools/rulesync/errors"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames are the file names FindConfigFile looks for, in order.
var configNames = []string{
	"rulesync.yml",
	"rulesync.yaml",
	"rulesync.toml",
}

// Load reads and parses a rulesync configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = FormatTOML
	}

	cfg, err := LoadFromBytes(data, format)
	if err != nil {
		if syncErr, ok := errors.As(err); ok {
			return nil, syncErr.WithDetail("path", path)
		}
		return nil, err
	}

	// The root defaults to the directory holding the config file
	cfg.Path = path
	switch {
	case cfg.Root == "":
		cfg.Root = filepath.Dir(path)
	case !filepath.IsAbs(cfg.Root):
		cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
	}
	return cfg, nil
}

// LoadDefault finds the config file above the working directory and loads
// it. Without a config file the defaults are returned with the working
// directory as root.
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	path, err := FindConfigFile(cwd)
	if err != nil {
		if errors.Is(err, errors.ErrCodeConfigNotFound) {
			cfg := Default()
			cfg.Root = cwd
			return cfg, nil
		}
		return nil, err
	}

	return Load(path)
}

// Default returns a configuration holding only default values.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// LoadFromBytes parses configuration from byte array
func LoadFromBytes(data []byte, format Format) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	raw := map[string]interface{}{}
	switch format {
	case FormatTOML:
		if err := toml.NewDecoder(bytes.NewReader([]byte(expanded))).Decode(&raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}

	known := map[string]interface{}{}
	extensions := map[string]interface{}{}
	for key, value := range raw {
		if knownSections[key] {
			known[key] = value
		} else {
			extensions[key] = value
		}
	}

	var config Config
	if err := decode(known, &config, true); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid configuration")
	}
	config.Extensions = extensions

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// FindConfigFile searches startDir and its parents for a rulesync
// configuration file.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
