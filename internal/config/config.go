// Package config loads the service configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceSheets = "sheets"
	SourceDir    = "dir"
)

// Config is the complete unit-search configuration.
type Config struct {
	Version int           `yaml:"version" json:"version"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Index   IndexConfig   `yaml:"index" json:"index"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	Server  ServerConfig  `yaml:"server" json:"server"`
}

// SourceConfig selects where tables come from.
type SourceConfig struct {
	// Kind is "sheets" or "dir".
	Kind string `yaml:"kind" json:"kind"`

	// SpreadsheetID identifies the spreadsheet for the sheets source.
	SpreadsheetID string `yaml:"spreadsheet_id" json:"spreadsheet_id"`

	// Dir is the CSV directory for the dir source.
	Dir string `yaml:"dir" json:"dir"`

	// PollInterval is how often the sheets source is probed for
	// changes. Zero disables polling.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`

	// Watch enables filesystem watching for the dir source.
	Watch bool `yaml:"watch" json:"watch"`
}

// IndexConfig configures the member text index.
type IndexConfig struct {
	// Backend is "sqlite" (default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// DataDir holds index files. Empty means in-memory.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ArchiveConfig configures SQLite archiving of published snapshots.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// Default returns a config with sensible defaults: a local CSV
// directory source, an in-memory SQLite index, no archive.
func Default() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Kind:         SourceDir,
			Dir:          "./data",
			PollInterval: 5 * time.Minute,
			Watch:        true,
		},
		Index: IndexConfig{
			Backend: "sqlite",
			DataDir: "",
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "unit-search.db",
		},
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
		},
	}
}

// Load builds the effective configuration. Precedence, lowest first:
//  1. Hardcoded defaults
//  2. YAML file at path (missing file is fine)
//  3. Environment variables (UNITSEARCH_*)
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// fall through to env + defaults
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies UNITSEARCH_* environment variable
// overrides, the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UNITSEARCH_SOURCE"); v != "" {
		c.Source.Kind = v
	}
	if v := os.Getenv("UNITSEARCH_SPREADSHEET_ID"); v != "" {
		c.Source.SpreadsheetID = v
	}
	if v := os.Getenv("UNITSEARCH_DATA_DIR"); v != "" {
		c.Source.Dir = v
	}
	if v := os.Getenv("UNITSEARCH_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Source.PollInterval = d
		}
	}
	if v := os.Getenv("UNITSEARCH_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("UNITSEARCH_INDEX_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("UNITSEARCH_ARCHIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Archive.Enabled = b
		}
	}
	if v := os.Getenv("UNITSEARCH_ARCHIVE_PATH"); v != "" {
		c.Archive.Path = v
	}
	if v := os.Getenv("UNITSEARCH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("UNITSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks the final configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceSheets:
		if c.Source.SpreadsheetID == "" {
			return fmt.Errorf("source.spreadsheet_id is required for the sheets source")
		}
	case SourceDir:
		if c.Source.Dir == "" {
			return fmt.Errorf("source.dir is required for the dir source")
		}
	default:
		return fmt.Errorf("unknown source kind %q (want %q or %q)", c.Source.Kind, SourceSheets, SourceDir)
	}

	switch c.Index.Backend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("unknown index backend %q (want sqlite or bleve)", c.Index.Backend)
	}

	if c.Source.PollInterval < 0 {
		return fmt.Errorf("source.poll_interval must not be negative")
	}

	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Server.LogLevel)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
