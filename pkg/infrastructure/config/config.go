package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all Shareloft search service configuration
type Config struct {
	// HTTP API surface
	Server ServerConfig `json:"server"`

	// File record database (source of truth for reindex candidates)
	Database DatabaseConfig `json:"database"`

	// Search index settings
	Index IndexConfig `json:"index"`

	// Upload root watching
	Watch WatchConfig `json:"watch"`

	// System logging
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string `json:"addr"`
	AdminSecretHash string `json:"admin_secret_hash,omitempty"` // bcrypt hash; empty disables admin endpoints
	ReadTimeout     int    `json:"read_timeout_seconds"`
	WriteTimeout    int    `json:"write_timeout_seconds"`
}

// DatabaseConfig holds PostgreSQL connection settings.
// An empty DSN selects the in-memory file store (standalone mode).
type DatabaseConfig struct {
	DSN            string `json:"dsn"`
	MaxConnections int32  `json:"max_connections"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`
}

// IndexConfig holds search index settings
type IndexConfig struct {
	Path           string `json:"path"`
	DefaultResults int    `json:"default_results"`
	MaxResults     int    `json:"max_results"`
	CacheSize      int    `json:"cache_size"`
	CacheTTL       int    `json:"cache_ttl_seconds"`
}

// WatchConfig holds upload root watcher settings
type WatchConfig struct {
	Enabled          bool   `json:"enabled"`
	Root             string `json:"root"`
	DebounceMillis   int    `json:"debounce_ms"`
	ReindexInterval  int    `json:"reindex_interval_minutes"`
	ReindexOwnerOnly string `json:"reindex_owner_only,omitempty"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text, json
	Output string `json:"output"` // console, file, both
	File   string `json:"file,omitempty"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultIndexPath := filepath.Join(homeDir, ".shareloft", "search.bleve")

	return &Config{
		Server: ServerConfig{
			Addr:         ":8090",
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Database: DatabaseConfig{
			DSN:            "",
			MaxConnections: 10,
			ConnectTimeout: 30,
		},
		Index: IndexConfig{
			Path:           defaultIndexPath,
			DefaultResults: 50,
			MaxResults:     1000,
			CacheSize:      1000,
			CacheTTL:       900,
		},
		Watch: WatchConfig{
			Enabled:         false,
			Root:            "",
			DebounceMillis:  500,
			ReindexInterval: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
	}
}

// LoadConfig loads configuration from file with environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// SaveToFile writes the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// applyEnvironmentOverrides applies SHARELOFT_* environment variables
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("SHARELOFT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SHARELOFT_ADMIN_SECRET_HASH"); v != "" {
		c.Server.AdminSecretHash = v
	}
	if v := os.Getenv("SHARELOFT_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SHARELOFT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("SHARELOFT_WATCH_ROOT"); v != "" {
		c.Watch.Root = v
		c.Watch.Enabled = true
	}
	if v := os.Getenv("SHARELOFT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SHARELOFT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SHARELOFT_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxResults = n
		}
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Index.Path == "" {
		return fmt.Errorf("index.path must not be empty")
	}
	if c.Index.DefaultResults <= 0 {
		return fmt.Errorf("index.default_results must be positive, got %d", c.Index.DefaultResults)
	}
	if c.Index.MaxResults < c.Index.DefaultResults {
		return fmt.Errorf("index.max_results (%d) must be >= index.default_results (%d)",
			c.Index.MaxResults, c.Index.DefaultResults)
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database.max_connections must be positive, got %d", c.Database.MaxConnections)
	}
	if c.Watch.Enabled && c.Watch.Root == "" {
		return fmt.Errorf("watch.root must be set when watch.enabled is true")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
