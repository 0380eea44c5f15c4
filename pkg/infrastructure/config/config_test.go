package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Server.Addr != ":8090" {
		t.Errorf("expected default addr :8090, got %s", cfg.Server.Addr)
	}
	if cfg.Index.DefaultResults != 50 {
		t.Errorf("expected 50 default results, got %d", cfg.Index.DefaultResults)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"server": {"addr": ":9000", "read_timeout_seconds": 10, "write_timeout_seconds": 20},
		"index": {"path": "/tmp/test.bleve", "default_results": 25, "max_results": 200, "cache_size": 10, "cache_ttl_seconds": 60},
		"database": {"max_connections": 5, "connect_timeout_seconds": 5},
		"logging": {"level": "debug", "format": "json", "output": "console"}
	}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %s", cfg.Server.Addr)
	}
	if cfg.Index.DefaultResults != 25 {
		t.Errorf("expected 25 default results, got %d", cfg.Index.DefaultResults)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SHARELOFT_ADDR", ":7777")
	t.Setenv("SHARELOFT_LOG_LEVEL", "error")
	t.Setenv("SHARELOFT_MAX_RESULTS", "2500")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Addr != ":7777" {
		t.Errorf("expected env override :7777, got %s", cfg.Server.Addr)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected env override error, got %s", cfg.Logging.Level)
	}
	if cfg.Index.MaxResults != 2500 {
		t.Errorf("expected env override 2500, got %d", cfg.Index.MaxResults)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty index path", func(c *Config) { c.Index.Path = "" }},
		{"zero default results", func(c *Config) { c.Index.DefaultResults = 0 }},
		{"max below default", func(c *Config) { c.Index.MaxResults = 1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"watch without root", func(c *Config) { c.Watch.Enabled = true; c.Watch.Root = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":8123"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Server.Addr != ":8123" {
		t.Errorf("expected :8123 after reload, got %s", loaded.Server.Addr)
	}
}
