package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Cache.BudgetGB != 2.0 {
			t.Errorf("expected budget 2 GB, got %v", config.Cache.BudgetGB)
		}

		if config.Sync.BackoffBase.Duration != 10*time.Minute {
			t.Errorf("expected backoff base 10m, got %v", config.Sync.BackoffBase.Duration)
		}

		if config.Sync.BackoffMax.Duration != 24*time.Hour {
			t.Errorf("expected backoff max 24h, got %v", config.Sync.BackoffMax.Duration)
		}

		if config.Sync.Interval.Duration != time.Hour {
			t.Errorf("expected sync interval 1h, got %v", config.Sync.Interval.Duration)
		}

		if config.Bus.QueryTimeout.Duration != 2*time.Second {
			t.Errorf("expected query timeout 2s, got %v", config.Bus.QueryTimeout.Duration)
		}

		if config.Bus.Prefix != "org.electricsheep." {
			t.Errorf("expected bus prefix org.electricsheep., got %s", config.Bus.Prefix)
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("BudgetBytes", func(t *testing.T) {
		c := CacheConfig{BudgetGB: 1.5, MinFreeGB: 1}
		if got := c.BudgetBytes(); got != 3<<29 {
			t.Errorf("expected %d, got %d", int64(3<<29), got)
		}
		if got := c.MinFreeBytes(); got != 1<<30 {
			t.Errorf("expected %d, got %d", int64(1<<30), got)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nested", "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Database.Path != defaultConfig.Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[cache]
root = "/var/lib/sheepd"
budget_gb = 5

[sync]
interval = "30m"
backoff_base = "1m"
backoff_max = "1h"

[bus]
transport = "memory"

[database]
path = "/custom/path.db"

[server]
enabled = true
port = 8080
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}

		if config.Server.Port != 8080 || !config.Server.Enabled {
			t.Errorf("expected enabled server on port 8080, got %+v", config.Server)
		}

		if config.Sync.Interval.Duration != 30*time.Minute {
			t.Errorf("expected interval 30m, got %v", config.Sync.Interval.Duration)
		}

		if config.Bus.Transport != "memory" {
			t.Errorf("expected memory transport, got %s", config.Bus.Transport)
		}

		if config.Votes.URL != DefaultConfig().Votes.URL {
			t.Errorf("unset values should keep defaults, got votes url %q", config.Votes.URL)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		tc := []struct {
			name string
			body string
		}{
			{name: "bad duration", body: "[sync]\ninterval = \"soon\"\n"},
			{name: "zero budget", body: "[cache]\nbudget_gb = 0\n"},
			{name: "inverted backoff", body: "[sync]\nbackoff_base = \"2h\"\nbackoff_max = \"1h\"\n"},
			{name: "unknown transport", body: "[bus]\ntransport = \"carrier-pigeon\"\n"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				configPath := filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(configPath, []byte(tt.body), 0644); err != nil {
					t.Fatalf("failed to write test config: %v", err)
				}
				if _, err := LoadConfig(configPath); err == nil {
					t.Fatal("expected error")
				}
			})
		}
	})

	t.Run("Validate wraps ErrInvalidConfig", func(t *testing.T) {
		config := DefaultConfig()
		config.Cache.BudgetGB = -1
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
