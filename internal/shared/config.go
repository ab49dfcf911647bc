package shared

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const gigabyte = 1 << 30

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Cache    CacheConfig    `toml:"cache"`
	Sync     SyncConfig     `toml:"sync"`
	Votes    VotesConfig    `toml:"votes"`
	Bus      BusConfig      `toml:"bus"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// CacheConfig contains content store settings.
type CacheConfig struct {
	Root      string  `toml:"root"`
	BudgetGB  float64 `toml:"budget_gb"`
	MinFreeGB float64 `toml:"min_free_gb"`
}

// SyncConfig contains catalog and download pipeline settings.
type SyncConfig struct {
	RedirectURL   string   `toml:"redirect_url"`
	ClientVersion string   `toml:"client_version"`
	Interval      Duration `toml:"interval"`
	LowDiskRetry  Duration `toml:"low_disk_retry"`
	BackoffBase   Duration `toml:"backoff_base"`
	BackoffMax    Duration `toml:"backoff_max"`
	SaveLists     bool     `toml:"save_lists"`
}

// VotesConfig contains voting endpoint settings.
type VotesConfig struct {
	URL       string  `toml:"url"`
	RateLimit float64 `toml:"rate_limit"`
	Workers   int     `toml:"workers"`
}

// BusConfig contains event bus settings.
type BusConfig struct {
	Transport    string   `toml:"transport"` // "redis" or "memory"
	RedisAddr    string   `toml:"redis_addr"`
	Prefix       string   `toml:"prefix"`
	QueryTimeout Duration `toml:"query_timeout"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains status HTTP server settings.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from TOML strings like "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// BudgetBytes returns the cache budget in bytes.
func (c CacheConfig) BudgetBytes() int64 {
	return int64(c.BudgetGB * gigabyte)
}

// MinFreeBytes returns the free disk space required to keep downloading.
func (c CacheConfig) MinFreeBytes() int64 {
	return int64(c.MinFreeGB * gigabyte)
}

// ExpandedRoot resolves a leading "~" in the cache root.
func (c CacheConfig) ExpandedRoot() string {
	return expandHome(c.Root)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks ranges the engine depends on.
func (c *Config) Validate() error {
	if c.Cache.BudgetGB <= 0 {
		return fmt.Errorf("%w: cache.budget_gb must be positive", ErrInvalidConfig)
	}
	if c.Sync.BackoffBase.Duration <= 0 || c.Sync.BackoffMax.Duration < c.Sync.BackoffBase.Duration {
		return fmt.Errorf("%w: sync.backoff_base must be positive and not exceed sync.backoff_max", ErrInvalidConfig)
	}
	switch c.Bus.Transport {
	case "redis", "memory":
	default:
		return fmt.Errorf("%w: bus.transport %q", ErrInvalidConfig, c.Bus.Transport)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func expandHome(p string) string {
	if len(p) == 0 || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
