package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pricehub API configuration.
type Config struct {
	HTTP    HTTPConfig     `yaml:"http"`
	Search  SearchConfig   `yaml:"search"`
	Cache   CacheConfig    `yaml:"cache"`
	Vendors []VendorConfig `yaml:"vendors"`
	Logging LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds search orchestration settings.
type SearchConfig struct {
	VendorTimeoutSec  int `yaml:"vendor_timeout_sec"`  // per-vendor deadline
	RetentionSec      int `yaml:"retention_sec"`       // finalized record retention
	DefaultMaxResults int `yaml:"default_max_results"` // per vendor
	MaxMaxResults     int `yaml:"max_max_results"`     // cap on caller-supplied bound
	SubscriberBuffer  int `yaml:"subscriber_buffer"`   // live events buffered per subscriber
	HeartbeatSec      int `yaml:"heartbeat_sec"`       // SSE keep-alive interval
}

// CacheConfig holds the optional vendor result cache settings. The cache
// is disabled when no addresses are configured.
type CacheConfig struct {
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	TTLSec    int      `yaml:"ttl_sec"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// Enabled reports whether a cache store is configured.
func (c CacheConfig) Enabled() bool { return len(c.Addrs) > 0 }

// VendorConfig describes one vendor and its search API endpoint.
type VendorConfig struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	SearchURL string `yaml:"search_url"` // JSON search endpoint
	Country   string `yaml:"country"`
	Currency  string `yaml:"currency"`
	Active    *bool  `yaml:"active"` // default true
}

// IsActive returns the active flag, defaulting to true when unset.
func (v VendorConfig) IsActive() bool {
	return v.Active == nil || *v.Active
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.VendorTimeoutSec <= 0 {
		c.Search.VendorTimeoutSec = 30
	}
	if c.Search.RetentionSec <= 0 {
		c.Search.RetentionSec = 300
	}
	if c.Search.DefaultMaxResults <= 0 {
		c.Search.DefaultMaxResults = 50
	}
	if c.Search.MaxMaxResults <= 0 {
		c.Search.MaxMaxResults = 100
	}
	if c.Search.SubscriberBuffer <= 0 {
		c.Search.SubscriberBuffer = 64
	}
	if c.Search.HeartbeatSec <= 0 {
		c.Search.HeartbeatSec = 15
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 600
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "pricehub:"
	}
	for i := range c.Vendors {
		if c.Vendors[i].Currency == "" {
			c.Vendors[i].Currency = "GTQ"
		}
		if c.Vendors[i].Country == "" {
			c.Vendors[i].Country = "GT"
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.DefaultMaxResults > c.Search.MaxMaxResults {
		return fmt.Errorf(
			"search.default_max_results (%d) exceeds search.max_max_results (%d)",
			c.Search.DefaultMaxResults, c.Search.MaxMaxResults,
		)
	}
	seen := make(map[string]bool, len(c.Vendors))
	for i, v := range c.Vendors {
		if v.ID == "" {
			return fmt.Errorf("vendors[%d].id is required", i)
		}
		if seen[v.ID] {
			return fmt.Errorf("vendors[%d]: duplicate vendor id %q", i, v.ID)
		}
		seen[v.ID] = true
		if v.SearchURL == "" {
			return fmt.Errorf("vendors[%d] (%s): search_url is required", i, v.ID)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
