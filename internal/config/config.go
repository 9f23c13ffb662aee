package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the costdex synchronizer configuration.
type Config struct {
	Provider    ProviderConfig    `yaml:"provider"`
	Database    DatabaseConfig    `yaml:"database"`
	Index       IndexConfig       `yaml:"index"`
	Sync        SyncConfig        `yaml:"sync"`
	Adjustments AdjustmentsConfig `yaml:"adjustments"`
	Forecast    ForecastConfig    `yaml:"forecast"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ProviderConfig holds metering API settings.
type ProviderConfig struct {
	BaseURL           string      `yaml:"base_url"`
	APIKey            string      `yaml:"api_key"`
	OrganizationID    string      `yaml:"organization_id"`
	RequestTimeoutSec int         `yaml:"request_timeout_sec"`
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig holds the backoff policy for rate-limited or timed-out requests.
type RetryConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms"`
}

// DatabaseConfig holds destination datastore connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds destination index settings.
type IndexConfig struct {
	Name      string `yaml:"name"`
	KeyPrefix string `yaml:"key_prefix"`
	BatchSize int    `yaml:"batch_size"`
}

// SyncConfig holds the incremental sync window settings.
type SyncConfig struct {
	LookbackDays      int `yaml:"lookback_days"`
	ChunkHours        int `yaml:"chunk_hours"`
	FinalityMarginMin int `yaml:"finality_margin_min"`
}

// AdjustmentsConfig declares credit purchases and overage charges to index
// alongside fetched usage.
type AdjustmentsConfig struct {
	Purchases []Adjustment `yaml:"purchases"`
	Overages  []Adjustment `yaml:"overages"`
}

// Adjustment is one credit purchase or overage charge on a given day.
type Adjustment struct {
	Date    string  `yaml:"date"` // YYYY-MM-DD
	Credits float64 `yaml:"credits"`
}

// Day parses the adjustment date.
func (a Adjustment) Day() (time.Time, error) {
	t, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid adjustment date %q: %w", a.Date, err)
	}
	return t, nil
}

// ForecastConfig holds consumption forecast settings.
type ForecastConfig struct {
	Enabled      bool `yaml:"enabled"`
	LookbackDays int  `yaml:"lookback_days"`
	HorizonDays  int  `yaml:"horizon_days"`
}

// MetricsConfig holds Prometheus exposition settings for the run.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads configuration from the given YAML file path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
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

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Provider.RequestTimeoutSec <= 0 {
		c.Provider.RequestTimeoutSec = 30
	}
	if c.Provider.Retry.MaxRetries <= 0 {
		c.Provider.Retry.MaxRetries = 5
	}
	if c.Provider.Retry.InitialBackoffMS <= 0 {
		c.Provider.Retry.InitialBackoffMS = 500
	}
	if c.Provider.Retry.MaxBackoffMS <= 0 {
		c.Provider.Retry.MaxBackoffMS = 30_000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "cloud-costs"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "costdex:"
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 100
	}
	if c.Sync.LookbackDays <= 0 {
		c.Sync.LookbackDays = 30
	}
	if c.Sync.ChunkHours <= 0 {
		c.Sync.ChunkHours = 24
	}
	if c.Sync.FinalityMarginMin <= 0 {
		c.Sync.FinalityMarginMin = 60
	}
	if c.Forecast.LookbackDays <= 0 {
		c.Forecast.LookbackDays = 7
	}
	if c.Forecast.HorizonDays <= 0 {
		c.Forecast.HorizonDays = 90
	}
	if c.Metrics.Port <= 0 {
		c.Metrics.Port = 9090
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required")
	}
	if c.Provider.OrganizationID == "" {
		return fmt.Errorf("provider.organization_id is required")
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "valkey", "redis":
		// ok
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	if !isValidIndexName(c.Index.Name) {
		return fmt.Errorf("index.name contains invalid characters: %q", c.Index.Name)
	}
	if c.Sync.LookbackDays > 365 {
		return fmt.Errorf("sync.lookback_days must be at most 365, got %d", c.Sync.LookbackDays)
	}
	for _, a := range append(append([]Adjustment{}, c.Adjustments.Purchases...), c.Adjustments.Overages...) {
		if _, err := a.Day(); err != nil {
			return err
		}
		if a.Credits < 0 {
			return fmt.Errorf("adjustment credits must be non-negative, got %f on %s", a.Credits, a.Date)
		}
	}
	return nil
}

func isValidIndexName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != '-' {
			return false
		}
	}
	return true
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
