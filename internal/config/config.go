package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Provider   ProviderConfig   `yaml:"provider"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Policy     PolicyConfig     `yaml:"policy"`
	Output     OutputConfig     `yaml:"output"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// DatabaseConfig contains database settings for the sync ledger
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ProviderConfig selects the remote provider.
// Only the SQLite-backed sandbox provider is built in.
type ProviderConfig struct {
	SandboxPath string `yaml:"sandbox_path"`
}

// ResourcesConfig contains the location of declarative resource files
type ResourcesConfig struct {
	Dir string `yaml:"dir"` // files live in <dir>/<kind>/*.yaml
}

// ReconcilerConfig contains reconciler settings
type ReconcilerConfig struct {
	RateLimitRPS  float64  `yaml:"rate_limit_rps"`
	WatchInterval Duration `yaml:"watch_interval"`
}

// LedgerConfig contains sync ledger settings
type LedgerConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// PolicyConfig contains the optional sync guard script
type PolicyConfig struct {
	Script string `yaml:"script"`
}

// OutputConfig contains diff report settings
type OutputConfig struct {
	Colors bool `yaml:"colors"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
// Load starts from it, so keys a file sets explicitly win, including zeros:
// rate_limit_rps 0 disables throttling and retention_days 0 disables pruning.
func Default() *Config {
	cfg := &Config{
		Log:    LogConfig{Colors: true},
		Output: OutputConfig{Colors: true},
		Reconciler: ReconcilerConfig{
			RateLimitRPS:  10.0, // 10 requests per second
			WatchInterval: Duration(5 * time.Minute),
		},
		Ledger: LedgerConfig{RetentionDays: 30},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in empty strings
func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./cloudsync.sqlite"
	}
	if c.Provider.SandboxPath == "" {
		c.Provider.SandboxPath = "./sandbox.sqlite"
	}
	if c.Resources.Dir == "" {
		c.Resources.Dir = "./resources"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Database.Path == "" || c.Provider.SandboxPath == "" || c.Resources.Dir == "" {
		return errors.New("database.path, provider.sandbox_path and resources.dir are required")
	}
	if c.Reconciler.RateLimitRPS < 0 {
		return errors.New("reconciler.rate_limit_rps must not be negative")
	}
	if c.Reconciler.WatchInterval < 0 {
		return errors.New("reconciler.watch_interval must not be negative")
	}
	if c.Ledger.RetentionDays < 0 {
		return errors.New("ledger.retention_days must not be negative")
	}
	return nil
}

// Retention returns the ledger retention as a duration
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
