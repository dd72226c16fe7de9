package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete seqstore configuration.
//
// This structure captures all configurable aspects of a seqstore process:
//   - Logging configuration
//   - Store roots and directory-race retry policy
//   - Metrics endpoint
//   - Forwarder, its sink and its cursor (type-specific)
//   - Retention of delivered units
//   - Extra roots reported by the registry
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (SEQSTORE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Sink and cursor configuration follow the type-section pattern: the Type
// field selects an implementation and only the section of the same name is
// decoded by the factories.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Store locates the temp and store roots
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Forwarder drains the store into a sink
	Forwarder ForwarderConfig `mapstructure:"forwarder" yaml:"forwarder"`

	// Retention removes delivered units after a maximum age
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`

	// Registry lists additional roots to report on
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`
}

// StoreConfig locates the store on disk.
//
// TempDir and StoreDir are resolved against Root unless they are absolute.
// Both must end up on the same volume.
type StoreConfig struct {
	// Root is the base directory of the store
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// TempDir holds in-progress sessions (wiped on startup)
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir" validate:"required"`

	// StoreDir holds committed units
	StoreDir string `mapstructure:"store_dir" yaml:"store_dir" validate:"required,nefield=TempDir"`

	// MaxDirRetries bounds directory-race retries per file operation
	MaxDirRetries int `mapstructure:"max_dir_retries" yaml:"max_dir_retries" validate:"gte=1"`

	// RetryBackoff caps the delay between directory-race retries
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" validate:"gt=0"`
}

// TempPath returns the resolved temp root.
func (c *StoreConfig) TempPath() string {
	return resolveDir(c.Root, c.TempDir)
}

// StorePath returns the resolved store root.
func (c *StoreConfig) StorePath() string {
	return resolveDir(c.Root, c.StoreDir)
}

func resolveDir(root, dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on Prometheus collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics and /healthz
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// ForwarderConfig configures the forwarder.
type ForwarderConfig struct {
	// Enabled starts the forwarder with the process
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// RateLimit is the maximum number of units forwarded per second (0 = unlimited)
	RateLimit uint `mapstructure:"rate_limit" yaml:"rate_limit"`

	// Burst is the number of units that may be forwarded back to back
	Burst uint `mapstructure:"burst" yaml:"burst"`

	// DeleteAfterForward removes units from the store once delivered
	DeleteAfterForward bool `mapstructure:"delete_after_forward" yaml:"delete_after_forward"`

	// MaxAttempts bounds sink attempts per unit
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1"`

	// RetryBackoff caps the delay between sink attempts
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff" validate:"gt=0"`

	// Sink selects and configures the destination
	Sink SinkConfig `mapstructure:"sink" yaml:"sink"`

	// Cursor selects and configures progress persistence
	Cursor CursorConfig `mapstructure:"cursor" yaml:"cursor"`
}

// SinkConfig specifies the forwarder destination.
//
// The Type field determines which sink implementation is used.
// Only the corresponding type-specific configuration section is used.
type SinkConfig struct {
	// Type specifies which sink implementation to use
	// Valid values: filesystem, s3, memory
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem s3 memory"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// CursorConfig specifies where forwarding progress is persisted.
type CursorConfig struct {
	// Type specifies which cursor implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// RetentionConfig configures the garbage collector.
//
// With the forwarder enabled only units at or below its cursor are
// collected. Without it, every unit older than MaxAge is.
type RetentionConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	MaxAge    time.Duration `mapstructure:"max_age" yaml:"max_age" validate:"gt=0"`
	BatchSize int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gte=1"`
	DryRun    bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

// RegistryConfig lists roots reported in addition to the store's own.
type RegistryConfig struct {
	Roots []RootConfig `mapstructure:"roots" yaml:"roots" validate:"dive"`
}

// RootConfig is a named directory.
type RootConfig struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SEQSTORE_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so SEQSTORE_* variables apply even when the
// key is absent from the config file (AutomaticEnv alone only affects keys
// viper already knows about).
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"store.root",
	"store.temp_dir",
	"store.store_dir",
	"store.max_dir_retries",
	"store.retry_backoff",
	"metrics.enabled",
	"metrics.port",
	"forwarder.enabled",
	"forwarder.rate_limit",
	"forwarder.burst",
	"forwarder.delete_after_forward",
	"forwarder.max_attempts",
	"forwarder.retry_backoff",
	"forwarder.sink.type",
	"forwarder.cursor.type",
	"retention.enabled",
	"retention.interval",
	"retention.max_age",
	"retention.batch_size",
	"retention.dry_run",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use SEQSTORE_ prefix and underscores
	// Example: SEQSTORE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("SEQSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/seqstore/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated the same way
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "seqstore")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "seqstore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
