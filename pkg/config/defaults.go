package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Sink and cursor specific defaults are handled by the factories
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyMetricsDefaults(&cfg.Metrics)
	applyForwarderDefaults(&cfg.Forwarder, &cfg.Store)
	applyRetentionDefaults(&cfg.Retention)

	if cfg.Registry.Roots == nil {
		cfg.Registry.Roots = []RootConfig{}
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStoreDefaults sets store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Root == "" {
		cfg.Root = filepath.Join(os.TempDir(), "seqstore")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "temp"
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = "store"
	}
	if cfg.MaxDirRetries == 0 {
		cfg.MaxDirRetries = store.DefaultMaxDirRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = store.DefaultRetryBackoff
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyForwarderDefaults sets forwarder, sink and cursor defaults.
func applyForwarderDefaults(cfg *ForwarderConfig, storeCfg *StoreConfig) {
	// Enabled and DeleteAfterForward default to false
	// RateLimit defaults to 0 (unlimited)

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = forward.DefaultMaxAttempts
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = forward.DefaultRetryBackoff
	}

	if cfg.Sink.Type == "" {
		cfg.Sink.Type = "filesystem"
	}
	if cfg.Sink.Filesystem == nil {
		cfg.Sink.Filesystem = make(map[string]any)
	}
	if cfg.Sink.S3 == nil {
		cfg.Sink.S3 = make(map[string]any)
	}

	// Apply defaults for all sink types (for config file generation)
	if _, ok := cfg.Sink.Filesystem["path"]; !ok {
		cfg.Sink.Filesystem["path"] = filepath.Join(storeCfg.Root, "forwarded")
	}
	if _, ok := cfg.Sink.S3["region"]; !ok {
		cfg.Sink.S3["region"] = "us-east-1"
	}
	if _, ok := cfg.Sink.S3["key_prefix"]; !ok {
		cfg.Sink.S3["key_prefix"] = "seqstore/"
	}

	if cfg.Cursor.Type == "" {
		cfg.Cursor.Type = "badger"
	}
	if cfg.Cursor.Badger == nil {
		cfg.Cursor.Badger = make(map[string]any)
	}
	if _, ok := cfg.Cursor.Badger["db_path"]; !ok {
		cfg.Cursor.Badger["db_path"] = filepath.Join(storeCfg.Root, "cursor")
	}
	if _, ok := cfg.Cursor.Badger["name"]; !ok {
		cfg.Cursor.Badger["name"] = "default"
	}
}

// applyRetentionDefaults sets garbage collector defaults.
func applyRetentionDefaults(cfg *RetentionConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
