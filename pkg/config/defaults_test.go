package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/seqstore/pkg/forward"
	"github.com/marmos91/seqstore/pkg/store"
)

func TestApplyDefaults_Empty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Store.TempDir != "temp" || cfg.Store.StoreDir != "store" {
		t.Errorf("Unexpected store dirs: %+v", cfg.Store)
	}
	if cfg.Store.MaxDirRetries != store.DefaultMaxDirRetries {
		t.Errorf("Expected %d dir retries, got %d", store.DefaultMaxDirRetries, cfg.Store.MaxDirRetries)
	}
	if cfg.Store.RetryBackoff != store.DefaultRetryBackoff {
		t.Errorf("Expected %v retry backoff, got %v", store.DefaultRetryBackoff, cfg.Store.RetryBackoff)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics should be disabled by default")
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Forwarder.Enabled {
		t.Error("Forwarder should be disabled by default")
	}
	if cfg.Forwarder.MaxAttempts != forward.DefaultMaxAttempts {
		t.Errorf("Expected %d attempts, got %d", forward.DefaultMaxAttempts, cfg.Forwarder.MaxAttempts)
	}
	if cfg.Retention.Enabled || cfg.Retention.MaxAge != 24*time.Hour || cfg.Retention.BatchSize != 1000 {
		t.Errorf("Unexpected retention defaults: %+v", cfg.Retention)
	}
	if cfg.Registry.Roots == nil {
		t.Error("Registry roots should be initialized")
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", Output: "stderr"},
		Store: StoreConfig{
			Root:          "/data",
			TempDir:       "t",
			StoreDir:      "s",
			MaxDirRetries: 9,
			RetryBackoff:  time.Second,
		},
		Forwarder: ForwarderConfig{
			MaxAttempts: 2,
			Sink: SinkConfig{
				Type:       "filesystem",
				Filesystem: map[string]any{"path": "/elsewhere"},
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected normalized 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Explicit logging values overwritten: %+v", cfg.Logging)
	}
	if cfg.Store.MaxDirRetries != 9 || cfg.Store.RetryBackoff != time.Second {
		t.Errorf("Explicit store values overwritten: %+v", cfg.Store)
	}
	if cfg.Forwarder.MaxAttempts != 2 {
		t.Errorf("Explicit attempts overwritten: %d", cfg.Forwarder.MaxAttempts)
	}
	if cfg.Forwarder.Sink.Filesystem["path"] != "/elsewhere" {
		t.Errorf("Explicit sink path overwritten: %v", cfg.Forwarder.Sink.Filesystem["path"])
	}
}

func TestApplyDefaults_PathsFollowRoot(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Root: "/srv/seq"}}
	ApplyDefaults(cfg)

	if got := cfg.Forwarder.Sink.Filesystem["path"]; got != filepath.Join("/srv/seq", "forwarded") {
		t.Errorf("Unexpected default sink path %v", got)
	}
	if got := cfg.Forwarder.Cursor.Badger["db_path"]; got != filepath.Join("/srv/seq", "cursor") {
		t.Errorf("Unexpected default cursor path %v", got)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
}
