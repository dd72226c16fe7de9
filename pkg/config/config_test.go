package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "debug"

store:
  root: "` + filepath.ToSlash(tmpDir) + `"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if got, want := cfg.Store.TempPath(), filepath.Join(tmpDir, "temp"); got != want {
		t.Errorf("Expected temp path %q, got %q", want, got)
	}
	if got, want := cfg.Store.StorePath(), filepath.Join(tmpDir, "store"); got != want {
		t.Errorf("Expected store path %q, got %q", want, got)
	}
	if cfg.Forwarder.Cursor.Type != "badger" {
		t.Errorf("Expected default cursor type 'badger', got %q", cfg.Forwarder.Cursor.Type)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Use a non-existent path so the user's ~/.config/seqstore is not read
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Forwarder.Sink.Type != "filesystem" {
		t.Errorf("Expected default sink type 'filesystem', got %q", cfg.Forwarder.Sink.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
forwarder:
  sink:
    type: "ftp"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown sink type")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("SEQSTORE_LOGGING_LEVEL", "WARN")
	t.Setenv("SEQSTORE_STORE_ROOT", tmpDir)
	t.Setenv("SEQSTORE_FORWARDER_RATE_LIMIT", "25")
	t.Setenv("SEQSTORE_STORE_RETRY_BACKOFF", "200ms")

	cfg, err := Load(filepath.Join(tmpDir, "missing.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected env level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Store.Root != tmpDir {
		t.Errorf("Expected env root %q, got %q", tmpDir, cfg.Store.Root)
	}
	if cfg.Forwarder.RateLimit != 25 {
		t.Errorf("Expected env rate limit 25, got %d", cfg.Forwarder.RateLimit)
	}
	if cfg.Store.RetryBackoff != 200*time.Millisecond {
		t.Errorf("Expected env retry backoff 200ms, got %v", cfg.Store.RetryBackoff)
	}
}

func TestLoad_TypeSections(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
store:
  root: "` + filepath.ToSlash(tmpDir) + `"
  temp_dir: "/abs/temp"
forwarder:
  enabled: true
  sink:
    type: "s3"
    s3:
      bucket: "units"
      region: "eu-west-1"
      endpoint: "http://localhost:9000"
  cursor:
    type: "memory"
registry:
  roots:
    - name: "archive"
      path: "/var/lib/archive"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Store.TempPath() != filepath.Clean("/abs/temp") {
		t.Errorf("Absolute temp_dir should be kept, got %q", cfg.Store.TempPath())
	}
	if cfg.Forwarder.Sink.S3["bucket"] != "units" {
		t.Errorf("Expected s3 bucket 'units', got %v", cfg.Forwarder.Sink.S3["bucket"])
	}
	if cfg.Forwarder.Sink.S3["key_prefix"] != "seqstore/" {
		t.Errorf("Expected default key prefix, got %v", cfg.Forwarder.Sink.S3["key_prefix"])
	}
	if len(cfg.Registry.Roots) != 1 || cfg.Registry.Roots[0].Name != "archive" {
		t.Errorf("Expected one 'archive' root, got %+v", cfg.Registry.Roots)
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := GetConfigDir(); got != filepath.Join("/xdg", "seqstore") {
		t.Errorf("Expected XDG config dir, got %q", got)
	}
	if got := GetDefaultConfigPath(); got != filepath.Join("/xdg", "seqstore", "config.yaml") {
		t.Errorf("Expected default path under XDG dir, got %q", got)
	}
}
