package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config
	configContent := `
logging:
  level: "INFO"

metadata:
  type: "memory"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.ObjectStore.Type != "memory" {
		t.Errorf("Expected default object store type 'memory', got %q", cfg.ObjectStore.Type)
	}
	if cfg.Plans.Default != DefaultPlanID {
		t.Errorf("Expected default plan %q, got %q", DefaultPlanID, cfg.Plans.Default)
	}
	if cfg.AccessCodes.TTL != 24*time.Hour {
		t.Errorf("Expected default access code TTL 24h, got %v", cfg.AccessCodes.TTL)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "debug"
  format: "json"

metadata:
  type: "badger"
  badger:
    path: "/tmp/cubby-test-metadata"

object_store:
  type: "s3"
  s3:
    bucket: "cubby-objects"
    region: "eu-west-1"

plans:
  default: "free"
  definitions:
    free:
      storage_limit: 1073741824
    pro:
      storage_limit: 0
  assignments:
    user-carol: "pro"

access_codes:
  ttl: "1h"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Levels are normalized to upper case
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected metadata type 'badger', got %q", cfg.Metadata.Type)
	}
	if cfg.Plans.Definitions["free"].StorageLimit != 1<<30 {
		t.Errorf("Expected free plan limit 1GiB, got %d", cfg.Plans.Definitions["free"].StorageLimit)
	}
	if cfg.Plans.Assignments["user-carol"] != "pro" {
		t.Errorf("Expected user-carol assigned to 'pro', got %q", cfg.Plans.Assignments["user-carol"])
	}
	if cfg.AccessCodes.TTL != time.Hour {
		t.Errorf("Expected access code TTL 1h, got %v", cfg.AccessCodes.TTL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("logging: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
metadata:
  type: "postgres"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for unknown metadata type")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("Expected validation error, got: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	if !strings.HasSuffix(path, filepath.Join("cubby", "config.yaml")) {
		t.Errorf("Expected default path to end with cubby/config.yaml, got %q", path)
	}
}
