package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  url: postgres://localhost/newsletter\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Delivery.ConcurrentTasks != 10 {
		t.Errorf("ConcurrentTasks = %d, want 10", cfg.Delivery.ConcurrentTasks)
	}
	if cfg.Delivery.MaxRetryAttempts != 5 {
		t.Errorf("MaxRetryAttempts = %d, want 5", cfg.Delivery.MaxRetryAttempts)
	}
	if cfg.Delivery.RetryBackoffMinutes != 5 {
		t.Errorf("RetryBackoffMinutes = %d, want 5", cfg.Delivery.RetryBackoffMinutes)
	}
	if cfg.Delivery.EmptyQueueSleepSeconds != 10 {
		t.Errorf("EmptyQueueSleepSeconds = %d, want 10", cfg.Delivery.EmptyQueueSleepSeconds)
	}
	if cfg.Delivery.ErrorSleepSeconds != 1 {
		t.Errorf("ErrorSleepSeconds = %d, want 1", cfg.Delivery.ErrorSleepSeconds)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("Retention.Days = %d, want 30", cfg.Retention.Days)
	}
	if cfg.Retention.SweepIntervalHours != 24 {
		t.Errorf("SweepIntervalHours = %d, want 24", cfg.Retention.SweepIntervalHours)
	}
	if cfg.Database.AcquireTimeoutSeconds != 2 {
		t.Errorf("AcquireTimeoutSeconds = %d, want 2", cfg.Database.AcquireTimeoutSeconds)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
delivery:
  concurrent_tasks: 3
  max_retry_attempts: 2
retention:
  days: 7
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Delivery.ConcurrentTasks != 3 {
		t.Errorf("ConcurrentTasks = %d, want 3", cfg.Delivery.ConcurrentTasks)
	}
	if cfg.Retention.Days != 7 {
		t.Errorf("Retention.Days = %d, want 7", cfg.Retention.Days)
	}
}

func TestLoadFromEnvDatabaseURL(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("DATABASE_URL", "postgres://env-host/newsletter")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("LoadFromEnv() error: %v", err)
	}
	if cfg.Database.URL != "postgres://env-host/newsletter" {
		t.Errorf("Database.URL = %q, want env override", cfg.Database.URL)
	}
}
