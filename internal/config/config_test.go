package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	envVars := []string{
		"FOREMAN_PORT", "FOREMAN_METRICS_PORT", "FOREMAN_ADMIN_TOKEN",
		"FOREMAN_DATABASE_URL", "FOREMAN_HERMES_URL", "FOREMAN_EXECUTOR_URL",
		"FOREMAN_EXECUTOR_TOKEN", "FOREMAN_SCAFFOLD_URL",
		"FOREMAN_PROFILES_PROJECT_DIR", "FOREMAN_PROFILES_USER_DIR",
		"FOREMAN_PROFILES_SYSTEM_DIR", "FOREMAN_MAX_CONCURRENT",
		"FOREMAN_AUTO_OPEN_THRESHOLD", "FOREMAN_LOG_LEVEL",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8700 {
		t.Errorf("expected port 8700, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected metrics port 8701, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Hermes.URL != "nats://localhost:4222" {
		t.Errorf("expected nats URL, got %s", cfg.Hermes.URL)
	}
	if cfg.Executor.URL != "http://localhost:8710" {
		t.Errorf("expected executor URL, got %s", cfg.Executor.URL)
	}
	if cfg.Dispatch.MaxConcurrent != 5 {
		t.Errorf("expected max concurrent 5, got %d", cfg.Dispatch.MaxConcurrent)
	}
	if cfg.Ticketing.AutoOpenItemThreshold != 3 {
		t.Errorf("expected auto-open threshold 3, got %d", cfg.Ticketing.AutoOpenItemThreshold)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected log format 'json', got '%s'", cfg.Logging.Format)
	}

	w := cfg.Scoring.Weights
	sum := w.Verb + w.Volume + w.Scope + w.Coordination
	if math.Abs(sum-1.0) > 0.001 {
		t.Errorf("scoring weights sum to %f, expected 1.0", sum)
	}
	if w.Verb != 0.30 || w.Volume != 0.20 || w.Scope != 0.25 || w.Coordination != 0.25 {
		t.Errorf("unexpected default weights: %+v", w)
	}

	b := cfg.Scoring.Brackets
	if b.Trivial != 20 || b.Simple != 40 || b.Moderate != 60 || b.Complex != 80 {
		t.Errorf("unexpected bracket bounds: %+v", b)
	}

	if len(cfg.Resources.Tiers) != 4 {
		t.Fatalf("expected 4 resource tiers, got %d", len(cfg.Resources.Tiers))
	}
	if cfg.Resources.Tiers[0].Name != "lightweight" || cfg.Resources.Tiers[3].Name != "advanced" {
		t.Errorf("unexpected tier ordering: %+v", cfg.Resources.Tiers)
	}
	if cfg.Resources.Tiers[0].MaxOutputTokens >= cfg.Resources.Tiers[3].MaxOutputTokens {
		t.Error("output ceilings must grow with capability")
	}

	if _, ok := cfg.Enforcement.AllowLists["engineer"]; !ok {
		t.Error("expected default allow-list for engineer")
	}

	if cfg.ExecutorTimeout() != 2*time.Minute {
		t.Errorf("expected executor timeout 2m, got %v", cfg.ExecutorTimeout())
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FOREMAN_PORT", "9100")
	t.Setenv("FOREMAN_METRICS_PORT", "9101")
	t.Setenv("FOREMAN_ADMIN_TOKEN", "secret-token")
	t.Setenv("FOREMAN_DATABASE_URL", "postgres://localhost/foreman_test")
	t.Setenv("FOREMAN_HERMES_URL", "nats://nats:4222")
	t.Setenv("FOREMAN_EXECUTOR_URL", "http://executor:8710")
	t.Setenv("FOREMAN_MAX_CONCURRENT", "8")
	t.Setenv("FOREMAN_AUTO_OPEN_THRESHOLD", "5")
	t.Setenv("FOREMAN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 9101 {
		t.Errorf("expected metrics port 9101, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.AdminToken != "secret-token" {
		t.Errorf("expected admin token 'secret-token', got '%s'", cfg.Server.AdminToken)
	}
	if cfg.Database.URL != "postgres://localhost/foreman_test" {
		t.Errorf("expected database URL, got '%s'", cfg.Database.URL)
	}
	if cfg.Hermes.URL != "nats://nats:4222" {
		t.Errorf("expected hermes URL, got '%s'", cfg.Hermes.URL)
	}
	if cfg.Executor.URL != "http://executor:8710" {
		t.Errorf("expected executor URL, got '%s'", cfg.Executor.URL)
	}
	if cfg.Dispatch.MaxConcurrent != 8 {
		t.Errorf("expected max concurrent 8, got %d", cfg.Dispatch.MaxConcurrent)
	}
	if cfg.Ticketing.AutoOpenItemThreshold != 5 {
		t.Errorf("expected auto-open threshold 5, got %d", cfg.Ticketing.AutoOpenItemThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.yaml")
	data := []byte(`
server:
  port: 9200
scoring:
  brackets:
    trivial: 25
    simple: 45
    moderate: 65
    complex: 85
dispatch:
  max_concurrent: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Errorf("expected port 9200, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.Brackets.Complex != 85 {
		t.Errorf("expected complex bound 85, got %d", cfg.Scoring.Brackets.Complex)
	}
	if cfg.Dispatch.MaxConcurrent != 2 {
		t.Errorf("expected max concurrent 2, got %d", cfg.Dispatch.MaxConcurrent)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "foreman.yaml")
	data := []byte(`
scoring:
  weights:
    verb: 0.9
    volume: 0.9
    scope: 0.1
    coordination: 0.1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for weights not summing to 1.0")
	}
}
