package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.Datadog.Site != "us5" {
		t.Errorf("expected default site us5, got %s", cfg.Datadog.Site)
	}
	if cfg.Datadog.Query != "status:(error OR warn)" {
		t.Errorf("unexpected default query %q", cfg.Datadog.Query)
	}
	if cfg.Workflow.MaxWorkers != 50 {
		t.Errorf("expected max_workers 50, got %d", cfg.Workflow.MaxWorkers)
	}
	if cfg.Workflow.MaxIterations != 20 {
		t.Errorf("expected max_iterations 20, got %d", cfg.Workflow.MaxIterations)
	}
	if cfg.Workflow.MaxHandoffs != 15 {
		t.Errorf("expected max_handoffs 15, got %d", cfg.Workflow.MaxHandoffs)
	}
	if cfg.Workflow.ExecutionTimeout != 15*time.Minute {
		t.Errorf("expected execution_timeout 15m, got %v", cfg.Workflow.ExecutionTimeout)
	}
	if cfg.Workflow.NodeTimeout != 5*time.Minute {
		t.Errorf("expected node_timeout 5m, got %v", cfg.Workflow.NodeTimeout)
	}
	if cfg.Workflow.TicketSeverity != "medium" {
		t.Errorf("expected ticket_severity medium, got %s", cfg.Workflow.TicketSeverity)
	}
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.Store.Path != "data/vigla.db" {
		t.Errorf("expected store path data/vigla.db, got %s", cfg.Store.Path)
	}
	if !cfg.Web.Enabled {
		t.Error("expected web enabled by default")
	}
	if cfg.Scheduler.Schedule != "0 8 * * *" {
		t.Errorf("expected schedule 0 8 * * *, got %s", cfg.Scheduler.Schedule)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	// Point config to a non-existent file so we use defaults
	t.Setenv("VIGLA_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("DATADOG_API_KEY", "dd-key-123")
	t.Setenv("SERVICENOW_INSTANCE_URL", "https://dev.service-now.example")
	t.Setenv("VIGLA_WEB_PASSWORD", "secret")
	t.Setenv("VIGLA_WEB_PORT", "9090")
	t.Setenv("VIGLA_MAX_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Datadog.APIKey != "dd-key-123" {
		t.Errorf("expected datadog key dd-key-123, got %s", cfg.Datadog.APIKey)
	}
	if cfg.ServiceNow.InstanceURL != "https://dev.service-now.example" {
		t.Errorf("unexpected servicenow url %s", cfg.ServiceNow.InstanceURL)
	}
	if cfg.Web.Auth != "secret" {
		t.Errorf("expected web auth secret, got %s", cfg.Web.Auth)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if cfg.Workflow.MaxWorkers != 8 {
		t.Errorf("expected max_workers 8, got %d", cfg.Workflow.MaxWorkers)
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
datadog:
  site: "eu"
  query: "status:error"
workflow:
  window_from: "now-4h"
  max_workers: 10
web:
  port: 3000
  enabled: false
scheduler:
  schedule: "@every 6h"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIGLA_CONFIG", cfgPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Datadog.Site != "eu" {
		t.Errorf("expected site eu, got %s", cfg.Datadog.Site)
	}
	if cfg.Workflow.WindowFrom != "now-4h" {
		t.Errorf("expected window_from now-4h, got %s", cfg.Workflow.WindowFrom)
	}
	if cfg.Workflow.MaxWorkers != 10 {
		t.Errorf("expected max_workers 10, got %d", cfg.Workflow.MaxWorkers)
	}
	if cfg.Web.Enabled {
		t.Error("expected web disabled")
	}
	if cfg.Web.Port != 3000 {
		t.Errorf("expected web port 3000, got %d", cfg.Web.Port)
	}
	// Defaults untouched by the partial file
	if cfg.Workflow.MaxIterations != 20 {
		t.Errorf("expected max_iterations 20, got %d", cfg.Workflow.MaxIterations)
	}
}

func TestLoadExpandsEnvInYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
datadog:
  api_key: "${TEST_DD_KEY}"
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIGLA_CONFIG", cfgPath)
	t.Setenv("TEST_DD_KEY", "expanded-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Datadog.APIKey != "expanded-key" {
		t.Errorf("expected expanded key, got %s", cfg.Datadog.APIKey)
	}
}

func TestResolveSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Datadog.APIKey = "secret:datadog_api_key"
	cfg.ServiceNow.Password = "secret:missing"
	cfg.Telegram.Token = "literal-token"

	cfg.ResolveSecrets(func(name string) (string, bool) {
		if name == "datadog_api_key" {
			return "resolved-key", true
		}
		return "", false
	})

	if cfg.Datadog.APIKey != "resolved-key" {
		t.Errorf("expected resolved-key, got %s", cfg.Datadog.APIKey)
	}
	if cfg.ServiceNow.Password != "" {
		t.Errorf("unresolvable reference must be cleared, got %q", cfg.ServiceNow.Password)
	}
	if cfg.Telegram.Token != "literal-token" {
		t.Errorf("literal credential must pass through, got %q", cfg.Telegram.Token)
	}
}
