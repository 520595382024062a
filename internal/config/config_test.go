package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Workers != 4 {
		t.Fatalf("workers=%d want=4", cfg.Engine.Workers)
	}
	if cfg.Engine.LearningDelay != 7*24*time.Hour {
		t.Fatalf("learning_delay=%s want=168h", cfg.Engine.LearningDelay)
	}
	if cfg.Engine.EmergencySpendFloor != 500 {
		t.Fatalf("emergency_spend_floor=%v want=500", cfg.Engine.EmergencySpendFloor)
	}
	if cfg.Approval.BudgetChangePct != 25 {
		t.Fatalf("budget_change_pct=%v want=25", cfg.Approval.BudgetChangePct)
	}
	if cfg.Platforms.Mode != "dry_run" {
		t.Fatalf("platforms.mode=%q want=dry_run", cfg.Platforms.Mode)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AP_ENGINE_WORKERS", "9")
	t.Setenv("AP_PLATFORMS_MODE", "http")
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Workers != 9 {
		t.Fatalf("workers=%d want=9", cfg.Engine.Workers)
	}
	if cfg.Platforms.Mode != "http" {
		t.Fatalf("platforms.mode=%q want=http", cfg.Platforms.Mode)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
engine:
  workers: 2
guardrails:
  rules:
    - name: max_cpa
      threshold: 40
      operator: "<="
      risk_level: medium
      alert_required: true
platforms:
  mode: http
  endpoints:
    google_ads: http://localhost:9000/google
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Workers != 2 {
		t.Fatalf("workers=%d want=2", cfg.Engine.Workers)
	}
	if len(cfg.Guardrail.Rules) != 1 || cfg.Guardrail.Rules[0].Operator != "<=" {
		t.Fatalf("rules=%+v", cfg.Guardrail.Rules)
	}
	if cfg.Platforms.Endpoints["google_ads"] != "http://localhost:9000/google" {
		t.Fatalf("endpoints=%v", cfg.Platforms.Endpoints)
	}
	if cfg.Engine.PollInterval != time.Second {
		t.Fatalf("poll_interval=%s want default 1s", cfg.Engine.PollInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), false); err == nil {
		t.Fatalf("err=nil want missing file error")
	}
}
