package config

import (
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"ORACLE_CONFIG", "ENVIRONMENT", "ORACLE_ENVIRONMENT", "AUTO_RESPOND", "AUTO_REMEDIATE", "SESSION_TIMEOUT_MINUTES"} {
		t.Setenv(key, "")
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Engine.Binary != "claude" || cfg.Engine.MaxTurns != 15 {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Sessions.Timeout != 30*time.Minute || cfg.Approval.Timeout != 5*time.Minute {
		t.Fatalf("unexpected timeouts: session=%s approval=%s", cfg.Sessions.Timeout, cfg.Approval.Timeout)
	}
	if !cfg.Behavior.AutoRespond || cfg.Behavior.AutoRemediate {
		t.Fatalf("unexpected behavior defaults %+v", cfg.Behavior)
	}
	if math.Abs(cfg.Budgets.RemediationAnalysis-0.05) > 1e-9 || math.Abs(cfg.Budgets.RemediationExecution-0.10) > 1e-9 {
		t.Fatalf("unexpected remediation budgets %+v", cfg.Budgets)
	}
	if !cfg.Engine.AllowEditTools() {
		t.Fatalf("edit tools must be allowed outside prod")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oracle.yaml")
	body := []byte(`
server:
  address: ":7000"
engine:
  model: test-model
  environment: prod
behavior:
  autoRemediate: true
timeouts:
  diagnostics: 45s
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("AUTO_REMEDIATE", "false")
	t.Setenv("CODEBASE_PATH", "/srv/infra")
	t.Setenv("SESSION_TIMEOUT_MINUTES", "10")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Address != ":7000" || cfg.Engine.Model != "test-model" {
		t.Fatalf("file values not applied: %s %s", cfg.Server.Address, cfg.Engine.Model)
	}
	if cfg.Engine.AllowEditTools() {
		t.Fatalf("edit tools must be denied in prod")
	}
	if cfg.Behavior.AutoRemediate {
		t.Fatalf("env must win over file")
	}
	if cfg.Engine.CodebasePath != "/srv/infra" || cfg.Sessions.Timeout != 10*time.Minute {
		t.Fatalf("env overrides not applied: %s %s", cfg.Engine.CodebasePath, cfg.Sessions.Timeout)
	}
	if cfg.Timeouts.Diagnostics != 45*time.Second || cfg.Timeouts.Remediation != 120*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg.Timeouts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateRejectsNonPositiveBudgets(t *testing.T) {
	cfg := Default()
	cfg.Budgets.Conversation = 0
	cfg.Timeouts.Task = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, field := range []string{"budgets.conversation", "timeouts.task"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected %s in %v", field, err)
		}
	}
}

func TestAccessIsAdmin(t *testing.T) {
	access := AccessConfig{Admins: []string{"alice", " Bob "}}
	for user, want := range map[string]bool{"bob": true, "alice": true, "mallory": false, "": false} {
		if got := access.IsAdmin(user); got != want {
			t.Fatalf("IsAdmin(%q) = %v, want %v", user, got, want)
		}
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("ORACLE_VALKEY_ADDR", "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "oracle.example.yaml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}

	if cfg.Engine.Environment != "prod" {
		t.Fatalf("unexpected environment %q", cfg.Engine.Environment)
	}
	if !slices.Equal(cfg.Access.Admins, []string{"oncall-lead"}) {
		t.Fatalf("unexpected admins %q", cfg.Access.Admins)
	}
	if cfg.Intake.Valkey.Addr != "" || cfg.Intake.Valkey.Timeout != 500*time.Millisecond {
		t.Fatalf("unexpected valkey config %+v", cfg.Intake.Valkey)
	}
}
