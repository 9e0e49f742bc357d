package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chatgate/chatgate/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatgate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-test
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8080 {
		t.Errorf("server = %s:%d, want 0.0.0.0:8080", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "chatgate.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Billing.Provider != "none" {
		t.Errorf("billing provider = %q, want none", cfg.Billing.Provider)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics path = %q", cfg.Metrics.Path)
	}
}

func TestLoad_DefaultPlanTable(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-test
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Plans) != 4 {
		t.Fatalf("len(Plans) = %d, want 4", len(cfg.Plans))
	}
	free := cfg.Plans[0]
	if free.ID != "FREE" || free.MessagesPerMonth != 20 {
		t.Errorf("first plan = %+v, want FREE with 20 messages", free)
	}
	for _, p := range cfg.Plans[1:] {
		if p.MessagesPerMonth != -1 {
			t.Errorf("plan %s MessagesPerMonth = %d, want unlimited", p.ID, p.MessagesPerMonth)
		}
	}
}

func TestLoad_ExplicitPlansReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-test
plans:
  - id: FREE
    name: Free
    messages_per_month: 5
    allowed_models: [gpt-3.5-turbo]
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Plans) != 1 {
		t.Fatalf("len(Plans) = %d, want 1", len(cfg.Plans))
	}
	if cfg.Plans[0].MessagesPerMonth != 5 {
		t.Errorf("MessagesPerMonth = %d, want 5", cfg.Plans[0].MessagesPerMonth)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHATGATE_SERVER_PORT", "9090")
	t.Setenv("CHATGATE_OWNER_EMAIL", "owner@example.com")
	t.Setenv("CHATGATE_LOG_LEVEL", "debug")

	path := writeConfig(t, `
server:
  port: 8080
openai:
  api_key: sk-test
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want env override 9090", cfg.Server.Port)
	}
	if cfg.Owner.Email != "owner@example.com" {
		t.Errorf("Owner.Email = %q", cfg.Owner.Email)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad provider",
			yaml: `
billing:
  provider: paypal
`,
		},
		{
			name: "lemonsqueezy without credentials",
			yaml: `
billing:
  provider: lemonsqueezy
`,
		},
		{
			name: "stripe without secret key",
			yaml: `
billing:
  provider: stripe
`,
		},
		{
			name: "duplicate plan ids",
			yaml: `
plans:
  - id: FREE
    messages_per_month: 20
  - id: FREE
    messages_per_month: 30
`,
		},
		{
			name: "plan without id",
			yaml: `
plans:
  - name: Mystery
    messages_per_month: 20
`,
		},
		{
			name: "quota below sentinel",
			yaml: `
plans:
  - id: FREE
    messages_per_month: -2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := config.Load(path); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}

func TestLoadWithFallback_EnvOnly(t *testing.T) {
	t.Setenv("CHATGATE_OPENAI_API_KEY", "sk-env")

	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-env" {
		t.Errorf("APIKey = %q, want sk-env", cfg.OpenAI.APIKey)
	}
}

func TestLoadWithFallback_NoConfig(t *testing.T) {
	t.Setenv("CHATGATE_OPENAI_API_KEY", "")

	if _, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadWithFallback succeeded with no config source")
	}
}
