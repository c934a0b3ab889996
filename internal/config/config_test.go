package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Agent.MaxRounds != 15 {
		t.Errorf("MaxRounds = %d, want 15", cfg.Agent.MaxRounds)
	}
	if cfg.Memory.Strategy != "full" {
		t.Errorf("Strategy = %q, want full", cfg.Memory.Strategy)
	}
	if cfg.KubeconfigPath() != "uploads/config" {
		t.Errorf("KubeconfigPath = %q", cfg.KubeconfigPath())
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9999"
agent:
  model: openai/gpt-4o
  max_rounds: 5
memory:
  strategy: sliding_window
  max_messages: 20
session:
  expiry: 1h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Agent.Model != "openai/gpt-4o" {
		t.Errorf("Model = %q", cfg.Agent.Model)
	}
	if cfg.Agent.MaxRounds != 5 {
		t.Errorf("MaxRounds = %d", cfg.Agent.MaxRounds)
	}
	if cfg.Session.Expiry != Duration(time.Hour) {
		t.Errorf("Expiry = %v", cfg.Session.Expiry)
	}
	// Untouched values keep their defaults.
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("MaxTokens = %d, want default 4096", cfg.Agent.MaxTokens)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  max_rounds: 5
`)
	t.Setenv("KUBESAGE_MAX_ROUNDS", "25")
	t.Setenv("KUBESAGE_MODEL", "cerebras/gpt-oss-120b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxRounds != 25 {
		t.Errorf("MaxRounds = %d, want env override 25", cfg.Agent.MaxRounds)
	}
	if cfg.Agent.Model != "cerebras/gpt-oss-120b" {
		t.Errorf("Model = %q", cfg.Agent.Model)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad strategy", "memory:\n  strategy: ring\n", "memory.strategy"},
		{"bad store", "session:\n  store: redis\n", "session.store"},
		{"zero rounds", "agent:\n  max_rounds: 0\n", "max_rounds"},
		{"postgres without dsn", "session:\n  store: postgres\n", "not set"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load succeeded for a missing file")
	}
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	t.Setenv("KUBESAGE_API_KEY", "secret")
	if cfg.APIKey() != "secret" {
		t.Errorf("APIKey = %q", cfg.APIKey())
	}
}
