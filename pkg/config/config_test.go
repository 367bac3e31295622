package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": ":9000",
		"db_path": "/tmp/test.db",
		"llm": {"provider": "openai", "model": "gpt-4o", "api_key": "sk-test"}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" || cfg.DBPath != "/tmp/test.db" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("listen_addr = %s, want default", cfg.ListenAddr)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("provider = %s, want default anthropic", cfg.LLM.Provider)
	}
}

func TestLoadConfigEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CHART_DB", "/data/charts.db")
	path := writeConfig(t, `{"db_path": "${TEST_CHART_DB}"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/data/charts.db" {
		t.Errorf("db_path = %s, want substituted value", cfg.DBPath)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CHARTSMITH_LISTEN_ADDR", ":7777")
	path := writeConfig(t, `{"listen_addr": ":9000"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("listen_addr = %s, env override must win", cfg.ListenAddr)
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, `{"llm": {"provider": "mystery"}}`)

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected validation error for unknown provider")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
