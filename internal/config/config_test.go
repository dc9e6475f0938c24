package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RELAYCLAW_CONFIG", path)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAYCLAW_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.Name != "RelayClaw" {
		t.Errorf("assistant name = %q", cfg.Assistant.Name)
	}
	if cfg.Scheduler.PollInterval != 60*time.Second {
		t.Errorf("poll interval = %v", cfg.Scheduler.PollInterval)
	}
	if !cfg.Scheduler.Enabled {
		t.Error("scheduler disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	writeConfigFile(t, `{"assistant":{"name":"Ops Bot"},"openai":{"apiKey":"file-key","model":"gpt-4o"}}`)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.Name != "Ops Bot" {
		t.Errorf("assistant name = %q", cfg.Assistant.Name)
	}
	if cfg.OpenAI.APIKey != "file-key" || cfg.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai = %+v", cfg.OpenAI)
	}
	// Untouched sections keep their defaults.
	if cfg.OpenAI.APIBase != "https://api.openai.com/v1" {
		t.Errorf("api base = %q", cfg.OpenAI.APIBase)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	writeConfigFile(t, `{"assistant":{"name":"File Bot"}}`)
	t.Setenv("RELAYCLAW_ASSISTANT_NAME", "Env Bot")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.Name != "Env Bot" {
		t.Errorf("assistant name = %q, want env value", cfg.Assistant.Name)
	}
}

func TestAPIKeyFallback(t *testing.T) {
	t.Setenv("RELAYCLAW_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "router-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "router-key" {
		t.Errorf("api key = %q, want OPENROUTER_API_KEY fallback", cfg.OpenAI.APIKey)
	}
}

func TestHomeExpansion(t *testing.T) {
	writeConfigFile(t, `{"paths":{"stateDir":"~/relaystate","taskDb":"~/relaystate/tasks.db"}}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if cfg.Paths.StateDir != filepath.Join(home, "relaystate") {
		t.Errorf("state dir = %q", cfg.Paths.StateDir)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	t.Setenv("RELAYCLAW_CONFIG", filepath.Join(t.TempDir(), "nested", "config.json"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg := DefaultConfig()
	cfg.Assistant.Name = "Saved Bot"
	cfg.Channels.Kafka.Brokers = "broker-1:9092,broker-2:9092"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Assistant.Name != "Saved Bot" {
		t.Errorf("assistant name = %q", loaded.Assistant.Name)
	}
	if loaded.Channels.Kafka.Brokers != "broker-1:9092,broker-2:9092" {
		t.Errorf("brokers = %q", loaded.Channels.Kafka.Brokers)
	}
}
