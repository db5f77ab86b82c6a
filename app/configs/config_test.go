package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.json")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.AI.Model != "gpt-4.1-mini" || cfg.AI.PromptSlot != "AI_Tasks" {
		t.Fatalf("unexpected AI defaults: %+v", cfg.AI)
	}
	if cfg.AI.NarrateTemperature != 0.7 || cfg.AI.StructureTemperature != 0.2 {
		t.Fatalf("unexpected temperature defaults: %+v", cfg.AI)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
}

func TestNewManagerLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"server":{"port":9090},"ai":{"model":"gpt-4.1"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Server.Port != 9090 {
		t.Fatalf("file value not loaded: %d", cfg.Server.Port)
	}
	if cfg.AI.Model != "gpt-4.1" {
		t.Fatalf("file value not loaded: %s", cfg.AI.Model)
	}
	// Unset fields fall back to defaults.
	if cfg.AI.PromptSlot != "AI_Tasks" || cfg.AI.NarrationPreviewMax != 500 {
		t.Fatalf("defaults not applied to unset fields: %+v", cfg.AI)
	}
}

func TestNewManagerRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	if _, err := NewManager(path); err == nil {
		t.Fatal("expected error for invalid config file")
	}
}

func TestUpdatePersistsAndReappliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("new manager failed: %v", err)
	}

	updated, err := mgr.Update(func(cfg *Config) {
		cfg.Server.Port = 9191
		cfg.AI.NarrateTemperature = -1
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Server.Port != 9191 {
		t.Fatalf("update not applied: %d", updated.Server.Port)
	}
	if updated.AI.NarrateTemperature != 0.7 {
		t.Fatalf("out-of-range temperature should reset to default: %f", updated.AI.NarrateTemperature)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Get().Server.Port != 9191 {
		t.Fatalf("update not persisted: %d", reloaded.Get().Server.Port)
	}
}

func TestAPIKeyComesFromEnvironment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "  sk-test-123  ")
	if got := APIKey(); got != "sk-test-123" {
		t.Fatalf("unexpected api key: %q", got)
	}

	t.Setenv("OPENAI_API_KEY", "")
	if got := APIKey(); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}
