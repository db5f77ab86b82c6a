package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Server ServerConfig `json:"server"`
	AI     AIConfig     `json:"ai"`
}

type ServerConfig struct {
	Port               int `json:"port"`
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec"`
}

type AIConfig struct {
	Model                string  `json:"model"`
	PromptSlot           string  `json:"prompt_slot"`
	NarrateTemperature   float64 `json:"narrate_temperature"`
	StructureTemperature float64 `json:"structure_temperature"`
	NarrationPreviewMax  int     `json:"narration_preview_max"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

// APIKey reads the model credential from the environment. The config file
// never stores it.
func APIKey() string {
	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:               8080,
			ShutdownTimeoutSec: 5,
		},
		AI: AIConfig{
			Model:                "gpt-4.1-mini",
			PromptSlot:           "AI_Tasks",
			NarrateTemperature:   0.7,
			StructureTemperature: 0.2,
			NarrationPreviewMax:  500,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeoutSec <= 0 {
		cfg.Server.ShutdownTimeoutSec = 5
	}
	if strings.TrimSpace(cfg.AI.Model) == "" {
		cfg.AI.Model = "gpt-4.1-mini"
	}
	if strings.TrimSpace(cfg.AI.PromptSlot) == "" {
		cfg.AI.PromptSlot = "AI_Tasks"
	}
	if cfg.AI.NarrateTemperature <= 0 || cfg.AI.NarrateTemperature > 2 {
		cfg.AI.NarrateTemperature = 0.7
	}
	if cfg.AI.StructureTemperature <= 0 || cfg.AI.StructureTemperature > 2 {
		cfg.AI.StructureTemperature = 0.2
	}
	if cfg.AI.NarrationPreviewMax <= 0 {
		cfg.AI.NarrationPreviewMax = 500
	}
}
