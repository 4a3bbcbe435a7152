package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a garra installation.
type Config struct {
	Version       int    `yaml:"version"`
	QueueDB       string `yaml:"queue_db,omitempty"`       // Task queue database path
	SessionsDB    string `yaml:"sessions_db,omitempty"`    // Conversation store database path
	WorkDir       string `yaml:"work_dir,omitempty"`       // Base dir for per-task workspaces
	Manifest      string `yaml:"manifest,omitempty"`       // Agent manifest path
	Workers       int    `yaml:"workers,omitempty"`        // Worker pool size (0 = default 2)
	MaxRecoveries int    `yaml:"max_recoveries,omitempty"` // Recovery budget per task (0 = default 3)
	LLM           LLM    `yaml:"llm"`
}

// LLM describes the OpenAI-compatible endpoint the agent talks to.
type LLM struct {
	APIBase     string  `yaml:"api_base"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"` // Env var name containing the API key
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	TimeoutSec  int     `yaml:"timeout_sec,omitempty"` // Request timeout in seconds (0 = default 120)
}

// APIKey resolves the key from the configured environment variable.
// Keys never live in the config file itself.
func (l LLM) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// DefaultTimeout returns the effective request timeout for the endpoint.
func (l LLM) DefaultTimeout() int {
	if l.TimeoutSec > 0 {
		return l.TimeoutSec
	}
	return 120
}

// EffectiveWorkers returns the worker pool size with the default applied.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 2
}

// EffectiveMaxRecoveries returns the per-task recovery budget.
func (c *Config) EffectiveMaxRecoveries() int {
	if c.MaxRecoveries > 0 {
		return c.MaxRecoveries
	}
	return 3
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config pointing at a local
// OpenAI-compatible endpoint.
func DefaultConfig() *Config {
	return &Config{
		Version:    1,
		QueueDB:    "queue.db",
		SessionsDB: "sessions.db",
		WorkDir:    "processing",
		Manifest:   "manifest.yaml",
		LLM: LLM{
			APIBase:     "http://localhost:1234/v1",
			APIKeyEnv:   "GARRA_API_KEY",
			Model:       "qwen2.5-32b-instruct",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
	}
}

func (c *Config) validate() error {
	if c.LLM.APIBase == "" {
		return fmt.Errorf("llm.api_base is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.MaxRecoveries < 0 {
		return fmt.Errorf("max_recoveries must not be negative, got %d", c.MaxRecoveries)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	return nil
}
