package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// ConfigPath returns the path to the config file.
// RELAYCLAW_CONFIG overrides the default ~/.relayclaw/config.json.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("RELAYCLAW_CONFIG")); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".relayclaw", "config.json"), nil
}

// Load reads configuration with priority: env > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	// If file doesn't exist, continue with defaults

	// Override with environment variables for each group
	envconfig.Process("RELAYCLAW_PATHS", &cfg.Paths)
	envconfig.Process("RELAYCLAW_ASSISTANT", &cfg.Assistant)
	envconfig.Process("RELAYCLAW_OPENAI", &cfg.OpenAI)
	envconfig.Process("RELAYCLAW_CHANNELS_SLACK", &cfg.Channels.Slack)
	envconfig.Process("RELAYCLAW_CHANNELS_KAFKA", &cfg.Channels.Kafka)
	envconfig.Process("RELAYCLAW_SCHEDULER", &cfg.Scheduler)

	// Fallback for API key
	if cfg.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.OpenAI.APIKey = key
		} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
			cfg.OpenAI.APIKey = key
		}
	}

	// Expand ~ in paths
	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				*p = filepath.Join(home, strings.TrimPrefix(*p, "~"))
			}
		}
	}
	expandHome(&cfg.Paths.StateDir)
	expandHome(&cfg.Paths.TaskDB)

	return cfg, nil
}

// Save writes the config to disk, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
