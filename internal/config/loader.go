package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name under the user home.
	ConfigDir = ".leash"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the user config file.
// LEASH_CONFIG overrides the full path; LEASH_HOME overrides the base dir.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("LEASH_CONFIG")); explicit != "" {
		return expandTilde(explicit)
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("LEASH_HOME")); h != "" {
		return expandTilde(h)
	}
	return os.UserHomeDir()
}

func expandTilde(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}

// Load builds the effective configuration.
// Priority: environment > file > defaults.
// Environment parse failures for a group leave that group at its prior
// value; a tier with an unusable configuration fails closed on its own.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // use defaults if the config path cannot be resolved
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	_ = envconfig.Process("LEASH_PATHS", &cfg.Paths)
	_ = envconfig.Process("LEASH_HANDSOFF", &cfg.HandsOff)
	_ = envconfig.Process("LEASH_TELEGRAM", &cfg.Telegram)
	_ = envconfig.Process("LEASH_JUDGE", &cfg.Judge)
	_ = envconfig.Process("LEASH_AUDIT", &cfg.Audit)

	// Fallback for the judge API key.
	if cfg.Judge.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Judge.APIKey = key
		}
	}

	expandHome := func(p *string) {
		if strings.HasPrefix(*p, "~") {
			if expanded, err := expandTilde(*p); err == nil {
				*p = expanded
			}
		}
	}
	expandHome(&cfg.Paths.StateDir)
	expandHome(&cfg.Paths.ProjectRules)
	expandHome(&cfg.Paths.LocalRules)

	if cfg.Paths.LocalRules == "" {
		if home, err := resolveHomeDir(); err == nil {
			cfg.Paths.LocalRules = filepath.Join(home, ConfigDir, "rules.local.yaml")
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Telegram.OnTimeout)) {
	case "deny":
		cfg.Telegram.OnTimeout = "deny"
	default:
		cfg.Telegram.OnTimeout = "ask"
	}

	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
