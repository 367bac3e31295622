// Package config loads service configuration from a JSON file with
// environment variable substitution and overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// LLMConfig selects the model backend for plan execution and
// classification.
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// EditorConfig selects the mutation backend. When RemoteURL is empty
// the in-process store-backed engine is used.
type EditorConfig struct {
	RemoteURL string `json:"remote_url,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr    string       `json:"listen_addr"`
	DBPath        string       `json:"db_path"`
	APIToken      string       `json:"api_token,omitempty"`
	PrometheusURL string       `json:"prometheus_url,omitempty"`
	LLM           LLMConfig    `json:"llm"`
	Editor        EditorConfig `json:"editor"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig loads and validates configuration from a JSON file with
// environment variable substitution.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace environment variable placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	var config Config
	if err := json.Unmarshal([]byte(dataStr), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// DefaultConfig returns a config with defaults applied and environment
// overrides read, for running without a config file.
func DefaultConfig() (*Config, error) {
	config := &Config{}
	applyEnvOverrides(config)
	applyDefaults(config)
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	overrides := map[string]*string{
		"CHARTSMITH_LISTEN_ADDR":    &config.ListenAddr,
		"CHARTSMITH_DB_PATH":        &config.DBPath,
		"CHARTSMITH_API_TOKEN":      &config.APIToken,
		"CHARTSMITH_PROMETHEUS_URL": &config.PrometheusURL,
		"CHARTSMITH_LLM_PROVIDER":   &config.LLM.Provider,
		"CHARTSMITH_LLM_API_KEY":    &config.LLM.APIKey,
		"CHARTSMITH_LLM_MODEL":      &config.LLM.Model,
		"CHARTSMITH_EDITOR_URL":     &config.Editor.RemoteURL,
		"CHARTSMITH_EDITOR_TOKEN":   &config.Editor.Token,
	}
	for envKey, target := range overrides {
		if value := os.Getenv(envKey); value != "" {
			*target = value
		}
	}

	// Provider API key conventions take effect when no explicit key is set.
	if config.LLM.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			config.LLM.APIKey = key
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			config.LLM.APIKey = key
		}
	}
}

func applyDefaults(config *Config) {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8090"
	}
	if config.DBPath == "" {
		config.DBPath = "chartsmith.db"
	}
	if config.LLM.Provider == "" {
		config.LLM.Provider = "anthropic"
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "claude-sonnet-4-20250514"
	}
}

func validateConfig(config *Config) error {
	if config.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if config.DBPath == "" {
		return fmt.Errorf("db_path cannot be empty")
	}
	switch config.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", config.LLM.Provider)
	}
	return nil
}
