// Package config loads Drafter configuration from .drafter/config.yaml with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Drafter configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Advisory model endpoint
	LLM LLMConfig `yaml:"llm"`

	// Advisory chat behavior
	Advisor AdvisorConfig `yaml:"advisor"`

	// Transcript persistence
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the streaming advisory endpoint.
type LLMConfig struct {
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	BaseURL          string `yaml:"base_url"`
	Timeout          string `yaml:"timeout"`
	StreamingTimeout string `yaml:"streaming_timeout"`
}

// AdvisorConfig configures the advisory chat engine.
type AdvisorConfig struct {
	// How many prior suggestion-bearing turns contribute to the offered list.
	SuggestionTurnWindow int `yaml:"suggestion_turn_window"`

	// Upper bound on the combined suggestion list.
	SuggestionCap int `yaml:"suggestion_cap"`

	// Text of the one-time notice shown while the user's app is still
	// being generated. Empty disables the notice.
	OnboardingNotice string `yaml:"onboarding_notice"`
}

// StorageConfig configures the SQLite transcript store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "Drafter",
		Version: "0.3.0",

		LLM: LLMConfig{
			BaseURL:          "https://api.drafter.dev/v1",
			Model:            "advisor-large",
			Timeout:          "120s",
			StreamingTimeout: "300s",
		},

		Advisor: AdvisorConfig{
			SuggestionTurnWindow: 12,
			SuggestionCap:        16,
			OnboardingNotice:     "Your app is still being generated. You can keep chatting here while it builds.",
		},

		Storage: StorageConfig{
			DatabasePath: filepath.Join(".drafter", "transcripts.db"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads config from the workspace's .drafter/config.yaml, merged over
// defaults and under environment overrides. A missing file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".drafter", "config.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DRAFTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("DRAFTER_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("DRAFTER_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("DRAFTER_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Advisor.SuggestionTurnWindow < 0 {
		return fmt.Errorf("advisor.suggestion_turn_window must be >= 0, got %d", c.Advisor.SuggestionTurnWindow)
	}
	if c.Advisor.SuggestionCap < 0 {
		return fmt.Errorf("advisor.suggestion_cap must be >= 0, got %d", c.Advisor.SuggestionCap)
	}
	if _, err := c.LLMTimeout(); err != nil {
		return err
	}
	if _, err := c.StreamingTimeout(); err != nil {
		return err
	}
	return nil
}

// LLMTimeout parses the request timeout.
func (c *Config) LLMTimeout() (time.Duration, error) {
	return parseTimeout("llm.timeout", c.LLM.Timeout)
}

// StreamingTimeout parses the streaming timeout.
func (c *Config) StreamingTimeout() (time.Duration, error) {
	return parseTimeout("llm.streaming_timeout", c.LLM.StreamingTimeout)
}

func parseTimeout(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}
