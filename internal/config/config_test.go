package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "Drafter", cfg.Name)
	assert.Equal(t, 12, cfg.Advisor.SuggestionTurnWindow)
	assert.Equal(t, 16, cfg.Advisor.SuggestionCap)
	assert.NotEmpty(t, cfg.Advisor.OnboardingNotice)

	timeout, err := cfg.LLMTimeout()
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, timeout)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".drafter"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".drafter", "config.yaml"), []byte(`
llm:
  model: advisor-mini
  timeout: 30s
advisor:
  suggestion_turn_window: 3
`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "advisor-mini", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Advisor.SuggestionTurnWindow)
	// Untouched fields keep defaults.
	assert.Equal(t, 16, cfg.Advisor.SuggestionCap)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("DRAFTER_API_KEY", "env-key")
	t.Setenv("DRAFTER_MODEL", "advisor-env")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "advisor-env", cfg.LLM.Model)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Advisor.SuggestionTurnWindow = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LLM.Timeout = "not-a-duration"
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".drafter"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".drafter", "config.yaml"), []byte("llm: ["), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
