package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(filepath.Join(tmpDir, "advisor.yaml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(tmpDir, "outputs"), cfg.OutputDir)
	assert.Equal(t, ProviderGoogle, cfg.Model.Provider)
	assert.Equal(t, DefaultGoogleModel, cfg.Model.Name)
	assert.Equal(t, 3, cfg.Elicitation.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.PollInterval)
}

func TestLoadPartialFileFillsFallbacks(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "advisor.yaml")

	data := `
output_dir: /tmp/adv-out
model:
  provider: anthropic
pipeline:
  poll_interval: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/adv-out", cfg.OutputDir)
	assert.Equal(t, DefaultAnthropicModel, cfg.Model.Name)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.Model.APIKeyEnv)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.StageTimeout)
}

func TestLoadRejectsBadProvider(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "advisor.yaml")

	require.NoError(t, os.WriteFile(path, []byte("model:\n  provider: cohere\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model provider")
}

func TestValidateBounds(t *testing.T) {
	cfg := Default(t.TempDir())

	cfg.Pipeline.PollInterval = 100 * time.Millisecond
	assert.Error(t, cfg.Validate())

	cfg = Default(t.TempDir())
	cfg.Pipeline.StageTimeout = time.Second
	assert.Error(t, cfg.Validate())

	cfg = Default(t.TempDir())
	cfg.OutputDir = ""
	assert.Error(t, cfg.Validate())
}
