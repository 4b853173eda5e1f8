// Package config provides configuration loading and validation for the
// advisory workflow coordinator.
//
// The Config value is loaded once at startup and passed explicitly to every
// component constructor. There is no package-level singleton: state that more
// than one goroutine mutates lives in status.Tracker, never here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

// Default model per provider. The elicitation dialogue and the pipeline
// stages share one model configuration.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"
	DefaultGoogleModel    = "gemini-2.0-flash"
)

// ModelConfig selects the LLM provider and generation parameters.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
}

// ElicitationConfig tunes the conversational state machine.
type ElicitationConfig struct {
	MaxRetries      int `yaml:"max_retries"`
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
}

// PipelineConfig tunes the background runner and its observers.
type PipelineConfig struct {
	StageTimeout time.Duration `yaml:"stage_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Config is the root configuration object.
type Config struct {
	OutputDir   string            `yaml:"output_dir"`
	StateDir    string            `yaml:"state_dir"`
	EventLogDir string            `yaml:"event_log_dir"`
	DBPath      string            `yaml:"db_path"`
	Model       ModelConfig       `yaml:"model"`
	Elicitation ElicitationConfig `yaml:"elicitation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// Default returns a Config with all defaults applied, rooted at baseDir.
func Default(baseDir string) Config {
	return Config{
		OutputDir:   filepath.Join(baseDir, "outputs"),
		StateDir:    filepath.Join(baseDir, "state"),
		EventLogDir: filepath.Join(baseDir, "logs"),
		DBPath:      filepath.Join(baseDir, "advisor.db"),
		Model: ModelConfig{
			Provider:    ProviderGoogle,
			Name:        DefaultGoogleModel,
			APIKeyEnv:   "GOOGLE_API_KEY",
			MaxTokens:   2048,
			Temperature: 0.2,
		},
		Elicitation: ElicitationConfig{
			MaxRetries:      3,
			MaxPromptTokens: 6000,
		},
		Pipeline: PipelineConfig{
			StageTimeout: 10 * time.Minute,
			PollInterval: 3 * time.Second,
		},
	}
}

// Load reads a YAML config file and merges it over defaults. A missing file
// is not an error: defaults rooted at the file's directory are returned.
func Load(path string) (Config, error) {
	cfg := Default(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	applyFallbacks(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// applyFallbacks fills zero values left by a partial YAML file.
func applyFallbacks(cfg *Config) {
	def := Default(".")

	if cfg.Model.Name == "" {
		switch cfg.Model.Provider {
		case ProviderAnthropic:
			cfg.Model.Name = DefaultAnthropicModel
		case ProviderOpenAI:
			cfg.Model.Name = DefaultOpenAIModel
		case ProviderGoogle:
			cfg.Model.Name = DefaultGoogleModel
		}
	}
	if cfg.Model.APIKeyEnv == "" {
		switch cfg.Model.Provider {
		case ProviderAnthropic:
			cfg.Model.APIKeyEnv = "ANTHROPIC_API_KEY"
		case ProviderOpenAI:
			cfg.Model.APIKeyEnv = "OPENAI_API_KEY"
		case ProviderGoogle:
			cfg.Model.APIKeyEnv = "GOOGLE_API_KEY"
		}
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = def.Model.MaxTokens
	}
	if cfg.Elicitation.MaxRetries <= 0 {
		cfg.Elicitation.MaxRetries = def.Elicitation.MaxRetries
	}
	if cfg.Elicitation.MaxPromptTokens <= 0 {
		cfg.Elicitation.MaxPromptTokens = def.Elicitation.MaxPromptTokens
	}
	if cfg.Pipeline.StageTimeout <= 0 {
		cfg.Pipeline.StageTimeout = def.Pipeline.StageTimeout
	}
	if cfg.Pipeline.PollInterval <= 0 {
		cfg.Pipeline.PollInterval = def.Pipeline.PollInterval
	}
}

// Validate rejects configurations that would wedge the coordinator at runtime.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}

	switch c.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	if c.Pipeline.PollInterval < time.Second {
		return fmt.Errorf("poll_interval %s too aggressive, minimum 1s", c.Pipeline.PollInterval)
	}
	if c.Pipeline.StageTimeout < time.Minute {
		return fmt.Errorf("stage_timeout %s too short, minimum 1m", c.Pipeline.StageTimeout)
	}

	return nil
}

// APIKey resolves the provider API key from the configured environment
// variable. Empty means the caller must obtain the key another way.
func (c *Config) APIKey() string {
	return os.Getenv(c.Model.APIKeyEnv)
}
