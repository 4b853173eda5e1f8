package llm

import (
	"fmt"

	"advisor/pkg/config"
)

// NewClient builds a retry-wrapped model client for the configured provider.
// The apiKey overrides the environment lookup when non-empty, so the CLI can
// pass a key collected interactively.
func NewClient(cfg config.ModelConfig, apiKey string) (Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("no API key available for provider %s (set %s)", cfg.Provider, cfg.APIKeyEnv)
	}

	var raw Client
	switch cfg.Provider {
	case config.ProviderAnthropic:
		raw = NewClaudeClient(apiKey, cfg.Name)
	case config.ProviderOpenAI:
		raw = NewOpenAIClient(apiKey, cfg.Name)
	case config.ProviderGoogle:
		raw = NewGeminiClient(apiKey, cfg.Name)
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}

	return NewRetryableClient(raw, DefaultRetryConfig), nil
}
