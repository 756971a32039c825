package llm

import (
	"context"

	"go.uber.org/zap"

	"dqrules/internal/config"
	"dqrules/internal/errors"
	"dqrules/ports"
)

// NewClient builds the configured provider wrapped with retry and per-attempt timeout
func NewClient(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (ports.LLMClient, error) {
	var inner ports.LLMClient
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c, err := NewOpenAIClient(cfg.APIKey, cfg.BaseURL, logger)
		if err != nil {
			return nil, err
		}
		inner = c
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.APIKey, logger)
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, errors.ConfigInvalid("provider " + cfg.Provider + " has no LLM client")
	}

	return NewRetryingClient(inner, RetryPolicy{
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      cfg.RetryBackoffBase,
		MaxDelay:       cfg.RetryBackoffMax,
		AttemptTimeout: cfg.Timeout,
	}, logger), nil
}
