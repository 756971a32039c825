package app

import (
	"context"

	"go.uber.org/zap"

	"dqrules/adapters/llm"
	"dqrules/adapters/llm/heuristic"
	"dqrules/ai"
	"dqrules/internal/config"
	"dqrules/ports"
)

// NewRuleGenerator builds the generator selected by cfg.Provider
func NewRuleGenerator(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (ports.RuleGenerator, error) {
	if cfg.Provider == config.ProviderHeuristic {
		return heuristic.NewGenerator(), nil
	}

	client, err := llm.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return llm.NewGeneratorAdapter(llm.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.CallBudget(),
		// OpenAI's json_object mode only admits objects; the prompt asks for an array
		JSONMode: cfg.Provider == config.ProviderGemini,
	}, client, ai.NewPromptManager(cfg.PromptsDir, logger), logger)
}
