package ports

import (
	"context"

	"dqrules/domain/core"
	"dqrules/models"
)

// LLMUsageRepository defines the interface for LLM usage data operations
type LLMUsageRepository interface {
	// Record usage for an LLM call
	RecordUsage(ctx context.Context, usage *models.LLMUsage) error

	// Get every usage record of a run in call order
	GetRunUsage(ctx context.Context, runID core.RunID) ([]*models.LLMUsage, error)

	// Get aggregated usage summary for a run
	GetRunUsageSummary(ctx context.Context, runID core.RunID) (*models.UsageSummary, error)
}
