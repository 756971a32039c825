package ports

import (
	"context"

	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/models"
)

// RunRepository persists pipeline runs and their outputs
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.Run) error
	CompleteRun(ctx context.Context, runID core.RunID, status models.RunStatus, summary rule.Summary, runErr string) error
	SaveRules(ctx context.Context, runID core.RunID, rules []rule.Rule) error
	SaveUnprocessed(ctx context.Context, runID core.RunID, unprocessed []rule.Unprocessed) error
	GetRun(ctx context.Context, runID core.RunID) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	ListRules(ctx context.Context, runID core.RunID) ([]rule.Rule, error)
	ListUnprocessed(ctx context.Context, runID core.RunID) ([]rule.Unprocessed, error)
}
