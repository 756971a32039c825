package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"dqrules/domain/core"
	"dqrules/internal/errors"
	"dqrules/models"
	"dqrules/ports"
)

// LLMUsageRepository implements ports.LLMUsageRepository
type LLMUsageRepository struct {
	db *sqlx.DB
}

// NewLLMUsageRepository creates a usage repository over db
func NewLLMUsageRepository(db *sqlx.DB) *LLMUsageRepository {
	return &LLMUsageRepository{db: db}
}

var _ ports.LLMUsageRepository = (*LLMUsageRepository)(nil)

type usageRow struct {
	ID               string `db:"id"`
	RunID            string `db:"run_id"`
	Attribute        string `db:"attribute_name"`
	Provider         string `db:"provider"`
	Model            string `db:"model"`
	OperationType    string `db:"operation_type"`
	PromptTokens     int    `db:"prompt_tokens"`
	CompletionTokens int    `db:"completion_tokens"`
	TotalTokens      int    `db:"total_tokens"`
	CreatedAt        string `db:"created_at"`
}

// RecordUsage records LLM usage for an API call. A missing ID or timestamp is filled in.
func (r *LLMUsageRepository) RecordUsage(ctx context.Context, usage *models.LLMUsage) error {
	if usage.ID.IsEmpty() {
		usage.ID = core.NewID()
	}
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO llm_usage (
			id, run_id, attribute_name, provider, model, operation_type,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		usage.ID.String(), usage.RunID.String(), usage.Attribute, usage.Provider, usage.Model,
		usage.OperationType, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens,
		formatTime(usage.CreatedAt))
	if err != nil {
		return errors.DatabaseError("failed to record llm usage", err)
	}
	return nil
}

// GetRunUsage retrieves the usage records of a run in call order
func (r *LLMUsageRepository) GetRunUsage(ctx context.Context, runID core.RunID) ([]*models.LLMUsage, error) {
	var rows []usageRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, run_id, attribute_name, provider, model, operation_type,
		       prompt_tokens, completion_tokens, total_tokens, created_at
		FROM llm_usage
		WHERE run_id = ?
		ORDER BY created_at, id`), runID.String())
	if err != nil {
		return nil, errors.DatabaseError("failed to get run usage", err)
	}

	usages := make([]*models.LLMUsage, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		usages = append(usages, &models.LLMUsage{
			ID:               core.ID(row.ID),
			RunID:            core.RunID(row.RunID),
			Attribute:        row.Attribute,
			Provider:         row.Provider,
			Model:            row.Model,
			OperationType:    row.OperationType,
			PromptTokens:     row.PromptTokens,
			CompletionTokens: row.CompletionTokens,
			TotalTokens:      row.TotalTokens,
			CreatedAt:        created,
		})
	}
	return usages, nil
}

// GetRunUsageSummary returns aggregated usage statistics for a run
func (r *LLMUsageRepository) GetRunUsageSummary(ctx context.Context, runID core.RunID) (*models.UsageSummary, error) {
	usages, err := r.GetRunUsage(ctx, runID)
	if err != nil {
		return nil, err
	}
	return models.Summarize(runID, usages), nil
}
