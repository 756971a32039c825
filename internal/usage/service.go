package usage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dqrules/domain/core"
	"dqrules/internal/logging"
	"dqrules/models"
	"dqrules/ports"
)

// Service handles LLM usage tracking and persistence. Records are kept in
// memory for the run summary and written to the repository in the background.
type Service struct {
	repo      ports.LLMUsageRepository
	logger    *zap.Logger
	baseDelay time.Duration

	mu      sync.Mutex
	records []*models.LLMUsage
	wg      sync.WaitGroup
}

// NewService creates a new usage service; repo may be nil
func NewService(repo ports.LLMUsageRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logging.OrNop(logger),
		baseDelay: 100 * time.Millisecond,
	}
}

// RecordUsage records the token usage of one generation call. Tracking problems
// are logged and never returned to the caller.
func (s *Service) RecordUsage(ctx context.Context, runID core.RunID, attribute, operationType string, usage *ports.UsageData) {
	if usage == nil {
		return
	}
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.TotalTokens < 0 {
		s.logger.Error("[UsageService] invalid token counts",
			zap.String("attribute", attribute),
			zap.Any("usage", usage))
		return
	}

	record := &models.LLMUsage{
		ID:               core.NewID(),
		RunID:            runID,
		Attribute:        attribute,
		Provider:         usage.Provider,
		Model:            usage.Model,
		OperationType:    operationType,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		CreatedAt:        time.Now().UTC(),
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()

	if s.repo == nil {
		return
	}

	// Async persistence to avoid blocking generation
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.persistWithRetry(context.WithoutCancel(ctx), record); err != nil {
			s.logger.Error("[UsageService] failed to persist usage after retries",
				zap.String("attribute", attribute),
				zap.Error(err))
		}
	}()
}

// persistWithRetry attempts to persist usage with linear backoff
func (s *Service) persistWithRetry(ctx context.Context, record *models.LLMUsage) error {
	const maxRetries = 3

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = s.repo.RecordUsage(ctx, record); err == nil {
			return nil
		}
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * s.baseDelay)
		}
	}
	return err
}

// Wait blocks until every pending write has finished
func (s *Service) Wait() {
	s.wg.Wait()
}

// Summary aggregates the usage recorded by this service for runID
func (s *Service) Summary(runID core.RunID) *models.UsageSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []*models.LLMUsage
	for _, r := range s.records {
		if r.RunID == runID {
			records = append(records, r)
		}
	}
	return models.Summarize(runID, records)
}

// GetRunUsageSummary returns the persisted usage summary for a run
func (s *Service) GetRunUsageSummary(ctx context.Context, runID core.RunID) (*models.UsageSummary, error) {
	if s.repo == nil {
		return s.Summary(runID), nil
	}
	return s.repo.GetRunUsageSummary(ctx, runID)
}
