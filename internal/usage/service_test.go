package usage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dqrules/domain/core"
	"dqrules/models"
	"dqrules/ports"
)

type flakyRepo struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []*models.LLMUsage
}

func (r *flakyRepo) RecordUsage(_ context.Context, u *models.LLMUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.calls <= r.failures {
		return fmt.Errorf("database unavailable")
	}
	r.saved = append(r.saved, u)
	return nil
}

func (r *flakyRepo) GetRunUsage(_ context.Context, runID core.RunID) ([]*models.LLMUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, nil
}

func (r *flakyRepo) GetRunUsageSummary(ctx context.Context, runID core.RunID) (*models.UsageSummary, error) {
	records, _ := r.GetRunUsage(ctx, runID)
	return models.Summarize(runID, records), nil
}

func TestRecordUsage_PersistsWithRetry(t *testing.T) {
	repo := &flakyRepo{failures: 2}
	svc := NewService(repo, zaptest.NewLogger(t))
	svc.baseDelay = time.Millisecond
	runID := core.NewRunID()

	svc.RecordUsage(context.Background(), runID, "Brand", models.OpRuleDerivation,
		&ports.UsageData{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120, Model: "gpt-test", Provider: "openai"})
	svc.Wait()

	require.Len(t, repo.saved, 1)
	assert.Equal(t, 3, repo.calls)
	assert.Equal(t, "Brand", repo.saved[0].Attribute)
	assert.Equal(t, runID, repo.saved[0].RunID)
}

func TestRecordUsage_GivesUpQuietly(t *testing.T) {
	repo := &flakyRepo{failures: 10}
	svc := NewService(repo, zaptest.NewLogger(t))
	svc.baseDelay = time.Millisecond

	svc.RecordUsage(context.Background(), core.NewRunID(), "Brand", models.OpRuleDerivation,
		&ports.UsageData{TotalTokens: 1})
	svc.Wait()

	assert.Empty(t, repo.saved)
	assert.Equal(t, 3, repo.calls)
}

func TestSummary_WithoutRepository(t *testing.T) {
	svc := NewService(nil, nil)
	runID := core.NewRunID()

	svc.RecordUsage(context.Background(), runID, "A", models.OpRuleDerivation,
		&ports.UsageData{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Model: "m1"})
	svc.RecordUsage(context.Background(), runID, "B", models.OpRuleDerivation,
		&ports.UsageData{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25, Model: "m1"})
	svc.RecordUsage(context.Background(), runID, "C", models.OpRuleDerivation, nil)
	svc.RecordUsage(context.Background(), runID, "D", models.OpRuleDerivation, &ports.UsageData{TotalTokens: -1})
	svc.RecordUsage(context.Background(), core.NewRunID(), "E", models.OpRuleDerivation, &ports.UsageData{TotalTokens: 99})

	summary, err := svc.GetRunUsageSummary(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RequestCount)
	assert.Equal(t, 40, summary.TotalTokens)
	assert.Equal(t, 30, summary.TotalPromptTokens)
	require.Contains(t, summary.ByModel, "m1")
	assert.Equal(t, 2, summary.ByModel["m1"].RequestCount)
}
