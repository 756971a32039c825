package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/internal/migration"
	"dqrules/models"
)

func openStore(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runner, err := migration.NewRunner(zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx, db))
	return db
}

func newRun(dataset string, started time.Time) *models.Run {
	return &models.Run{
		ID:            core.NewRunID(),
		DatasetName:   dataset,
		ParentClass:   "Contactors",
		TotalRecords:  1200,
		ProfilingPath: "profiles/Contactors.json",
		GeneratorType: "heuristic",
		Status:        models.RunRunning,
		StartedAt:     started,
	}
}

func f64(v float64) *float64 { return &v }

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "root@/db")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	_, err = Open(context.Background(), DriverSQLite, " ")
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openStore(t))
	started := time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.FixedZone("CET", 3600))

	run := newRun("Contactors_out", started)
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.Summary)
	assert.Nil(t, got.CompletedAt)

	summary := rule.Summary{TotalRules: 2, AttributesCovered: 1, ByCategory: map[rule.Category]int{rule.CategoryValidity: 2}}
	require.NoError(t, repo.CompleteRun(ctx, run.ID, models.RunCompleted, summary, ""))

	got, err = repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.ByCategory[rule.CategoryValidity])
	require.NotNil(t, got.CompletedAt)
	assert.Greater(t, got.Duration(), time.Duration(0))
}

func TestRunRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openStore(t))

	_, err := repo.GetRun(ctx, core.NewRunID())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	err = repo.CompleteRun(ctx, core.NewRunID(), models.RunFailed, rule.Summary{}, "boom")
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	invalid := newRun("", time.Now())
	err = repo.CreateRun(ctx, invalid)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRunRepository_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openStore(t))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []core.RunID
	for i := 0; i < 3; i++ {
		run := newRun("Contactors_out", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.CreateRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := repo.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunRepository_RulesAndUnprocessed(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openStore(t))
	run := newRun("Contactors_out", time.Now())
	require.NoError(t, repo.CreateRun(ctx, run))

	rules := []rule.Rule{
		{
			ID: "DQ_NUMBER_OF_POLES_VALIDITY_001", Attribute: "zz_Number of Poles",
			Category: rule.CategoryValidity, Type: rule.TypeValueSet, Severity: rule.SeverityHigh,
			Predicate:        rule.Predicate{Op: rule.OpInSet, Values: []string{"1", "2", "3", "4"}},
			ThresholdPercent: 7.5, OriginalThreshold: f64(2), ThresholdAdjusted: true, Confidence: 0.9,
			Validation: &rule.ValidationResult{RuleID: "DQ_NUMBER_OF_POLES_VALIDITY_001", Passed: true, EvaluatedRows: 40},
		},
		{
			ID: "DQ_NUMBER_OF_POLES_COMPLETENESS_001", Attribute: "zz_Number of Poles",
			Category: rule.CategoryCompleteness, Type: rule.TypeNotNull, Severity: rule.SeverityCritical,
			Predicate: rule.Predicate{Op: rule.OpNotNull}, ThresholdPercent: 1, Confidence: 0.95,
		},
	}
	require.NoError(t, repo.SaveRules(ctx, run.ID, rules))

	got, err := repo.ListRules(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, rules, got)

	// saving again replaces
	require.NoError(t, repo.SaveRules(ctx, run.ID, rules[1:]))
	got, err = repo.ListRules(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "DQ_NUMBER_OF_POLES_COMPLETENESS_001", got[0].ID)

	unprocessed := []rule.Unprocessed{
		{Attribute: "zz_Coil Voltage", Stage: rule.StageDerivation, Code: errors.CodeDerivationError, Reason: "no rules"},
		{Attribute: "zz_Width", Stage: rule.StageProfile, Code: errors.CodeParseError, Reason: "missing completeness"},
	}
	require.NoError(t, repo.SaveUnprocessed(ctx, run.ID, unprocessed))
	gotUnprocessed, err := repo.ListUnprocessed(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, unprocessed, gotUnprocessed)

	empty, err := repo.ListRules(ctx, core.NewRunID())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRunRepository_RulesRequireRun(t *testing.T) {
	repo := NewRunRepository(openStore(t))
	err := repo.SaveRules(context.Background(), core.NewRunID(), []rule.Rule{{ID: "DQ_X_VALIDITY_001", Attribute: "x"}})
	assert.Equal(t, errors.CodeDatabaseError, errors.GetCode(err))
}

func TestLLMUsageRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLLMUsageRepository(openStore(t))
	runID := core.NewRunID()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	records := []*models.LLMUsage{
		{RunID: runID, Attribute: "zz_Number of Poles", Provider: "openai", Model: "gpt-4o", OperationType: models.OpRuleDerivation,
			PromptTokens: 900, CompletionTokens: 300, TotalTokens: 1200, CreatedAt: base.Add(time.Second)},
		{RunID: runID, Attribute: "zz_Contact Current Rating", Provider: "openai", Model: "gpt-4o", OperationType: models.OpRuleDerivation,
			PromptTokens: 800, CompletionTokens: 200, TotalTokens: 1000, CreatedAt: base},
		{RunID: core.NewRunID(), Provider: "gemini", Model: "gemini-2.5-flash", OperationType: models.OpRuleDerivation, TotalTokens: 50},
	}
	for _, r := range records {
		require.NoError(t, repo.RecordUsage(ctx, r))
		assert.False(t, r.ID.IsEmpty())
	}

	usage, err := repo.GetRunUsage(ctx, runID)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "zz_Contact Current Rating", usage[0].Attribute, "ordered by call time")
	assert.True(t, usage[1].CreatedAt.Equal(base.Add(time.Second)))

	summary, err := repo.GetRunUsageSummary(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2200, summary.TotalTokens)
	assert.Equal(t, 1700, summary.TotalPromptTokens)
	assert.Equal(t, 2, summary.RequestCount)
	require.Contains(t, summary.ByModel, "gpt-4o")
	assert.Equal(t, 2, summary.ByModel["gpt-4o"].RequestCount)
}
