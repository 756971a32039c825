package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dqrules/adapters/export"
	"dqrules/adapters/llm/heuristic"
	"dqrules/adapters/sqlstore"
	"dqrules/domain/core"
	"dqrules/domain/rule"
	"dqrules/internal/config"
	"dqrules/internal/errors"
	"dqrules/internal/metrics"
	"dqrules/internal/migration"
	"dqrules/internal/usage"
	"dqrules/models"
	"dqrules/ports"
)

const profilingDoc = `{
  "zz_Number of Poles": {
    "datatype": "Categorical",
    "missing_percentage": "0.0%",
    "cardinality": "0.2%",
    "top_values": [{"value": "3", "count": 6}, {"value": "4", "count": 2}]
  },
  "zz_Coil Voltage": {"datatype": "Empty", "missing_percentage": 100, "cardinality": 0},
  "zz_Width": {"datatype": "Numeric", "cardinality": "5%"}
}`

const sampleCSV = `SKU,zz_Number of Poles
A1,3
A2,3
A3,3
A4,3
A5,3
A6,3
A7,4
A8,4
A9,2
A10,2
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profiling.json"), []byte(profilingDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Contactors_out.csv"), []byte(sampleCSV), 0o644))

	cfg := config.Default()
	cfg.AI.Provider = config.ProviderHeuristic
	cfg.Inputs.ProfilingPath = filepath.Join(dir, "profiling.json")
	cfg.Inputs.SamplePath = filepath.Join(dir, "Contactors_out.csv")
	cfg.Selection.PriorityAttributes = []string{"zz_Number of Poles", "zz_Coil Voltage", "zz_Width", "zz_Height"}
	cfg.Dataset.ParentClass = "Contactors"
	cfg.Output.Dir = filepath.Join(dir, "out")
	return &cfg
}

func ruleByID(t *testing.T, rules []rule.Rule, id string) rule.Rule {
	t.Helper()
	for _, r := range rules {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("rule %s not found", id)
	return rule.Rule{}
}

func TestPipeline_Run(t *testing.T) {
	cfg := testConfig(t)
	svc := NewPipelineService(cfg, heuristic.NewGenerator(), nil, nil, metrics.New(), zaptest.NewLogger(t))

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	rs := result.RuleSet

	assert.Equal(t, "Contactors", rs.DatasetName)
	assert.Equal(t, "Contactors", rs.ParentClass)
	assert.Equal(t, ports.GeneratorHeuristic, rs.GeneratorType)
	assert.Equal(t, []string{"zz_Height"}, result.MissingPriority)

	require.Len(t, rs.Rules, 2)
	notNull := ruleByID(t, rs.Rules, "DQ_ZZ_NUMBER_OF_POLES_COMPLETENESS_001")
	require.NotNil(t, notNull.Validation)
	assert.True(t, notNull.Validation.Passed)
	assert.False(t, notNull.ThresholdAdjusted)

	valueSet := ruleByID(t, rs.Rules, "DQ_ZZ_NUMBER_OF_POLES_VALIDITY_001")
	require.NotNil(t, valueSet.Validation)
	assert.Equal(t, 20.0, valueSet.Validation.FailureRatePercent)
	assert.True(t, valueSet.ThresholdAdjusted)
	assert.Equal(t, 22.0, valueSet.ThresholdPercent)
	require.NotNil(t, valueSet.OriginalThreshold)
	assert.Equal(t, 5.0, *valueSet.OriginalThreshold)
	require.NotNil(t, valueSet.Validation.SQLFailureCount)
	assert.Equal(t, 2, *valueSet.Validation.SQLFailureCount)

	require.Len(t, rs.Unprocessed, 2)
	assert.Equal(t, "zz_Coil Voltage", rs.Unprocessed[0].Attribute)
	assert.Equal(t, rule.StageSelection, rs.Unprocessed[0].Stage)
	assert.Equal(t, "zz_Width", rs.Unprocessed[1].Attribute)
	assert.Equal(t, errors.CodeParseError, rs.Unprocessed[1].Code)

	assert.Equal(t, 1, rs.Summary.AdjustedThresholds)
	assert.Equal(t, 2, rs.Summary.UnprocessedCount)

	for _, p := range []string{result.Outputs.JSON, result.Outputs.Excel, result.Outputs.Markdown, result.Outputs.HTML} {
		require.NotEmpty(t, p)
		assert.FileExists(t, p)
	}
	written, err := export.ReadJSON(result.Outputs.JSON)
	require.NoError(t, err)
	assert.Equal(t, rs.RunID, written.RunID)
	assert.Len(t, written.Rules, 2)
}

func TestPipeline_RevalidateIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	svc := NewPipelineService(cfg, heuristic.NewGenerator(), nil, nil, nil, nil)
	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	first, _, err := svc.Revalidate(context.Background(), RevalidateOptions{DocumentPath: result.Outputs.JSON})
	require.NoError(t, err)
	second, outputs, err := svc.Revalidate(context.Background(), RevalidateOptions{DocumentPath: result.Outputs.JSON})
	require.NoError(t, err)

	require.Len(t, second.Rules, len(result.RuleSet.Rules))
	for i := range second.Rules {
		assert.Equal(t, result.RuleSet.Rules[i].ThresholdPercent, first.Rules[i].ThresholdPercent)
		assert.Equal(t, first.Rules[i].ThresholdPercent, second.Rules[i].ThresholdPercent)
		assert.Equal(t, first.Rules[i].OriginalThreshold, second.Rules[i].OriginalThreshold)
	}
	assert.Equal(t, result.Outputs.JSON, outputs.JSON)
}

func TestPipeline_RevalidateWithoutSampleIsInconclusive(t *testing.T) {
	cfg := testConfig(t)
	svc := NewPipelineService(cfg, heuristic.NewGenerator(), nil, nil, nil, nil)
	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	rs, _, err := svc.Revalidate(context.Background(), RevalidateOptions{
		DocumentPath: result.Outputs.JSON,
		SamplePath:   filepath.Join(t.TempDir(), "missing.csv"),
	})
	require.NoError(t, err)
	for _, r := range rs.Rules {
		assert.True(t, r.Validation.Inconclusive, r.ID)
	}
	assert.Equal(t, len(rs.Rules), rs.Summary.InconclusiveResults)
}

// failingGenerator fails for the named attribute and delegates otherwise
type failingGenerator struct {
	attribute string
	next      ports.RuleGenerator
}

func (g failingGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (*ports.Generation, error) {
	if req.Profile.Name == g.attribute {
		return nil, fmt.Errorf("model returned prose")
	}
	return g.next.Generate(ctx, req)
}

func TestPipeline_DerivationFailureIsUnprocessed(t *testing.T) {
	cfg := testConfig(t)
	svc := NewPipelineService(cfg, failingGenerator{attribute: "zz_Number of Poles", next: heuristic.NewGenerator()}, nil, nil, nil, nil)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.RuleSet.Rules)
	require.Len(t, result.RuleSet.Unprocessed, 3)
	last := result.RuleSet.Unprocessed[2]
	assert.Equal(t, "zz_Number of Poles", last.Attribute)
	assert.Equal(t, rule.StageDerivation, last.Stage)
	assert.Equal(t, errors.CodeDerivationError, last.Code)
}

func TestPipeline_FatalInputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inputs.ProfilingPath = filepath.Join(t.TempDir(), "absent.json")
	_, err := NewPipelineService(cfg, heuristic.NewGenerator(), nil, nil, nil, nil).Run(context.Background())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	cfg = testConfig(t)
	cfg.Selection.PriorityAttributes = []string{"zz_Coil Voltage"}
	_, err = NewPipelineService(cfg, heuristic.NewGenerator(), nil, nil, nil, nil).Run(context.Background())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err), "no attribute selected")

	_, err = NewPipelineService(testConfig(t), nil, nil, nil, nil, nil).Run(context.Background())
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestPipeline_PersistsRun(t *testing.T) {
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()
	runner, err := migration.NewRunner(nil)
	require.NoError(t, err)
	require.NoError(t, runner.Run(ctx, db))

	runs := sqlstore.NewRunRepository(db)
	tracker := usage.NewService(sqlstore.NewLLMUsageRepository(db), zaptest.NewLogger(t))
	svc := NewPipelineService(testConfig(t), heuristic.NewGenerator(), runs, tracker, nil, zaptest.NewLogger(t))

	result, err := svc.Run(ctx)
	require.NoError(t, err)

	run, err := runs.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.TotalRules)

	stored, err := runs.ListRules(ctx, core.RunID(result.RuleSet.RunID))
	require.NoError(t, err)
	assert.Equal(t, result.RuleSet.Rules, stored)

	unprocessed, err := runs.ListUnprocessed(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RuleSet.Unprocessed, unprocessed)

	require.NotNil(t, result.Usage)
	assert.Equal(t, 0, result.Usage.RequestCount, "heuristic generation makes no LLM calls")
}
