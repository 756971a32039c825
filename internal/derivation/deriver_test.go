package derivation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dqrules/adapters/llm"
	"dqrules/adapters/llm/heuristic"
	"dqrules/ai"
	"dqrules/domain/core"
	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/domain/sample"
	"dqrules/internal/errors"
	"dqrules/internal/metrics"
	"dqrules/internal/usage"
	"dqrules/ports"
)

type scriptedGenerator struct {
	rules    map[string][]rule.Rule
	failures map[string]error
	seen     []ports.GenerationRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req ports.GenerationRequest) (*ports.Generation, error) {
	g.seen = append(g.seen, req)
	name := req.Profile.Name
	audit := ports.GenerationAudit{
		GeneratorType: "test",
		Usage:         &ports.UsageData{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, Model: "m"},
	}
	if err := g.failures[name]; err != nil {
		return &ports.Generation{Audit: audit}, err
	}
	return &ports.Generation{Rules: g.rules[name], Audit: audit}, nil
}

func testSet(names ...string) *profile.Set {
	set := profile.NewSet("profiling.json")
	for _, n := range names {
		set.Add(profile.AttributeProfile{Name: n, Datatype: profile.DatatypeCategorical, Completeness: 0.9, Cardinality: 0.1})
	}
	return set
}

func r(attr string, cat rule.Category, desc string) rule.Rule {
	return rule.Rule{Attribute: attr, Category: cat, Description: desc, Predicate: rule.Predicate{Op: rule.OpNotNull}}
}

func TestDerive_AssignsIDsAndContinuesPastFailures(t *testing.T) {
	gen := &scriptedGenerator{
		rules: map[string][]rule.Rule{
			"Brand": {
				r("Brand", rule.CategoryValidity, "known brand"),
				r("Brand", rule.CategoryCompleteness, "brand present"),
				r("Brand", rule.CategoryValidity, "brand length"),
			},
			"zz_Number of Poles": {r("zz_Number of Poles", rule.CategoryValidity, "standard pole count")},
		},
		failures: map[string]error{"Voltage": fmt.Errorf("model returned prose")},
	}
	tracker := usage.NewService(nil, nil)
	runID := core.NewRunID()
	d := NewDeriver(gen, tracker, metrics.New(), zaptest.NewLogger(t))

	res, err := d.Derive(context.Background(), runID, profile.DatasetContext{Name: "Contactors"},
		testSet("Brand", "Voltage", "zz_Number of Poles"),
		[]string{"Brand", "Voltage", "zz_Number of Poles", "Ghost"}, nil)
	require.NoError(t, err)

	ids := make([]string, len(res.Rules))
	for i, rr := range res.Rules {
		ids[i] = rr.ID
	}
	assert.Equal(t, []string{
		"DQ_BRAND_VALIDITY_001",
		"DQ_BRAND_COMPLETENESS_001",
		"DQ_BRAND_VALIDITY_002",
		"DQ_ZZ_NUMBER_OF_POLES_VALIDITY_001",
	}, ids)

	require.Len(t, res.Unprocessed, 2)
	assert.Equal(t, "Voltage", res.Unprocessed[0].Attribute)
	assert.Equal(t, rule.StageDerivation, res.Unprocessed[0].Stage)
	assert.Equal(t, errors.CodeDerivationError, res.Unprocessed[0].Code)
	assert.Contains(t, res.Unprocessed[0].Reason, "model returned prose")
	assert.Equal(t, "Ghost", res.Unprocessed[1].Attribute)

	require.Len(t, res.Audits, 3)
	assert.Equal(t, 3, res.Audits[0].Rules)
	assert.NotEmpty(t, res.Audits[1].Error)

	assert.Equal(t, 3, tracker.Summary(runID).RequestCount, "usage counted for failed calls too")
	require.Len(t, gen.seen, 3)
	assert.Equal(t, "Contactors", gen.seen[0].Dataset.Name)
	assert.Nil(t, gen.seen[0].Sample)
}

func TestDerive_PassesSampleSummary(t *testing.T) {
	gen := &scriptedGenerator{rules: map[string][]rule.Rule{"Brand": {r("Brand", rule.CategoryValidity, "x")}}}
	s := sample.New("sample.csv", []string{"Brand"})
	s.Rows = []sample.Row{{"Brand": "ABB"}, {"Brand": "Eaton"}}

	_, err := NewDeriver(gen, nil, nil, nil).Derive(context.Background(), core.NewRunID(),
		profile.DatasetContext{}, testSet("Brand"), []string{"Brand"}, s)
	require.NoError(t, err)
	require.NotNil(t, gen.seen[0].Sample)
	assert.Equal(t, 2, gen.seen[0].Sample.Rows)
	assert.NotEmpty(t, gen.seen[0].Recommendations)
}

func TestDerive_StopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGenerator{}
	_, err := NewDeriver(gen, nil, nil, nil).Derive(ctx, core.NewRunID(),
		profile.DatasetContext{}, testSet("Brand"), []string{"Brand"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gen.seen)
}

func TestDerive_WithLLMAdapter(t *testing.T) {
	response := `[{"attribute_name":"Brand","rule_category":"Completeness","rule_type":"NOT_NULL",
		"severity":"High","description":"Brand must be present",
		"rule_expression_sql":"SELECT * FROM products WHERE \"Brand\" IS NULL",
		"row_predicate":{"op":"not_null"},"threshold_percent":10,"confidence_score":0.9}]`
	mock := &llm.MockLLMClient{Responses: []string{response, "not json"}}
	adapter, err := llm.NewGeneratorAdapter(llm.Config{Model: "gpt-test"}, mock, ai.NewPromptManager("", nil), nil)
	require.NoError(t, err)

	res, err := NewDeriver(adapter, nil, nil, zaptest.NewLogger(t)).Derive(context.Background(), core.NewRunID(),
		profile.DatasetContext{}, testSet("Brand", "Series"), []string{"Brand", "Series"}, nil)
	require.NoError(t, err)

	require.Len(t, res.Rules, 1)
	assert.Equal(t, "DQ_BRAND_COMPLETENESS_001", res.Rules[0].ID)
	require.Len(t, res.Unprocessed, 1)
	assert.Equal(t, "Series", res.Unprocessed[0].Attribute)
}

func TestDerive_EmptyAnswerIsProcessed(t *testing.T) {
	mock := &llm.MockLLMClient{Responses: []string{"[]"}}
	adapter, err := llm.NewGeneratorAdapter(llm.Config{Model: "gpt-test"}, mock, ai.NewPromptManager("", nil), nil)
	require.NoError(t, err)

	res, err := NewDeriver(adapter, nil, nil, zaptest.NewLogger(t)).Derive(context.Background(), core.NewRunID(),
		profile.DatasetContext{}, testSet("Brand"), []string{"Brand"}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.Rules)
	assert.Empty(t, res.Unprocessed)
	require.Len(t, res.Audits, 1)
	assert.Equal(t, "Brand", res.Audits[0].Attribute)
	assert.Equal(t, 0, res.Audits[0].Rules)
	assert.Empty(t, res.Audits[0].Error)
}

func TestDerive_Heuristic(t *testing.T) {
	res, err := NewDeriver(heuristic.NewGenerator(), nil, nil, nil).Derive(context.Background(), core.NewRunID(),
		profile.DatasetContext{}, testSet("Brand"), []string{"Brand"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Rules)
	assert.Equal(t, "DQ_BRAND_COMPLETENESS_001", res.Rules[0].ID)
	assert.Empty(t, res.Unprocessed)
}
