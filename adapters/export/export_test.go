package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqrules/domain/rule"
	"dqrules/internal/errors"
)

func testRuleSet() *rule.RuleSet {
	original := 2.0
	rs := &rule.RuleSet{
		RunID:         "0190f2a4-0000-7000-8000-000000000001",
		DatasetName:   "Contactors",
		ParentClass:   "Contactors",
		TotalRecords:  1000,
		GeneratorType: "llm",
		Model:         "gpt-test",
		GeneratedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Rules: []rule.Rule{
			{
				ID: "DQ_BRAND_COMPLETENESS_001", Attribute: "Brand", Category: rule.CategoryCompleteness,
				Severity: rule.SeverityHigh, Description: "Brand | maker must be present",
				Predicate: rule.Predicate{Op: rule.OpNotNull}, ThresholdPercent: 5.5,
				OriginalThreshold: &original, ThresholdAdjusted: true, Confidence: 0.9,
				Validation: &rule.ValidationResult{FailureRatePercent: 5, EvaluatedRows: 100, FailureCount: 5, Passed: true},
			},
			{
				ID: "DQ_RATING_VALIDITY_001", Attribute: "Rating", Category: rule.CategoryValidity,
				Severity: rule.SeverityMedium, Description: "Rating within 6..800",
				Predicate: rule.Predicate{Op: rule.OpNotNull}, ThresholdPercent: 1, Confidence: 0.7,
				Validation: &rule.ValidationResult{Inconclusive: true},
			},
		},
		Unprocessed: []rule.Unprocessed{{Attribute: "Voltage", Stage: rule.StageDerivation, Code: "DERIVATION_ERROR", Reason: "bad\nresponse"}},
	}
	rs.Finalize()
	return rs
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dq_rules.json")
	rs := testRuleSet()

	require.NoError(t, WriteJSON(path, rs))
	back, err := ReadJSON(path)
	require.NoError(t, err)

	assert.Equal(t, rs.Rules, back.Rules)
	assert.Equal(t, rs.Unprocessed, back.Unprocessed)
	assert.Equal(t, []string{"DQ_BRAND_COMPLETENESS_001"}, back.ByCategory[rule.CategoryCompleteness])
	assert.Equal(t, 2, back.Summary.TotalRules)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestReadJSON_Errors(t *testing.T) {
	_, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadJSON(path)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(testRuleSet())

	assert.Contains(t, md, "# Data Quality Rules: Contactors")
	assert.Contains(t, md, "| Rules | 2 |")
	assert.Contains(t, md, "| Passed / failed / inconclusive | 1 / 0 / 1 |")
	assert.Contains(t, md, "| Completeness | 1 |")
	assert.Contains(t, md, `Brand \| maker must be present`)
	assert.Contains(t, md, "5.50 (was 2.00)")
	assert.Contains(t, md, "| 5.00 | PASS |")
	assert.Contains(t, md, "| - | INCONCLUSIVE |")
	assert.Contains(t, md, "| Voltage | derivation | bad response |")
}

func TestRenderHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dq_rules.html")
	require.NoError(t, WriteHTML(path, testRuleSet()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	page := string(data)
	assert.Contains(t, page, "<title>Data Quality Rules: Contactors</title>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "DQ_BRAND_COMPLETENESS_001")
}
