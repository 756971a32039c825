package excel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"dqrules/domain/rule"
)

func TestReportWriter_Write(t *testing.T) {
	original := 2.0
	rs := &rule.RuleSet{
		DatasetName:   "Contactors",
		GeneratorType: "heuristic",
		Rules: []rule.Rule{
			{
				ID: "DQ_BRAND_COMPLETENESS_001", Attribute: "Brand", Category: rule.CategoryCompleteness,
				Type: rule.TypeNotNull, Severity: rule.SeverityCritical, Description: "Brand present",
				Predicate: rule.Predicate{Op: rule.OpNotNull}, ThresholdPercent: 5.5, OriginalThreshold: &original,
				ThresholdAdjusted: true, Confidence: 0.9,
				Validation: &rule.ValidationResult{FailureRatePercent: 5, EvaluatedRows: 100, FailureCount: 5, Passed: true},
			},
			{
				ID: "DQ_BRAND_VALIDITY_001", Attribute: "Brand", Category: rule.CategoryValidity,
				Type: rule.TypeValueSet, Severity: rule.SeverityLow, Description: "Known brand",
				Predicate: rule.Predicate{Op: rule.OpInSet, Values: []string{"ABB"}}, ThresholdPercent: 5, Confidence: 0.7,
			},
		},
		Unprocessed: []rule.Unprocessed{{Attribute: "Voltage", Stage: rule.StageDerivation, Code: "DERIVATION_ERROR", Reason: "timeout"}},
	}
	rs.Finalize()

	path := filepath.Join(t.TempDir(), "reports", "dq_rules.xlsx")
	require.NoError(t, NewReportWriter(zaptest.NewLogger(t)).Write(path, rs))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetRules, SheetByCategory, SheetByAttribute, SheetBySeverity, SheetUnprocessed, SheetSummary},
		f.GetSheetList())

	rows, err := f.GetRows(SheetRules)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Rule ID", rows[0][0])
	assert.Equal(t, "DQ_BRAND_COMPLETENESS_001", rows[1][0])
	assert.Equal(t, "not_null", rows[1][8])
	assert.Equal(t, "Yes", rows[1][11])
	assert.Equal(t, "PASS", rows[1][16])
	assert.Equal(t, "NOT VALIDATED", rows[2][16])

	critical, err := f.GetCellStyle(SheetRules, "E2")
	require.NoError(t, err)
	low, err := f.GetCellStyle(SheetRules, "E3")
	require.NoError(t, err)
	assert.NotEqual(t, critical, low)

	bySeverity, err := f.GetRows(SheetBySeverity)
	require.NoError(t, err)
	require.Len(t, bySeverity, 3)
	assert.Equal(t, "Critical", bySeverity[1][0])
	assert.Equal(t, "Low", bySeverity[2][0])

	unprocessed, err := f.GetRows(SheetUnprocessed)
	require.NoError(t, err)
	require.Len(t, unprocessed, 2)
	assert.Equal(t, []string{"Voltage", "derivation", "DERIVATION_ERROR", "timeout"}, unprocessed[1])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Contains(t, summary, []string{"Total Rules", "2"})
	assert.Contains(t, summary, []string{"Adjusted Thresholds", "1"})
}
