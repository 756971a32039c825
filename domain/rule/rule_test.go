package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatID(t *testing.T) {
	tests := []struct {
		attribute string
		category  Category
		seq       int
		want      string
	}{
		{"zz_Number of Poles", CategoryValidity, 1, "DQ_ZZ_NUMBER_OF_POLES_VALIDITY_001"},
		{"_VendorName", CategoryCompleteness, 2, "DQ__VENDORNAME_COMPLETENESS_002"},
		{"Voltage (V)", CategoryAccuracy, 12, "DQ_VOLTAGE__V__ACCURACY_012"},
		{"Größe", CategoryConsistency, 3, "DQ_GR__E_CONSISTENCY_003"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatID(tt.attribute, tt.category, tt.seq))
		})
	}
}

func TestIDAllocator_SequencesPerAttributeAndCategory(t *testing.T) {
	rules := []Rule{
		{Attribute: "Brand", Category: CategoryCompleteness},
		{Attribute: "Brand", Category: CategoryValidity},
		{Attribute: "Brand", Category: CategoryCompleteness},
		{Attribute: "Color", Category: CategoryCompleteness},
	}
	NewIDAllocator().Assign(rules)

	assert.Equal(t, "DQ_BRAND_COMPLETENESS_001", rules[0].ID)
	assert.Equal(t, "DQ_BRAND_VALIDITY_001", rules[1].ID)
	assert.Equal(t, "DQ_BRAND_COMPLETENESS_002", rules[2].ID)
	assert.Equal(t, "DQ_COLOR_COMPLETENESS_001", rules[3].ID)
}

func TestIDAllocator_CollidingTokensStayUnique(t *testing.T) {
	alloc := NewIDAllocator()
	a := alloc.Next("Pack Size", CategoryValidity)
	b := alloc.Next("Pack_Size", CategoryValidity)

	assert.Equal(t, "DQ_PACK_SIZE_VALIDITY_001", a)
	assert.Equal(t, "DQ_PACK_SIZE_VALIDITY_002", b)
}

func TestRuleInBounds(t *testing.T) {
	assert.True(t, Rule{ThresholdPercent: 0, Confidence: 1}.InBounds())
	assert.True(t, Rule{ThresholdPercent: 100, Confidence: 0}.InBounds())
	assert.False(t, Rule{ThresholdPercent: 100.5, Confidence: 0.5}.InBounds())
	assert.False(t, Rule{ThresholdPercent: 5, Confidence: 1.2}.InBounds())
}

func TestRuleSetFinalize(t *testing.T) {
	rs := &RuleSet{
		Rules: []Rule{
			{ID: "DQ_A_COMPLETENESS_001", Attribute: "A", Category: CategoryCompleteness, Severity: SeverityHigh, Confidence: 0.9,
				Validation: &ValidationResult{Passed: true}},
			{ID: "DQ_B_VALIDITY_001", Attribute: "B", Category: CategoryValidity, Severity: SeverityLow, Confidence: 0.7,
				ThresholdAdjusted: true, Validation: &ValidationResult{Inconclusive: true}},
			{ID: "DQ_A_VALIDITY_001", Attribute: "A", Category: CategoryValidity, Severity: SeverityHigh, Confidence: 0.8},
		},
		Unprocessed: []Unprocessed{{Attribute: "C", Stage: StageDerivation}},
	}
	rs.Finalize()

	assert.Equal(t, []string{"A", "B"}, rs.AttributeOrder)
	assert.Equal(t, []string{"DQ_A_COMPLETENESS_001", "DQ_A_VALIDITY_001"}, rs.ByAttribute["A"])
	assert.Equal(t, []string{"DQ_B_VALIDITY_001", "DQ_A_VALIDITY_001"}, rs.ByCategory[CategoryValidity])
	assert.Equal(t, 3, rs.Summary.TotalRules)
	assert.Equal(t, 2, rs.Summary.AttributesCovered)
	assert.Equal(t, 1, rs.Summary.UnprocessedCount)
	assert.Equal(t, 1, rs.Summary.AdjustedThresholds)
	assert.Equal(t, 1, rs.Summary.PassedValidation)
	assert.Equal(t, 1, rs.Summary.InconclusiveResults)
	assert.InDelta(t, 0.8, rs.Summary.AverageConfidence, 1e-9)
	assert.Equal(t, 2, rs.Summary.BySeverity[SeverityHigh])
}

func TestGroupBySeverityOrder(t *testing.T) {
	groups := GroupBySeverity([]Rule{
		{ID: "1", Severity: SeverityLow},
		{ID: "2", Severity: SeverityCritical},
		{ID: "3", Severity: SeverityLow},
	})
	if assert.Len(t, groups, 2) {
		assert.Equal(t, SeverityCritical, groups[0].Key)
		assert.Equal(t, SeverityLow, groups[1].Key)
		assert.Len(t, groups[1].Rules, 2)
	}
}

func TestPredicateString(t *testing.T) {
	lo, hi := 6.0, 800.0
	assert.Equal(t, "range 6..800", Predicate{Op: OpRange, Min: &lo, Max: &hi}.String())
	assert.Equal(t, "length *..800", Predicate{Op: OpLength, Max: &hi}.String())
	assert.Equal(t, "in_set [1, 2, 3]", Predicate{Op: OpInSet, Values: []string{"1", "2", "3"}}.String())
	assert.Equal(t, "not_null", Predicate{Op: OpNotNull}.String())
}
