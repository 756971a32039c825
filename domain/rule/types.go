package rule

import (
	"math"
)

// Category is the DAMA quality dimension a rule measures
type Category string

const (
	CategoryCompleteness Category = "Completeness"
	CategoryValidity     Category = "Validity"
	CategoryUniqueness   Category = "Uniqueness"
	CategoryConsistency  Category = "Consistency"
	CategoryAccuracy     Category = "Accuracy"
	CategoryTimeliness   Category = "Timeliness"
)

// Categories lists every category in report order
var Categories = []Category{
	CategoryCompleteness, CategoryValidity, CategoryUniqueness,
	CategoryConsistency, CategoryAccuracy, CategoryTimeliness,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks the business impact of a violation
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists every severity from most to least severe
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) Valid() bool {
	for _, known := range Severities {
		if s == known {
			return true
		}
	}
	return false
}

// Type names the kind of check, e.g. RANGE or VALUE_SET
type Type string

const (
	TypeNotNull           Type = "NOT_NULL"
	TypeNotEmpty          Type = "NOT_EMPTY"
	TypePrimaryKey        Type = "PRIMARY_KEY"
	TypeNearDuplicate     Type = "NEAR_DUPLICATE"
	TypeValueSet          Type = "VALUE_SET"
	TypeRange             Type = "RANGE"
	TypeStatisticalBounds Type = "STATISTICAL_BOUNDS"
	TypePrecision         Type = "PRECISION"
	TypeDataType          Type = "DATA_TYPE"
	TypeFormatPattern     Type = "FORMAT_PATTERN"
	TypeFormatConsistency Type = "FORMAT_CONSISTENCY"
	TypeCaseConsistency   Type = "CASE_CONSISTENCY"
	TypeLength            Type = "LENGTH"
)

// Rule is one derived data-quality check
type Rule struct {
	ID                  string            `json:"rule_id"`
	Attribute           string            `json:"attribute_name"`
	Category            Category          `json:"rule_category"`
	Type                Type              `json:"rule_type"`
	Severity            Severity          `json:"severity"`
	Description         string            `json:"description"`
	Expression          string            `json:"rule_expression,omitempty"`
	SQL                 string            `json:"rule_expression_sql"`
	Predicate           Predicate         `json:"row_predicate"`
	ThresholdPercent    float64           `json:"threshold_percent"`
	OriginalThreshold   *float64          `json:"original_threshold_percent,omitempty"`
	ThresholdAdjusted   bool              `json:"threshold_adjusted"`
	Confidence          float64           `json:"confidence_score"`
	DerivedFrom         string            `json:"derived_from,omitempty"`
	SampleValidValues   []string          `json:"sample_valid_values,omitempty"`
	SampleInvalidValues []string          `json:"sample_invalid_values,omitempty"`
	Validation          *ValidationResult `json:"validation,omitempty"`
}

// InBounds reports whether threshold and confidence lie in their legal ranges
func (r Rule) InBounds() bool {
	return r.ThresholdPercent >= 0 && r.ThresholdPercent <= 100 &&
		r.Confidence >= 0 && r.Confidence <= 1 &&
		!math.IsNaN(r.ThresholdPercent) && !math.IsNaN(r.Confidence)
}

// ValidationResult is the outcome of evaluating one rule against the sample
type ValidationResult struct {
	RuleID             string   `json:"rule_id"`
	FailureCount       int      `json:"failure_count"`
	FailureRatePercent float64  `json:"failure_rate_percent"`
	SampleSize         int      `json:"sample_size"`
	EvaluatedRows      int      `json:"evaluated_rows"`
	ExcludedRows       int      `json:"excluded_rows"`
	Inconclusive       bool     `json:"inconclusive"`
	Passed             bool     `json:"passed"`
	ConfidenceLow      float64  `json:"ci95_low_percent"`
	ConfidenceHigh     float64  `json:"ci95_high_percent"`
	SampleFailures     []string `json:"sample_failures,omitempty"`
	Note               string   `json:"note,omitempty"`
	SQLFailureCount    *int     `json:"sql_failure_count,omitempty"`
	SQLError           string   `json:"sql_error,omitempty"`
}

// Verdict is a short label for reports
func (v ValidationResult) Verdict() string {
	switch {
	case v.Inconclusive:
		return "INCONCLUSIVE"
	case v.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}
