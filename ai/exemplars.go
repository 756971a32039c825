package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Exemplar is one worked derivation shown to the model
type Exemplar struct {
	Attribute string                 `json:"attribute_name"`
	Profiling map[string]interface{} `json:"profiling"`
	Rules     []map[string]interface{}
}

// DefaultExemplars covers a numeric range, a categorical enumeration and a text pattern
func DefaultExemplars() []Exemplar {
	return []Exemplar{
		{
			Attribute: "zz_Contact Current Rating",
			Profiling: map[string]interface{}{
				"datatype":           "Numeric",
				"missing_percentage": 66.93,
				"cardinality":        "0.59%",
				"top_values": []map[string]interface{}{
					{"value": "25", "count": 890},
					{"value": "9", "count": 756},
					{"value": "12", "count": 611},
					{"value": "32", "count": 378},
				},
				"range": []float64{6, 800},
			},
			Rules: []map[string]interface{}{
				{
					"attribute_name":        "zz_Contact Current Rating",
					"rule_category":         "Validity",
					"rule_type":             "RANGE",
					"severity":              "High",
					"description":           "Contact current rating must be between 6A and 800A",
					"rule_expression":       "zz_Contact Current Rating BETWEEN 6 AND 800",
					"rule_expression_sql":   `SELECT * FROM products WHERE CAST("zz_Contact Current Rating" AS REAL) < 6 OR CAST("zz_Contact Current Rating" AS REAL) > 800`,
					"row_predicate":         map[string]interface{}{"op": "range", "min": 6, "max": 800},
					"threshold_percent":     2.0,
					"confidence_score":      0.88,
					"derived_from":          "range: [6, 800]; top_values 9, 12, 25, 32",
					"sample_valid_values":   []string{"9", "12", "25", "32"},
					"sample_invalid_values": []string{"0", "5", "1000"},
				},
			},
		},
		{
			Attribute: "zz_Number of Poles",
			Profiling: map[string]interface{}{
				"datatype":           "Categorical",
				"missing_percentage": 55.09,
				"cardinality":        "0.04%",
				"top_values": []map[string]interface{}{
					{"value": "3", "count": 7562},
					{"value": "4", "count": 1678},
					{"value": "2", "count": 1567},
					{"value": "1", "count": 445},
				},
			},
			Rules: []map[string]interface{}{
				{
					"attribute_name":        "zz_Number of Poles",
					"rule_category":         "Validity",
					"rule_type":             "VALUE_SET",
					"severity":              "High",
					"description":           "Number of poles must be a standard value between 1 and 4",
					"rule_expression":       "zz_Number of Poles IN ('1', '2', '3', '4')",
					"rule_expression_sql":   `SELECT * FROM products WHERE "zz_Number of Poles" IS NOT NULL AND "zz_Number of Poles" NOT IN ('1', '2', '3', '4')`,
					"row_predicate":         map[string]interface{}{"op": "in_set", "values": []string{"1", "2", "3", "4"}},
					"threshold_percent":     1.0,
					"confidence_score":      0.95,
					"derived_from":          "top_values: 3 (7562), 4 (1678), 2 (1567), 1 (445)",
					"sample_valid_values":   []string{"1", "2", "3", "4"},
					"sample_invalid_values": []string{"0", "6", "N/A"},
				},
				{
					"attribute_name":        "zz_Number of Poles",
					"rule_category":         "Completeness",
					"rule_type":             "NOT_NULL",
					"severity":              "Medium",
					"description":           "Number of poles should be populated at no worse than the current rate",
					"rule_expression":       "zz_Number of Poles IS NOT NULL",
					"rule_expression_sql":   `SELECT * FROM products WHERE "zz_Number of Poles" IS NULL`,
					"row_predicate":         map[string]interface{}{"op": "not_null"},
					"threshold_percent":     58.0,
					"confidence_score":      0.8,
					"derived_from":          "missing_percentage: 55.09% (threshold at current state + 3%)",
					"sample_valid_values":   []string{"3"},
					"sample_invalid_values": []string{""},
				},
			},
		},
		{
			Attribute: "customer_email",
			Profiling: map[string]interface{}{
				"datatype":           "Text",
				"missing_percentage": 1.5,
				"cardinality":        "99.5%",
				"top_values": []map[string]interface{}{
					{"value": "john@example.com", "count": 1},
					{"value": "jane.doe@company.org", "count": 1},
				},
			},
			Rules: []map[string]interface{}{
				{
					"attribute_name":        "customer_email",
					"rule_category":         "Validity",
					"rule_type":             "FORMAT_PATTERN",
					"severity":              "Critical",
					"description":           "Customer email must be in valid email format",
					"rule_expression":       "customer_email MATCHES email pattern",
					"rule_expression_sql":   `SELECT * FROM products WHERE "customer_email" IS NOT NULL AND "customer_email" NOT REGEXP '^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$'`,
					"row_predicate":         map[string]interface{}{"op": "regex", "pattern": `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`},
					"threshold_percent":     0.5,
					"confidence_score":      0.98,
					"derived_from":          "top_values pattern: user@domain",
					"sample_valid_values":   []string{"user@domain.com", "name.surname@company.co.uk"},
					"sample_invalid_values": []string{"invalid", "missing@", "@nodomain.com"},
				},
			},
		},
	}
}

// FormatExemplars renders exemplars as Markdown sections with JSON blocks
func FormatExemplars(examples []Exemplar) (string, error) {
	var b strings.Builder
	for _, ex := range examples {
		profiling, err := json.MarshalIndent(ex.Profiling, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal exemplar profiling for %s: %w", ex.Attribute, err)
		}
		rules, err := json.MarshalIndent(ex.Rules, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal exemplar rules for %s: %w", ex.Attribute, err)
		}
		fmt.Fprintf(&b, "### Example: %s\nProfiling Statistics:\n```json\n%s\n```\n\nDerived Rules:\n```json\n%s\n```\n\n",
			ex.Attribute, profiling, rules)
	}
	return strings.TrimSpace(b.String()), nil
}
