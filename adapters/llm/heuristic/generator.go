// Package heuristic derives rules offline from profiling facts alone. It backs
// dry runs and tests where no LLM provider is configured.
package heuristic

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/internal/errors"
	"dqrules/ports"
)

const (
	// sparseMissingPercent is the missing share above which no completeness rule is written
	sparseMissingPercent = 80
	// enumerationCardinality is the distinct share up to which top values form a value set
	enumerationCardinality = 50
	maxSetValues           = 20
)

// Generator creates rules using fixed heuristics over the attribute profile
type Generator struct{}

// NewGenerator creates a new heuristic rule generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate implements RuleGenerator. Output depends only on the request.
func (g *Generator) Generate(ctx context.Context, req ports.GenerationRequest) (*ports.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := req.Profile
	var rules []rule.Rule
	rules = appendIf(rules, completeness(p))
	rules = appendIf(rules, uniqueness(p))
	rules = appendIf(rules, numericRange(p))
	rules = appendIf(rules, numericType(p, req))
	rules = appendIf(rules, valueSet(p))
	rules = appendIf(rules, caseConsistency(p))
	rules = appendIf(rules, textLength(p, req))

	audit := ports.GenerationAudit{GeneratorType: ports.GeneratorHeuristic}
	if len(rules) == 0 {
		return &ports.Generation{Audit: audit},
			errors.DerivationError(p.Name, fmt.Errorf("no heuristic applies to datatype %s", p.Datatype))
	}
	return &ports.Generation{Rules: rules, Audit: audit}, nil
}

func appendIf(rules []rule.Rule, r *rule.Rule) []rule.Rule {
	if r == nil {
		return rules
	}
	return append(rules, *r)
}

func completeness(p profile.AttributeProfile) *rule.Rule {
	missing := p.MissingPercent()
	if missing > sparseMissingPercent {
		return nil
	}
	return &rule.Rule{
		Attribute:        p.Name,
		Category:         rule.CategoryCompleteness,
		Type:             rule.TypeNotNull,
		Severity:         profile.MissingSeverity(missing),
		Description:      fmt.Sprintf("%s should be populated", p.Name),
		Expression:       fmt.Sprintf("%s IS NOT NULL", p.Name),
		SQL:              fmt.Sprintf("SELECT * FROM products WHERE %s IS NULL", quoteIdent(p.Name)),
		Predicate:        rule.Predicate{Op: rule.OpNotNull},
		ThresholdPercent: ceilPercent(missing * 1.1),
		Confidence:       0.9,
		DerivedFrom:      fmt.Sprintf("missing_percentage: %.2f%%", missing),
	}
}

func uniqueness(p profile.AttributeProfile) *rule.Rule {
	if p.Datatype != profile.DatatypeID && !p.IsHighCardinality() {
		return nil
	}
	col := quoteIdent(p.Name)
	return &rule.Rule{
		Attribute:   p.Name,
		Category:    rule.CategoryUniqueness,
		Type:        rule.TypePrimaryKey,
		Severity:    rule.SeverityCritical,
		Description: fmt.Sprintf("%s values should be unique", p.Name),
		Expression:  fmt.Sprintf("COUNT(DISTINCT %s) = COUNT(%s)", p.Name, p.Name),
		SQL: fmt.Sprintf("SELECT * FROM products WHERE %s IN (SELECT %s FROM products WHERE %s IS NOT NULL GROUP BY %s HAVING COUNT(*) > 1)",
			col, col, col, col),
		Predicate:        rule.Predicate{Op: rule.OpUnique},
		ThresholdPercent: ceilPercent(100 - p.CardinalityPercent()),
		Confidence:       0.85,
		DerivedFrom:      fmt.Sprintf("cardinality: %.2f%%", p.CardinalityPercent()),
	}
}

func numericRange(p profile.AttributeProfile) *rule.Rule {
	if p.Datatype != profile.DatatypeNumeric || p.Range == nil {
		return nil
	}
	lo, hi := p.Range.Min, p.Range.Max
	return &rule.Rule{
		Attribute:        p.Name,
		Category:         rule.CategoryValidity,
		Type:             rule.TypeRange,
		Severity:         p.RecommendedSeverity(),
		Description:      fmt.Sprintf("%s should lie between %s and %s", p.Name, num(lo), num(hi)),
		Expression:       fmt.Sprintf("%s BETWEEN %s AND %s", p.Name, num(lo), num(hi)),
		SQL:              fmt.Sprintf("SELECT * FROM products WHERE CAST(%s AS REAL) NOT BETWEEN %s AND %s", quoteIdent(p.Name), num(lo), num(hi)),
		Predicate:        rule.Predicate{Op: rule.OpRange, Min: &lo, Max: &hi},
		ThresholdPercent: 1,
		Confidence:       0.8,
		DerivedFrom:      fmt.Sprintf("range: %s to %s", num(lo), num(hi)),
	}
}

func numericType(p profile.AttributeProfile, req ports.GenerationRequest) *rule.Rule {
	if p.Datatype != profile.DatatypeNumeric {
		return nil
	}
	threshold := 1.0
	if req.Sample != nil && req.Sample.NonNull > 0 {
		threshold = math.Max(threshold, ceilPercent((1-req.Sample.NumericShare)*100*1.1))
	}
	return &rule.Rule{
		Attribute:        p.Name,
		Category:         rule.CategoryValidity,
		Type:             rule.TypeDataType,
		Severity:         rule.SeverityMedium,
		Description:      fmt.Sprintf("%s should be numeric", p.Name),
		Expression:       fmt.Sprintf("IS_NUMERIC(%s)", p.Name),
		SQL:              fmt.Sprintf(`SELECT * FROM products WHERE %s IS NOT NULL AND TRIM(%s) NOT REGEXP '^[-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?$'`, quoteIdent(p.Name), quoteIdent(p.Name)),
		Predicate:        rule.Predicate{Op: rule.OpDataType, ExpectedType: rule.ExpectedNumeric},
		ThresholdPercent: math.Min(threshold, 100),
		Confidence:       0.8,
		DerivedFrom:      "datatype: Numeric",
	}
}

func valueSet(p profile.AttributeProfile) *rule.Rule {
	if p.Datatype != profile.DatatypeCategorical && p.Datatype != profile.DatatypeConstant {
		return nil
	}
	if len(p.TopValues) == 0 || p.CardinalityPercent() > enumerationCardinality {
		return nil
	}
	values := p.TopValueStrings(maxSetValues)
	literals := make([]string, len(values))
	for i, v := range values {
		literals[i] = quoteLiteral(v)
	}
	return &rule.Rule{
		Attribute:         p.Name,
		Category:          rule.CategoryValidity,
		Type:              rule.TypeValueSet,
		Severity:          p.RecommendedSeverity(),
		Description:       fmt.Sprintf("%s should be one of the %d observed values", p.Name, len(values)),
		Expression:        fmt.Sprintf("%s IN (%s)", p.Name, strings.Join(literals, ", ")),
		SQL:               fmt.Sprintf("SELECT * FROM products WHERE %s IS NOT NULL AND TRIM(%s) NOT IN (%s)", quoteIdent(p.Name), quoteIdent(p.Name), strings.Join(literals, ", ")),
		Predicate:         rule.Predicate{Op: rule.OpInSet, Values: values},
		ThresholdPercent:  5,
		Confidence:        0.75,
		DerivedFrom:       fmt.Sprintf("top_values: %d values, cardinality %.2f%%", len(values), p.CardinalityPercent()),
		SampleValidValues: values[:min(3, len(values))],
	}
}

func caseConsistency(p profile.AttributeProfile) *rule.Rule {
	if !p.HasCaseVariants() {
		return nil
	}
	col := quoteIdent(p.Name)
	return &rule.Rule{
		Attribute:   p.Name,
		Category:    rule.CategoryConsistency,
		Type:        rule.TypeCaseConsistency,
		Severity:    rule.SeverityLow,
		Description: fmt.Sprintf("%s should use one spelling per value regardless of case", p.Name),
		Expression:  fmt.Sprintf("one casing per LOWER(%s)", p.Name),
		SQL: fmt.Sprintf("SELECT * FROM products p WHERE %s IS NOT NULL AND %s <> (SELECT q.%s FROM products q WHERE LOWER(q.%s) = LOWER(p.%s) GROUP BY q.%s ORDER BY COUNT(*) DESC, MIN(q.rowid) LIMIT 1)",
			col, col, col, col, col, col),
		Predicate:        rule.Predicate{Op: rule.OpCaseConsistent},
		ThresholdPercent: 5,
		Confidence:       0.7,
		DerivedFrom:      "top_values: case variants",
	}
}

func textLength(p profile.AttributeProfile, req ports.GenerationRequest) *rule.Rule {
	if p.Datatype != profile.DatatypeText || req.Sample == nil || req.Sample.MaxLength == 0 {
		return nil
	}
	hi := float64(req.Sample.MaxLength)
	return &rule.Rule{
		Attribute:        p.Name,
		Category:         rule.CategoryValidity,
		Type:             rule.TypeLength,
		Severity:         rule.SeverityLow,
		Description:      fmt.Sprintf("%s should be at most %d characters", p.Name, req.Sample.MaxLength),
		Expression:       fmt.Sprintf("LENGTH(%s) <= %d", p.Name, req.Sample.MaxLength),
		SQL:              fmt.Sprintf("SELECT * FROM products WHERE LENGTH(%s) > %d", quoteIdent(p.Name), req.Sample.MaxLength),
		Predicate:        rule.Predicate{Op: rule.OpLength, Max: &hi},
		ThresholdPercent: 1,
		Confidence:       0.6,
		DerivedFrom:      fmt.Sprintf("sample max_length: %d", req.Sample.MaxLength),
	}
}

// ceilPercent rounds up to two decimals and caps at 100
func ceilPercent(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Min(math.Ceil(v*100-1e-9)/100, 100)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
