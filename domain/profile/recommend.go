package profile

import (
	"sort"
	"strings"

	"dqrules/domain/rule"
)

var datatypeRuleTypes = map[Datatype][]rule.Type{
	DatatypeID:          {rule.TypePrimaryKey, rule.TypeFormatPattern, rule.TypeNotNull},
	DatatypeNumeric:     {rule.TypeRange, rule.TypeDataType, rule.TypeStatisticalBounds, rule.TypePrecision},
	DatatypeCategorical: {rule.TypeValueSet, rule.TypeCaseConsistency, rule.TypeFormatConsistency},
	DatatypeText:        {rule.TypeFormatPattern, rule.TypeLength, rule.TypeNotEmpty},
	DatatypeConstant:    {rule.TypeValueSet},
}

// MissingSeverity maps a missing percentage onto the severity band a completeness rule gets.
// Bands are half-open: [0,5) Critical, [5,20) High, [20,50) Medium, [50,100] Low.
func MissingSeverity(missingPercent float64) rule.Severity {
	switch {
	case missingPercent < 5:
		return rule.SeverityCritical
	case missingPercent < 20:
		return rule.SeverityHigh
	case missingPercent < 50:
		return rule.SeverityMedium
	default:
		return rule.SeverityLow
	}
}

// Recommendation is a suggested rule type with an optional severity hint
type Recommendation struct {
	Type     rule.Type     `json:"rule_type"`
	Severity rule.Severity `json:"severity,omitempty"`
}

func (r Recommendation) String() string {
	if r.Severity == "" {
		return string(r.Type)
	}
	return string(r.Type) + ":" + string(r.Severity)
}

// RecommendedRuleTypes lists rule types that fit the profile, sorted by type name.
func (p AttributeProfile) RecommendedRuleTypes() []Recommendation {
	seen := make(map[rule.Type]Recommendation)
	add := func(r Recommendation) {
		if _, ok := seen[r.Type]; !ok {
			seen[r.Type] = r
		}
	}

	for _, t := range datatypeRuleTypes[p.Datatype] {
		add(Recommendation{Type: t})
	}

	missing := p.MissingPercent()
	if missing > 0 && missing < 100 {
		if existing, ok := seen[rule.TypeNotNull]; ok {
			existing.Severity = MissingSeverity(missing)
			seen[rule.TypeNotNull] = existing
		} else {
			add(Recommendation{Type: rule.TypeNotNull, Severity: MissingSeverity(missing)})
		}
	}

	switch {
	case p.IsHighCardinality():
		add(Recommendation{Type: rule.TypePrimaryKey})
	case p.CardinalityPercent() > 80:
		add(Recommendation{Type: rule.TypeNearDuplicate})
	}

	if p.Datatype == DatatypeCategorical && p.HasCaseVariants() {
		add(Recommendation{Type: rule.TypeCaseConsistency})
	}

	out := make([]Recommendation, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// HasCaseVariants reports whether two of the top ten values differ only by case.
func (p AttributeProfile) HasCaseVariants() bool {
	seen := make(map[string]bool)
	for _, v := range p.TopValueStrings(10) {
		key := strings.ToLower(v)
		if seen[key] {
			return true
		}
		seen[key] = true
	}
	return false
}

// RecommendedSeverity suggests the default severity for rules on this attribute.
func (p AttributeProfile) RecommendedSeverity() rule.Severity {
	if p.IsHighCardinality() {
		return rule.SeverityCritical
	}
	missing := p.MissingPercent()
	switch {
	case missing < 5:
		return rule.SeverityHigh
	case missing < 20:
		return rule.SeverityMedium
	default:
		return rule.SeverityLow
	}
}
