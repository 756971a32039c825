package ai

import (
	"fmt"
	"strings"

	"dqrules/domain/profile"
)

// CompileGuidance turns an attribute's profile into short directives that anchor
// the model to the observed data state.
func CompileGuidance(p profile.AttributeProfile) []string {
	var out []string
	missing := p.MissingPercent()

	switch {
	case missing > 80:
		out = append(out, fmt.Sprintf(
			"SPARSE: %.2f%% of values are missing. Do NOT write Completeness rules; validate only the values present, Low or Medium severity.",
			missing))
	case missing >= 50:
		out = append(out, fmt.Sprintf(
			"PARTIAL: %.2f%% missing. Any Completeness threshold must stay within 5 points of the current state.",
			missing))
	case missing > 0:
		out = append(out, fmt.Sprintf(
			"COMPLETENESS: %.2f%% missing. Set the NOT_NULL threshold at or slightly above the current rate.",
			missing))
	default:
		out = append(out, "COMPLETENESS: no missing values observed; a strict NOT_NULL rule is appropriate.")
	}

	if p.Range != nil {
		out = append(out, fmt.Sprintf(
			"RANGE: observed values span %s to %s; derive RANGE bounds from this span, not from theory.",
			formatNumber(p.Range.Min), formatNumber(p.Range.Max)))
	}

	if p.IsHighCardinality() {
		out = append(out, fmt.Sprintf(
			"UNIQUENESS: %.2f%% of values are distinct; consider PRIMARY_KEY or NEAR_DUPLICATE.",
			p.CardinalityPercent()))
	} else if len(p.TopValues) > 0 && p.CardinalityPercent() < 1 {
		out = append(out, "ENUMERATION: few distinct values; a VALUE_SET rule over the observed top values is likely.")
	}

	if p.HasCaseVariants() {
		out = append(out, "CONSISTENCY: top values differ only by letter case; add a CASE_CONSISTENCY rule.")
	}

	out = append(out, fmt.Sprintf("SEVERITY: profile suggests %s as the default severity.", p.RecommendedSeverity()))

	// Deduplicate while preserving order
	seen := make(map[string]struct{}, len(out))
	dedup := out[:0]
	for _, s := range out {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dedup = append(dedup, s)
	}
	return dedup
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", v), "0"), ".")
}
