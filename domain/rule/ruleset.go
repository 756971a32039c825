package rule

import (
	"math"
	"sort"
	"time"
)

// Stage names the pipeline step where an attribute dropped out
type Stage string

const (
	StageProfile    Stage = "profile"
	StageSelection  Stage = "selection"
	StageDerivation Stage = "derivation"
)

// Unprocessed records an attribute that produced no rules, with the reason
type Unprocessed struct {
	Attribute string `json:"attribute_name"`
	Stage     Stage  `json:"stage"`
	Code      string `json:"error_code"`
	Reason    string `json:"reason"`
}

// Summary aggregates a rule set for reports
type Summary struct {
	TotalRules          int              `json:"total_rules"`
	AttributesCovered   int              `json:"attributes_covered"`
	UnprocessedCount    int              `json:"unprocessed_attributes"`
	ByCategory          map[Category]int `json:"by_category"`
	BySeverity          map[Severity]int `json:"by_severity"`
	AverageConfidence   float64          `json:"average_confidence"`
	AdjustedThresholds  int              `json:"adjusted_thresholds"`
	PassedValidation    int              `json:"passed_validation"`
	FailedValidation    int              `json:"failed_validation"`
	InconclusiveResults int              `json:"inconclusive_validation"`
}

// RuleSet is the final document written by the output formatter
type RuleSet struct {
	RunID          string                `json:"run_id"`
	DatasetName    string                `json:"dataset_name"`
	ParentClass    string                `json:"parent_class"`
	TotalRecords   int                   `json:"total_records"`
	ProfilingPath  string                `json:"source_profiling_path"`
	GeneratorType  string                `json:"generator_type"`
	Model          string                `json:"model,omitempty"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Summary        Summary               `json:"summary"`
	Rules          []Rule                `json:"rules"`
	ByCategory     map[Category][]string `json:"rules_by_category"`
	ByAttribute    map[string][]string   `json:"rules_by_attribute"`
	Unprocessed    []Unprocessed         `json:"unprocessed_attributes"`
	AttributeOrder []string              `json:"attribute_order"`
}

// Finalize recomputes the summary and grouped views from Rules and Unprocessed.
func (rs *RuleSet) Finalize() {
	if rs.Rules == nil {
		rs.Rules = []Rule{}
	}
	if rs.Unprocessed == nil {
		rs.Unprocessed = []Unprocessed{}
	}
	rs.ByCategory = make(map[Category][]string)
	rs.ByAttribute = make(map[string][]string)
	rs.AttributeOrder = make([]string, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		rs.ByCategory[r.Category] = append(rs.ByCategory[r.Category], r.ID)
		if _, seen := rs.ByAttribute[r.Attribute]; !seen {
			rs.AttributeOrder = append(rs.AttributeOrder, r.Attribute)
		}
		rs.ByAttribute[r.Attribute] = append(rs.ByAttribute[r.Attribute], r.ID)
	}
	rs.Summary = Summarize(rs.Rules, len(rs.Unprocessed))
}

// Summarize computes totals over rules
func Summarize(rules []Rule, unprocessed int) Summary {
	s := Summary{
		TotalRules:       len(rules),
		UnprocessedCount: unprocessed,
		ByCategory:       make(map[Category]int),
		BySeverity:       make(map[Severity]int),
	}
	attrs := make(map[string]bool)
	var confidence float64
	for _, r := range rules {
		attrs[r.Attribute] = true
		s.ByCategory[r.Category]++
		s.BySeverity[r.Severity]++
		confidence += r.Confidence
		if r.ThresholdAdjusted {
			s.AdjustedThresholds++
		}
		if r.Validation != nil {
			switch {
			case r.Validation.Inconclusive:
				s.InconclusiveResults++
			case r.Validation.Passed:
				s.PassedValidation++
			default:
				s.FailedValidation++
			}
		}
	}
	s.AttributesCovered = len(attrs)
	if len(rules) > 0 {
		s.AverageConfidence = math.Round(confidence/float64(len(rules))*1000) / 1000
	}
	return s
}

// GroupByCategory returns rules per category in Categories order, skipping empty groups
func GroupByCategory(rules []Rule) []Group[Category] {
	groups := make(map[Category][]Rule)
	for _, r := range rules {
		groups[r.Category] = append(groups[r.Category], r)
	}
	var out []Group[Category]
	for _, c := range Categories {
		if len(groups[c]) > 0 {
			out = append(out, Group[Category]{Key: c, Rules: groups[c]})
		}
	}
	return out
}

// GroupBySeverity returns rules per severity from Critical to Low
func GroupBySeverity(rules []Rule) []Group[Severity] {
	groups := make(map[Severity][]Rule)
	for _, r := range rules {
		groups[r.Severity] = append(groups[r.Severity], r)
	}
	var out []Group[Severity]
	for _, s := range Severities {
		if len(groups[s]) > 0 {
			out = append(out, Group[Severity]{Key: s, Rules: groups[s]})
		}
	}
	return out
}

// GroupByAttribute returns rules per attribute in first-appearance order
func GroupByAttribute(rules []Rule) []Group[string] {
	index := make(map[string]int)
	var out []Group[string]
	for _, r := range rules {
		i, ok := index[r.Attribute]
		if !ok {
			i = len(out)
			index[r.Attribute] = i
			out = append(out, Group[string]{Key: r.Attribute})
		}
		out[i].Rules = append(out[i].Rules, r)
	}
	return out
}

// Group is a labelled slice of rules
type Group[K comparable] struct {
	Key   K
	Rules []Rule
}

// SortedCategoryCounts returns category counts in Categories order, for stable rendering
func (s Summary) SortedCategoryCounts() []CategoryCount {
	var out []CategoryCount
	for _, c := range Categories {
		if n := s.ByCategory[c]; n > 0 {
			out = append(out, CategoryCount{Category: c, Count: n})
		}
	}
	var extra []CategoryCount
	for c, n := range s.ByCategory {
		if !c.Valid() {
			extra = append(extra, CategoryCount{Category: c, Count: n})
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Category < extra[j].Category })
	return append(out, extra...)
}

type CategoryCount struct {
	Category Category
	Count    int
}
