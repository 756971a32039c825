package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"dqrules/domain/rule"
	"dqrules/domain/sample"
	"dqrules/internal/errors"
)

// CheckPredicate verifies that a predicate names a supported op and carries the
// parameters that op needs. It does not look at data.
func CheckPredicate(p rule.Predicate) error {
	switch p.Op {
	case rule.OpNotNull, rule.OpNotEmpty, rule.OpUnique, rule.OpCaseConsistent:
		return nil
	case rule.OpInSet:
		if len(p.Values) == 0 {
			return fmt.Errorf("in_set requires at least one value")
		}
	case rule.OpRange:
		if p.Min == nil && p.Max == nil {
			return fmt.Errorf("range requires min or max")
		}
		if err := checkBounds(p); err != nil {
			return err
		}
	case rule.OpLength:
		if p.Min == nil && p.Max == nil {
			return fmt.Errorf("length requires min or max")
		}
		if (p.Min != nil && *p.Min < 0) || (p.Max != nil && *p.Max < 0) {
			return fmt.Errorf("length bounds must be non-negative")
		}
		if err := checkBounds(p); err != nil {
			return err
		}
	case rule.OpRegex:
		if strings.TrimSpace(p.Pattern) == "" {
			return fmt.Errorf("regex requires a pattern")
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("regex pattern does not compile: %w", err)
		}
	case rule.OpDataType:
		switch p.ExpectedType {
		case rule.ExpectedNumeric, rule.ExpectedInteger, rule.ExpectedDate:
		default:
			return fmt.Errorf("data_type requires expected_type numeric, integer or date, got %q", p.ExpectedType)
		}
	default:
		return fmt.Errorf("unsupported predicate op %q", p.Op)
	}
	return nil
}

func checkBounds(p rule.Predicate) error {
	for _, b := range []*float64{p.Min, p.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return fmt.Errorf("%s bounds must be finite", p.Op)
		}
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		return fmt.Errorf("%s min %v exceeds max %v", p.Op, *p.Min, *p.Max)
	}
	return nil
}

// Evaluator decides, row by row, whether a value violates a predicate
type Evaluator struct {
	pred     rule.Predicate
	set      map[string]bool
	re       *regexp.Regexp
	counts   map[string]int
	dominant map[string]string
}

// Compile prepares a predicate for evaluation. column holds every sample value of
// the attribute; the sample-wide ops (unique, case_consistent) are computed from it.
func Compile(p rule.Predicate, column []string) (*Evaluator, error) {
	if err := CheckPredicate(p); err != nil {
		return nil, err
	}
	ev := &Evaluator{pred: p}

	switch p.Op {
	case rule.OpInSet:
		ev.set = make(map[string]bool, len(p.Values))
		for _, v := range p.Values {
			ev.set[strings.TrimSpace(v)] = true
		}
	case rule.OpRegex:
		ev.re = regexp.MustCompile(p.Pattern)
	case rule.OpUnique:
		ev.counts = make(map[string]int)
		for _, v := range column {
			if !sample.IsNull(v) {
				ev.counts[strings.TrimSpace(v)]++
			}
		}
	case rule.OpCaseConsistent:
		ev.dominant = dominantForms(column)
	}
	return ev, nil
}

// dominantForms maps each lower-cased value to its most frequent spelling; ties keep the first seen.
func dominantForms(column []string) map[string]string {
	type form struct {
		value string
		count int
		order int
	}
	groups := make(map[string]map[string]*form)
	order := 0
	for _, raw := range column {
		if sample.IsNull(raw) {
			continue
		}
		v := strings.TrimSpace(raw)
		key := strings.ToLower(v)
		if groups[key] == nil {
			groups[key] = make(map[string]*form)
		}
		f := groups[key][v]
		if f == nil {
			f = &form{value: v, order: order}
			order++
			groups[key][v] = f
		}
		f.count++
	}

	dominant := make(map[string]string, len(groups))
	for key, forms := range groups {
		var best *form
		for _, f := range forms {
			if best == nil || f.count > best.count || (f.count == best.count && f.order < best.order) {
				best = f
			}
		}
		dominant[key] = best.value
	}
	return dominant
}

// Fails reports whether value violates the predicate. An error means the row
// could not be evaluated and must be excluded from the denominator.
func (e *Evaluator) Fails(value string) (bool, error) {
	p := e.pred
	switch p.Op {
	case rule.OpNotNull:
		return sample.IsNull(value), nil
	case rule.OpNotEmpty:
		return sample.IsBlank(value), nil
	}

	// Every remaining op judges present values only
	if sample.IsNull(value) {
		return false, nil
	}
	trimmed := strings.TrimSpace(value)

	switch p.Op {
	case rule.OpInSet:
		return !e.set[trimmed], nil
	case rule.OpRange:
		f, err := cast.ToFloat64E(trimmed)
		if err != nil || math.IsNaN(f) {
			return false, errors.PredicateEvaluationError(fmt.Sprintf("value %q is not numeric", value))
		}
		return outside(f, p.Min, p.Max), nil
	case rule.OpRegex:
		return !e.re.MatchString(trimmed), nil
	case rule.OpLength:
		return outside(float64(utf8.RuneCountInString(value)), p.Min, p.Max), nil
	case rule.OpDataType:
		return !hasType(trimmed, p.ExpectedType), nil
	case rule.OpUnique:
		return e.counts[trimmed] > 1, nil
	case rule.OpCaseConsistent:
		dominant, ok := e.dominant[strings.ToLower(trimmed)]
		if !ok {
			return false, errors.PredicateEvaluationError(fmt.Sprintf("value %q was not part of the compiled sample", value))
		}
		return trimmed != dominant, nil
	}
	return false, errors.PredicateEvaluationError(fmt.Sprintf("unsupported predicate op %q", p.Op))
}

func outside(v float64, min, max *float64) bool {
	return (min != nil && v < *min) || (max != nil && v > *max)
}

func hasType(value, expected string) bool {
	switch expected {
	case rule.ExpectedNumeric:
		f, err := cast.ToFloat64E(value)
		return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case rule.ExpectedInteger:
		f, err := cast.ToFloat64E(value)
		return err == nil && !math.IsInf(f, 0) && f == math.Trunc(f)
	case rule.ExpectedDate:
		_, err := cast.ToTimeE(value)
		return err == nil
	}
	return false
}
