package validation

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat/distuv"

	"dqrules/domain/rule"
	"dqrules/domain/sample"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

// maxSampleFailures bounds the failing values kept as evidence
const maxSampleFailures = 5

// Options configures the validator
type Options struct {
	SampleSize int         // rows evaluated per rule; <= 0 evaluates the whole sample
	SQLChecker *SQLChecker // optional cross-check of the SQL form
}

// Validator measures each rule's failure rate on the bounded sample
type Validator struct {
	opts   Options
	logger *zap.Logger
	z      float64
}

// NewValidator creates a rule validator
func NewValidator(opts Options, logger *zap.Logger) *Validator {
	return &Validator{
		opts:   opts,
		logger: logging.OrNop(logger),
		z:      distuv.UnitNormal.Quantile(0.975),
	}
}

// Validate evaluates r's row predicate against the sample. Rows whose value cannot
// be evaluated are excluded from the denominator. With no evaluable rows the result
// is inconclusive with a 0% rate, never a pass.
func (v *Validator) Validate(ctx context.Context, r rule.Rule, s *sample.Sample) rule.ValidationResult {
	rows := v.rows(s)
	result := rule.ValidationResult{RuleID: r.ID, SampleSize: len(rows)}

	switch {
	case len(rows) == 0:
		result.Inconclusive = true
		result.Note = "no sample rows available"
		return result
	case !s.HasColumn(r.Attribute):
		result.ExcludedRows = len(rows)
		result.Inconclusive = true
		result.Note = "attribute column not present in sample"
		return result
	}

	column := make([]string, len(rows))
	for i, row := range rows {
		column[i] = row[r.Attribute]
	}

	ev, err := Compile(r.Predicate, column)
	if err != nil {
		result.ExcludedRows = len(rows)
		result.Inconclusive = true
		result.Note = "predicate cannot be evaluated: " + err.Error()
		return result
	}

	seen := make(map[string]bool)
	var firstErr error
	for _, value := range column {
		failed, err := ev.Fails(value)
		if err != nil {
			result.ExcludedRows++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.EvaluatedRows++
		if !failed {
			continue
		}
		result.FailureCount++
		if len(result.SampleFailures) < maxSampleFailures && !seen[value] {
			seen[value] = true
			result.SampleFailures = append(result.SampleFailures, value)
		}
	}

	if result.ExcludedRows > 0 {
		v.logger.Debug("[RuleValidator] rows excluded from evaluation",
			zap.String("rule_id", r.ID),
			zap.Int("excluded", result.ExcludedRows),
			zap.Error(firstErr))
	}

	if result.EvaluatedRows == 0 {
		result.Inconclusive = true
		result.Note = errors.ValidationInconclusive(r.ID, result.ExcludedRows).Error()
		if firstErr != nil {
			result.Note += ": " + firstErr.Error()
		}
	} else {
		rate := float64(result.FailureCount) / float64(result.EvaluatedRows) * 100
		result.FailureRatePercent = roundTo(rate, 4)
		result.ConfidenceLow, result.ConfidenceHigh = v.wilson(result.FailureCount, result.EvaluatedRows)
		result.Passed = result.FailureRatePercent <= r.ThresholdPercent
	}

	if v.opts.SQLChecker != nil && strings.TrimSpace(r.SQL) != "" {
		count, err := v.opts.SQLChecker.CountViolations(ctx, r.SQL)
		if err != nil {
			result.SQLError = err.Error()
		} else {
			result.SQLFailureCount = &count
		}
	}

	return result
}

func (v *Validator) rows(s *sample.Sample) []sample.Row {
	if s == nil {
		return nil
	}
	if v.opts.SampleSize > 0 && len(s.Rows) > v.opts.SampleSize {
		return s.Rows[:v.opts.SampleSize]
	}
	return s.Rows
}

// wilson returns the 95% Wilson score interval for failures/n, in percent
func (v *Validator) wilson(failures, n int) (float64, float64) {
	if n == 0 {
		return 0, 0
	}
	nf := float64(n)
	p := float64(failures) / nf
	z2 := v.z * v.z
	denom := 1 + z2/nf
	center := (p + z2/(2*nf)) / denom
	half := v.z * math.Sqrt(p*(1-p)/nf+z2/(4*nf*nf)) / denom
	low := math.Max(0, center-half)
	high := math.Min(1, center+half)
	return roundTo(low*100, 4), roundTo(high*100, 4)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
