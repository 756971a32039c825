package profiling

import (
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cast"

	"dqrules/domain/sample"
)

// NumericSummary describes the numeric values of a sample column
type NumericSummary struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Skewness float64 `json:"skewness"`
	Outliers int     `json:"iqr_outliers"`
}

// LowerFence and UpperFence bound the Tukey fences at 1.5 IQR
func (n NumericSummary) LowerFence() float64 { return n.Q25 - 1.5*(n.Q75-n.Q25) }
func (n NumericSummary) UpperFence() float64 { return n.Q75 + 1.5*(n.Q75-n.Q25) }

// ColumnSummary describes one sample column for prompts and offline rule generation
type ColumnSummary struct {
	Attribute    string          `json:"attribute_name"`
	Rows         int             `json:"rows"`
	NonNull      int             `json:"non_null"`
	Distinct     int             `json:"distinct"`
	Duplicates   int             `json:"duplicate_values"`
	NumericShare float64         `json:"numeric_share"`
	MinLength    int             `json:"min_length"`
	MaxLength    int             `json:"max_length"`
	Numeric      *NumericSummary `json:"numeric,omitempty"`
	Examples     []string        `json:"examples,omitempty"`
}

// numericShareFloor is the share of parseable values needed before a column is summarised numerically
const numericShareFloor = 0.8

// SummarizeColumn computes a ColumnSummary. It returns nil when the column is
// not part of the sample.
func SummarizeColumn(s *sample.Sample, column string) *ColumnSummary {
	if !s.HasColumn(column) {
		return nil
	}
	summary := &ColumnSummary{Attribute: column, Rows: s.Len()}

	counts := make(map[string]int)
	var numbers []float64
	for _, raw := range s.Column(column) {
		if sample.IsNull(raw) {
			continue
		}
		value := strings.TrimSpace(raw)
		summary.NonNull++
		if counts[value] == 0 && len(summary.Examples) < 5 {
			summary.Examples = append(summary.Examples, value)
		}
		counts[value]++

		length := len([]rune(value))
		if summary.NonNull == 1 || length < summary.MinLength {
			summary.MinLength = length
		}
		if length > summary.MaxLength {
			summary.MaxLength = length
		}

		if f, err := cast.ToFloat64E(value); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			numbers = append(numbers, f)
		}
	}

	summary.Distinct = len(counts)
	for _, n := range counts {
		if n > 1 {
			summary.Duplicates += n - 1
		}
	}
	if summary.NonNull > 0 {
		summary.NumericShare = float64(len(numbers)) / float64(summary.NonNull)
	}
	if summary.NumericShare >= numericShareFloor && len(numbers) > 0 {
		if numeric, err := SummarizeNumbers(numbers); err == nil {
			summary.Numeric = &numeric
		}
	}
	return summary
}

// SummarizeNumbers computes descriptive statistics for data
func SummarizeNumbers(data []float64) (NumericSummary, error) {
	summary := NumericSummary{Count: len(data)}

	mean, err := stats.Mean(data)
	if err != nil {
		return summary, err
	}
	stdDev, err := stats.StandardDeviation(data)
	if err != nil {
		return summary, err
	}
	min, err := stats.Min(data)
	if err != nil {
		return summary, err
	}
	max, err := stats.Max(data)
	if err != nil {
		return summary, err
	}
	median, err := stats.Median(data)
	if err != nil {
		return summary, err
	}

	// Quartiles need at least two points in montanaflynn/stats
	q25, q75 := median, median
	if len(data) > 1 {
		if q, err := stats.Percentile(data, 25); err == nil {
			q25 = q
		}
		if q, err := stats.Percentile(data, 75); err == nil {
			q75 = q
		}
	}

	summary.Mean = mean
	summary.StdDev = stdDev
	summary.Min = min
	summary.Max = max
	summary.Median = median
	summary.Q25 = q25
	summary.Q75 = q75
	summary.Skewness = calculateSkewness(data, mean, stdDev)
	summary.Outliers = detectOutliers(data, q25, q75)
	return summary, nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}

	n := float64(len(data))
	sumCubedDeviations := 0.0
	for _, x := range data {
		deviation := (x - mean) / stdDev
		sumCubedDeviations += deviation * deviation * deviation
	}

	skewness := sumCubedDeviations / n
	correction := math.Sqrt(n*(n-1)) / (n - 2)
	return skewness * correction
}

// detectOutliers counts values outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
