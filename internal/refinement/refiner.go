package refinement

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"dqrules/domain/rule"
	"dqrules/internal/logging"
)

// Reference adjustment parameters
const (
	DefaultMultiplier = 1.5
	DefaultMargin     = 1.1
)

// Options configures threshold adjustment
type Options struct {
	Multiplier float64 // adjust when observed > declared * Multiplier
	Margin     float64 // new threshold = observed * Margin, capped at 100
}

// Refiner raises thresholds that the sample contradicts and removes duplicate rules
type Refiner struct {
	opts   Options
	logger *zap.Logger
}

// NewRefiner creates a refiner; zero options fall back to the reference values
func NewRefiner(opts Options, logger *zap.Logger) *Refiner {
	if opts.Multiplier < 1 {
		opts.Multiplier = DefaultMultiplier
	}
	if opts.Margin < 1 {
		opts.Margin = DefaultMargin
	}
	return &Refiner{opts: opts, logger: logging.OrNop(logger)}
}

// Adjust returns r with the validation result attached and, when the observed
// failure rate exceeds the declared threshold by more than the multiplier, a
// threshold raised to observed*margin (rounded up to two decimals, capped at 100).
// Inconclusive results never adjust.
func (f *Refiner) Adjust(r rule.Rule, result rule.ValidationResult) rule.Rule {
	res := result
	r.Validation = &res

	if result.Inconclusive {
		return r
	}
	observed := result.FailureRatePercent
	if observed <= r.ThresholdPercent*f.opts.Multiplier {
		return r
	}

	newThreshold := math.Min(math.Ceil(observed*f.opts.Margin*100-1e-9)/100, 100)

	if r.OriginalThreshold == nil {
		original := r.ThresholdPercent
		r.OriginalThreshold = &original
	}
	f.logger.Info("[ThresholdRefiner] threshold adjusted",
		zap.String("rule_id", r.ID),
		zap.Float64("declared", r.ThresholdPercent),
		zap.Float64("observed", observed),
		zap.Float64("adjusted", newThreshold))

	r.ThresholdPercent = newThreshold
	if !r.ThresholdAdjusted {
		r.DerivedFrom = strings.TrimSpace(r.DerivedFrom + " (threshold adjusted)")
	}
	r.ThresholdAdjusted = true
	return r
}

// NormalizeDescription lower-cases s and collapses runs of whitespace
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupKey identifies rules that state the same check
func DedupKey(r rule.Rule) string {
	return r.Attribute + "\x00" + string(r.Category) + "\x00" + NormalizeDescription(r.Description)
}

// Dedup keeps one rule per DedupKey: the highest confidence, ties going to the
// earliest. Survivors stay in the position of their key's first occurrence.
func (f *Refiner) Dedup(rules []rule.Rule) []rule.Rule {
	out := Dedup(rules)
	if removed := len(rules) - len(out); removed > 0 {
		f.logger.Info("[ThresholdRefiner] removed duplicate rules",
			zap.Int("before", len(rules)),
			zap.Int("after", len(out)))
	}
	return out
}

// Dedup is the logger-free form of Refiner.Dedup
func Dedup(rules []rule.Rule) []rule.Rule {
	index := make(map[string]int, len(rules))
	out := make([]rule.Rule, 0, len(rules))
	for _, r := range rules {
		key := DedupKey(r)
		if i, ok := index[key]; ok {
			if r.Confidence > out[i].Confidence {
				out[i] = r
			}
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
