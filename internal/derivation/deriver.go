package derivation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dqrules/domain/core"
	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/domain/sample"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/internal/metrics"
	"dqrules/internal/profiling"
	"dqrules/internal/usage"
	"dqrules/models"
	"dqrules/ports"
)

// AttributeAudit is the generation trail of one attribute
type AttributeAudit struct {
	Attribute string                `json:"attribute_name"`
	Rules     int                   `json:"rules"`
	Error     string                `json:"error,omitempty"`
	Audit     ports.GenerationAudit `json:"audit"`
}

// Result holds the rules of every attribute in derivation order
type Result struct {
	Rules       []rule.Rule
	Unprocessed []rule.Unprocessed
	Audits      []AttributeAudit
}

// Deriver runs the rule generator over the selected attributes one at a time
type Deriver struct {
	generator ports.RuleGenerator
	usage     *usage.Service
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewDeriver creates a deriver; tracker and m may be nil
func NewDeriver(generator ports.RuleGenerator, tracker *usage.Service, m *metrics.Metrics, logger *zap.Logger) *Deriver {
	return &Deriver{generator: generator, usage: tracker, metrics: m, logger: logging.OrNop(logger)}
}

// Derive generates rules for attributes in order. A failed attribute is recorded
// as unprocessed and the loop continues; only context cancellation stops it.
// Rule IDs are assigned as rules are appended.
func (d *Deriver) Derive(ctx context.Context, runID core.RunID, dataset profile.DatasetContext,
	set *profile.Set, attributes []string, s *sample.Sample) (*Result, error) {

	result := &Result{}
	ids := rule.NewIDAllocator()

	for i, name := range attributes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		p, ok := set.Get(name)
		if !ok {
			result.Unprocessed = append(result.Unprocessed, rule.Unprocessed{
				Attribute: name, Stage: rule.StageDerivation,
				Code: errors.CodeDerivationError, Reason: "no profile for attribute",
			})
			continue
		}

		req := ports.GenerationRequest{
			Dataset:         dataset,
			Profile:         p,
			Recommendations: p.RecommendedRuleTypes(),
		}
		if s != nil {
			req.Sample = profiling.SummarizeColumn(s, name)
		}

		d.logger.Info("[RuleDeriver] deriving rules",
			zap.Int("position", i+1),
			zap.Int("of", len(attributes)),
			zap.String("attribute", name))

		start := time.Now()
		gen, err := d.generator.Generate(ctx, req)
		d.metrics.ObserveGeneration(time.Since(start))

		audit := AttributeAudit{Attribute: name}
		if gen != nil {
			audit.Audit = gen.Audit
			d.recordUsage(ctx, runID, name, gen.Audit.Usage)
		}

		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if !errors.HasCode(err, errors.CodeDerivationError) {
				err = errors.DerivationError(name, err)
			}
			d.metrics.DerivationFailed()
			d.logger.Warn("[RuleDeriver] attribute left unprocessed",
				zap.String("attribute", name),
				zap.Error(err))
			audit.Error = err.Error()
			result.Audits = append(result.Audits, audit)
			result.Unprocessed = append(result.Unprocessed, rule.Unprocessed{
				Attribute: name,
				Stage:     rule.StageDerivation,
				Code:      errors.CodeDerivationError,
				Reason:    err.Error(),
			})
			continue
		}

		for _, r := range gen.Rules {
			r.ID = ids.Next(r.Attribute, r.Category)
			result.Rules = append(result.Rules, r)
			d.metrics.RuleDerived(string(r.Category))
		}
		audit.Rules = len(gen.Rules)
		result.Audits = append(result.Audits, audit)
	}

	return result, nil
}

func (d *Deriver) recordUsage(ctx context.Context, runID core.RunID, attribute string, u *ports.UsageData) {
	if u == nil {
		return
	}
	d.metrics.AddTokens(u.Model, u.PromptTokens, u.CompletionTokens)
	if d.usage != nil {
		d.usage.RecordUsage(ctx, runID, attribute, models.OpRuleDerivation, u)
	}
}
