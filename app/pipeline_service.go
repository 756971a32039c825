package app

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"dqrules/adapters/excel"
	"dqrules/adapters/export"
	"dqrules/domain/core"
	"dqrules/domain/profile"
	"dqrules/domain/rule"
	"dqrules/domain/sample"
	"dqrules/internal/config"
	"dqrules/internal/derivation"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/internal/metrics"
	"dqrules/internal/profiling"
	"dqrules/internal/refinement"
	"dqrules/internal/selection"
	"dqrules/internal/usage"
	"dqrules/internal/validation"
	"dqrules/models"
	"dqrules/ports"
)

// PipelineService runs profile → select → derive → validate → refine → format
type PipelineService struct {
	cfg       *config.Config
	generator ports.RuleGenerator
	runs      ports.RunRepository
	usage     *usage.Service
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewPipelineService wires the pipeline. runs, tracker and m may be nil.
func NewPipelineService(cfg *config.Config, generator ports.RuleGenerator, runs ports.RunRepository,
	tracker *usage.Service, m *metrics.Metrics, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		cfg:       cfg,
		generator: generator,
		runs:      runs,
		usage:     tracker,
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// Outputs lists the files written for a rule set; empty paths were not written
type Outputs struct {
	JSON     string
	Excel    string
	Markdown string
	HTML     string
}

// PipelineResult is the outcome of one derive run
type PipelineResult struct {
	RunID           core.RunID
	RuleSet         *rule.RuleSet
	Outputs         Outputs
	Audits          []derivation.AttributeAudit
	Usage           *models.UsageSummary
	MissingPriority []string
}

// Run executes the whole pipeline. Only missing profiles, an empty selection,
// cancellation or an unwritable output abort it; per-attribute failures end up
// in the rule set's unprocessed list.
func (s *PipelineService) Run(ctx context.Context) (*PipelineResult, error) {
	if s.generator == nil {
		return nil, errors.ConfigInvalid("no rule generator configured")
	}
	runID := core.NewRunID()
	started := time.Now()
	logger := s.logger.With(zap.String("run_id", runID.String()))

	loaded, err := profiling.NewLoader(logger).LoadFile(s.cfg.Inputs.ProfilingPath)
	if err != nil {
		return nil, err
	}
	set := loaded.Profiles

	smp := s.loadSample(s.cfg.Inputs.SamplePath, s.cfg.Inputs.SampleSheet, logger)

	sel, err := selection.NewSelector(s.priorityList(logger), s.cfg.Selection.MaxAttributes, logger).
		Select(set, loaded.Failed)
	if err != nil {
		return nil, err
	}

	dataset := profile.BuildContext(set, s.cfg.Dataset.Name, s.cfg.Inputs.SamplePath)
	if s.cfg.Dataset.ParentClass != "" {
		dataset.ParentClass = s.cfg.Dataset.ParentClass
	}

	s.createRun(ctx, &models.Run{
		ID:            runID,
		DatasetName:   dataset.Name,
		ParentClass:   dataset.ParentClass,
		TotalRecords:  dataset.TotalRecords,
		ProfilingPath: s.cfg.Inputs.ProfilingPath,
		SamplePath:    s.cfg.Inputs.SamplePath,
		GeneratorType: s.generatorType(),
		Model:         s.model(),
		Status:        models.RunRunning,
		StartedAt:     started,
	}, logger)

	logger.Info("[Pipeline] deriving rules",
		zap.String("dataset", dataset.Name),
		zap.String("parent_class", dataset.ParentClass),
		zap.Int("attributes", len(sel.Attributes)))

	derived, err := derivation.NewDeriver(s.generator, s.usage, s.metrics, logger).
		Derive(ctx, runID, dataset, set, sel.Attributes, smp)
	if err != nil {
		s.failRun(runID, err, logger)
		return nil, err
	}

	rules, err := s.refine(ctx, derived.Rules, smp, logger)
	if err != nil {
		s.failRun(runID, err, logger)
		return nil, err
	}

	unprocessed := append(append([]rule.Unprocessed{}, sel.Skipped...), derived.Unprocessed...)
	rs := &rule.RuleSet{
		RunID:         runID.String(),
		DatasetName:   dataset.Name,
		ParentClass:   dataset.ParentClass,
		TotalRecords:  dataset.TotalRecords,
		ProfilingPath: s.cfg.Inputs.ProfilingPath,
		GeneratorType: s.generatorType(),
		Model:         s.model(),
		GeneratedAt:   time.Now().UTC(),
		Rules:         rules,
		Unprocessed:   unprocessed,
	}
	rs.Finalize()

	outputs, err := s.writeOutputs(rs, logger)
	if err != nil {
		s.failRun(runID, err, logger)
		return nil, err
	}

	var usageSummary *models.UsageSummary
	if s.usage != nil {
		s.usage.Wait()
		usageSummary = s.usage.Summary(runID)
	}
	s.completeRun(ctx, rs, logger)

	logger.Info("[Pipeline] run complete",
		zap.Int("rules", rs.Summary.TotalRules),
		zap.Int("attributes_covered", rs.Summary.AttributesCovered),
		zap.Int("unprocessed", rs.Summary.UnprocessedCount),
		zap.Int("adjusted", rs.Summary.AdjustedThresholds),
		zap.Duration("elapsed", time.Since(started)),
		zap.String("output", outputs.JSON))

	return &PipelineResult{
		RunID:           runID,
		RuleSet:         rs,
		Outputs:         outputs,
		Audits:          derived.Audits,
		Usage:           usageSummary,
		MissingPriority: sel.Missing,
	}, nil
}

// RevalidateOptions selects the document and sample for a revalidation pass
type RevalidateOptions struct {
	DocumentPath string
	SamplePath   string // defaults to the configured sample
	SampleSheet  string
}

// Revalidate re-runs validation and refinement over an exported rule document
// and writes the refreshed outputs. Running it twice on its own output changes
// no threshold.
func (s *PipelineService) Revalidate(ctx context.Context, opts RevalidateOptions) (*rule.RuleSet, Outputs, error) {
	rs, err := export.ReadJSON(opts.DocumentPath)
	if err != nil {
		return nil, Outputs{}, err
	}
	logger := s.logger.With(zap.String("run_id", rs.RunID))

	samplePath, sheet := opts.SamplePath, opts.SampleSheet
	if samplePath == "" {
		samplePath, sheet = s.cfg.Inputs.SamplePath, s.cfg.Inputs.SampleSheet
	}
	smp := s.loadSample(samplePath, sheet, logger)

	rules, err := s.refine(ctx, rs.Rules, smp, logger)
	if err != nil {
		return nil, Outputs{}, err
	}
	rs.Rules = rules
	rs.GeneratedAt = time.Now().UTC()
	rs.Finalize()

	outputs, err := s.writeOutputs(rs, logger)
	if err != nil {
		return nil, Outputs{}, err
	}
	logger.Info("[Pipeline] revalidation complete",
		zap.Int("rules", rs.Summary.TotalRules),
		zap.Int("adjusted", rs.Summary.AdjustedThresholds),
		zap.Int("inconclusive", rs.Summary.InconclusiveResults))
	return rs, outputs, nil
}

// refine validates every rule, adjusts thresholds, then removes duplicates
func (s *PipelineService) refine(ctx context.Context, rules []rule.Rule, smp *sample.Sample, logger *zap.Logger) ([]rule.Rule, error) {
	opts := validation.Options{SampleSize: s.cfg.Validation.SampleSize}
	if s.cfg.Validation.SQLCrossCheck && smp != nil && len(smp.Columns) > 0 {
		checker, err := validation.NewSQLChecker(ctx, smp, logger)
		if err != nil {
			logger.Warn("[Pipeline] SQL cross-check disabled", zap.Error(err))
		} else {
			defer checker.Close()
			opts.SQLChecker = checker
		}
	}
	validator := validation.NewValidator(opts, logger)
	refiner := refinement.NewRefiner(refinement.Options{
		Multiplier: s.cfg.Refinement.AdjustmentMultiplier,
		Margin:     s.cfg.Refinement.AdjustmentMargin,
	}, logger)

	out := make([]rule.Rule, 0, len(rules))
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := validator.Validate(ctx, r, smp)
		s.metrics.Validated(result.Verdict())

		before := r.ThresholdPercent
		r = refiner.Adjust(r, result)
		if r.ThresholdPercent != before {
			s.metrics.ThresholdAdjusted()
		}
		out = append(out, r)
	}
	return refiner.Dedup(out), nil
}

func (s *PipelineService) loadSample(path, sheet string, logger *zap.Logger) *sample.Sample {
	if path == "" {
		logger.Warn("[Pipeline] no sample configured; every rule will be inconclusive")
		return nil
	}
	smp, err := excel.NewDataReader(path, sheet, logger).ReadSample(s.cfg.Validation.SampleSize)
	if err != nil {
		logger.Warn("[Pipeline] sample unavailable; every rule will be inconclusive", zap.Error(err))
		return nil
	}
	return smp
}

// priorityList prefers the configured list, then the taxonomy workbook
func (s *PipelineService) priorityList(logger *zap.Logger) []string {
	if len(s.cfg.Selection.PriorityAttributes) > 0 {
		return s.cfg.Selection.PriorityAttributes
	}
	if s.cfg.Inputs.TaxonomyPath == "" {
		return nil
	}
	names, err := excel.ReadTaxonomyAttributes(s.cfg.Inputs.TaxonomyPath)
	if err != nil {
		logger.Warn("[Pipeline] taxonomy unreadable, falling back to profile order", zap.Error(err))
		return nil
	}
	return names
}

func (s *PipelineService) writeOutputs(rs *rule.RuleSet, logger *zap.Logger) (Outputs, error) {
	out := s.cfg.Output
	var paths Outputs

	paths.JSON = filepath.Join(out.Dir, out.JSONFile)
	if err := export.WriteJSON(paths.JSON, rs); err != nil {
		return Outputs{}, err
	}

	if out.ExcelFile != "" {
		p := filepath.Join(out.Dir, out.ExcelFile)
		if err := excel.NewReportWriter(logger).Write(p, rs); err != nil {
			logger.Warn("[Pipeline] excel report not written", zap.Error(err))
		} else {
			paths.Excel = p
		}
	}
	if out.MarkdownFile != "" {
		p := filepath.Join(out.Dir, out.MarkdownFile)
		if err := export.WriteMarkdown(p, rs); err != nil {
			logger.Warn("[Pipeline] markdown report not written", zap.Error(err))
		} else {
			paths.Markdown = p
		}
	}
	if out.HTMLFile != "" {
		p := filepath.Join(out.Dir, out.HTMLFile)
		if err := export.WriteHTML(p, rs); err != nil {
			logger.Warn("[Pipeline] html report not written", zap.Error(err))
		} else {
			paths.HTML = p
		}
	}
	return paths, nil
}

func (s *PipelineService) generatorType() string {
	if s.cfg.AI.Provider == config.ProviderHeuristic {
		return ports.GeneratorHeuristic
	}
	return ports.GeneratorLLM
}

func (s *PipelineService) model() string {
	if s.cfg.AI.Provider == config.ProviderHeuristic {
		return ""
	}
	return s.cfg.AI.Model
}

// Store calls below never fail the run; the output files are the record of truth.

func (s *PipelineService) createRun(ctx context.Context, run *models.Run, logger *zap.Logger) {
	if s.runs == nil {
		return
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		logger.Warn("[Pipeline] failed to record run start", zap.Error(err))
	}
}

func (s *PipelineService) completeRun(ctx context.Context, rs *rule.RuleSet, logger *zap.Logger) {
	if s.runs == nil {
		return
	}
	runID := core.RunID(rs.RunID)
	if err := s.runs.SaveRules(ctx, runID, rs.Rules); err != nil {
		logger.Warn("[Pipeline] failed to store rules", zap.Error(err))
	}
	if err := s.runs.SaveUnprocessed(ctx, runID, rs.Unprocessed); err != nil {
		logger.Warn("[Pipeline] failed to store unprocessed attributes", zap.Error(err))
	}
	if err := s.runs.CompleteRun(ctx, runID, models.RunCompleted, rs.Summary, ""); err != nil {
		logger.Warn("[Pipeline] failed to record run completion", zap.Error(err))
	}
}

func (s *PipelineService) failRun(runID core.RunID, cause error, logger *zap.Logger) {
	if s.runs == nil {
		return
	}
	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.CompleteRun(ctx, runID, models.RunFailed, rule.Summary{}, cause.Error()); err != nil {
		logger.Warn("[Pipeline] failed to record run failure", zap.Error(err))
	}
}
