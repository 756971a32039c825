package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dqrules/adapters/sqlstore"
	"dqrules/app"
	"dqrules/domain/rule"
	"dqrules/internal/config"
	"dqrules/internal/metrics"
	"dqrules/internal/usage"
	"dqrules/ports"
)

func newDeriveCmd(root *rootOptions) *cobra.Command {
	var (
		profilingPath string
		samplePath    string
		taxonomyPath  string
		outputDir     string
		provider      string
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Run the full pipeline and write the rule set",
		Long: `Load profiling statistics, select priority attributes, derive rules per attribute,
validate them against the sample, refine thresholds and write JSON, Excel, Markdown and HTML.

Example: dqrules derive --profiling data/profiling.json --sample data/Contactors_out.xlsx --provider heuristic`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if provider != "" {
				// applied through the environment so provider validation sees it
				if err := os.Setenv("LLM_PROVIDER", provider); err != nil {
					return err
				}
			}
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if profilingPath != "" {
				cfg.Inputs.ProfilingPath = profilingPath
			}
			if samplePath != "" {
				cfg.Inputs.SamplePath = samplePath
			}
			if taxonomyPath != "" {
				cfg.Inputs.TaxonomyPath = taxonomyPath
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}

			db, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			var (
				runs      ports.RunRepository
				usageRepo ports.LLMUsageRepository
			)
			if db != nil {
				defer db.Close()
				runs = sqlstore.NewRunRepository(db)
				usageRepo = sqlstore.NewLLMUsageRepository(db)
			}

			generator, err := app.NewRuleGenerator(ctx, cfg.AI, logger)
			if err != nil {
				return err
			}
			svc := app.NewPipelineService(cfg, generator, runs, usage.NewService(usageRepo, logger), metrics.New(), logger)

			result, err := svc.Run(ctx)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			if len(result.MissingPriority) > 0 {
				logger.Warn("priority attributes not found in the profile", zap.Strings("attributes", result.MissingPriority))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profilingPath, "profiling", "", "Profiling JSON document (overrides inputs.profiling_path)")
	cmd.Flags().StringVar(&samplePath, "sample", "", "Raw sample .xlsx or .csv (overrides inputs.sample_path)")
	cmd.Flags().StringVar(&taxonomyPath, "taxonomy", "", "Taxonomy workbook or directory supplying the priority list")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the generated files")
	cmd.Flags().StringVar(&provider, "provider", "", "Generator: openai, gemini or heuristic")

	return cmd
}

func printResult(w io.Writer, result *app.PipelineResult) {
	rs := result.RuleSet
	fmt.Fprintf(w, "Run %s: %s (%s)\n", result.RunID, rs.DatasetName, rs.ParentClass)
	printSummary(w, rs)
	if result.Usage != nil && result.Usage.RequestCount > 0 {
		fmt.Fprintf(w, "LLM usage: %d calls, %d tokens (%d prompt, %d completion)\n",
			result.Usage.RequestCount, result.Usage.TotalTokens,
			result.Usage.TotalPromptTokens, result.Usage.TotalCompletionTokens)
	}
	printOutputs(w, result.Outputs)
}

func printSummary(w io.Writer, rs *rule.RuleSet) {
	s := rs.Summary
	fmt.Fprintf(w, "Rules: %d across %d attributes, %d unprocessed\n", s.TotalRules, s.AttributesCovered, s.UnprocessedCount)
	for _, c := range s.SortedCategoryCounts() {
		fmt.Fprintf(w, "  %-13s %d\n", c.Category, c.Count)
	}
	fmt.Fprintf(w, "Validation: %d passed, %d failed, %d inconclusive; %d thresholds adjusted\n",
		s.PassedValidation, s.FailedValidation, s.InconclusiveResults, s.AdjustedThresholds)
	for _, u := range rs.Unprocessed {
		fmt.Fprintf(w, "  unprocessed %q (%s): %s\n", u.Attribute, u.Stage, u.Reason)
	}
}

func printOutputs(w io.Writer, out app.Outputs) {
	for _, p := range []string{out.JSON, out.Excel, out.Markdown, out.HTML} {
		if p != "" {
			fmt.Fprintf(w, "Wrote %s\n", p)
		}
	}
}
