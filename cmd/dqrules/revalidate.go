package main

import (
	"github.com/spf13/cobra"

	"dqrules/app"
	"dqrules/internal/config"
	"dqrules/internal/metrics"
)

func newRevalidateCmd(root *rootOptions) *cobra.Command {
	var (
		samplePath  string
		sampleSheet string
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:   "revalidate [rules.json]",
		Short: "Re-run validation and threshold refinement over an exported rule set",
		Long: `Re-evaluate every rule of a previously written rule document against the sample,
refine thresholds and rewrite the outputs. Running it again on its own output
leaves every threshold unchanged.

Example: dqrules revalidate output/dq_rules.json --sample data/Contactors_out.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := root.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := config.LoadForStore(root.configPath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}

			svc := app.NewPipelineService(cfg, nil, nil, nil, metrics.New(), logger)
			rs, outputs, err := svc.Revalidate(cmd.Context(), app.RevalidateOptions{
				DocumentPath: args[0],
				SamplePath:   samplePath,
				SampleSheet:  sampleSheet,
			})
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), rs)
			printOutputs(cmd.OutOrStdout(), outputs)
			return nil
		},
	}

	cmd.Flags().StringVar(&samplePath, "sample", "", "Raw sample .xlsx or .csv (defaults to inputs.sample_path)")
	cmd.Flags().StringVar(&sampleSheet, "sheet", "", "Worksheet of an .xlsx sample")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the rewritten files")

	return cmd
}
