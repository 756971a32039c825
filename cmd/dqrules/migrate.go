package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dqrules/adapters/sqlstore"
	"dqrules/internal/config"
	"dqrules/internal/migration"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run store schema",
	}
	cmd.AddCommand(newMigrateUpCmd(root), newMigrateStatusCmd(root))
	return cmd
}

func newMigrateUpCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
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
			if err := requireStore(cfg); err != nil {
				return err
			}
			db, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			runner, err := migration.NewRunner(logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema at version %s\n", runner.Version())
			return nil
		},
	}
}

func newMigrateStatusCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForStore(root.configPath)
			if err != nil {
				return err
			}
			if err := requireStore(cfg); err != nil {
				return err
			}
			db, err := sqlstore.Open(cmd.Context(), cfg.Database.Driver, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			runner, err := migration.NewRunner(nil)
			if err != nil {
				return err
			}
			statuses, err := runner.Status(cmd.Context(), db)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED\tAPPLIED AT")
			for _, s := range statuses {
				applied := "no"
				if s.Applied {
					applied = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Version, s.Name, applied, s.AppliedAt)
			}
			return tw.Flush()
		},
	}
}
