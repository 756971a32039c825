package main

import (
	"github.com/spf13/cobra"

	"dqrules/adapters/sqlstore"
	"dqrules/internal/api"
	"dqrules/internal/config"
	"dqrules/internal/metrics"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs, rules and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
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
			if addr != "" {
				cfg.Server.Addr = addr
			}

			db, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			server := api.NewServer(api.Options{
				Runs:            sqlstore.NewRunRepository(db),
				Usage:           sqlstore.NewLLMUsageRepository(db),
				Metrics:         metrics.New(),
				DB:              db,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, logger)
			return server.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
