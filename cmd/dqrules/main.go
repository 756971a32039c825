package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dqrules/adapters/sqlstore"
	"dqrules/internal/config"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
	"dqrules/internal/migration"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "dqrules",
		Short:         "Derive, validate and export data-quality rules from profiling statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Development logging at debug level")

	rootCmd.AddCommand(
		newDeriveCmd(opts),
		newRevalidateCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	logger, err := logging.New(o.verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// openStore connects and migrates the configured store. It returns nil when no driver is set.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	if cfg.Database.Driver == "" {
		return nil, nil
	}
	db, err := sqlstore.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	runner, err := migration.NewRunner(logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := runner.Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func requireStore(cfg *config.Config) error {
	if cfg.Database.Driver == "" {
		return errors.ConfigInvalid("a database driver and URL are required (database.driver / DATABASE_DRIVER)")
	}
	return nil
}
