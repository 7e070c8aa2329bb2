package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Fikei1151/nia/internal/adapters/repository"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
	"github.com/Fikei1151/nia/internal/infrastructure/logging"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nia",
		Short:        "Operate the nia checkpoint store",
		Long:         "nia prepares the configured checkpoint backend and inspects the conversation threads stored in it. Configuration is read from the environment and an optional .env file.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newMigrateCmd(),
		newInspectCmd(),
		newListCmd(),
	)
	return rootCmd
}

// openStore loads the configuration and opens the configured backend. With
// bootstrap set the database and tables are created when missing.
func openStore(cmd *cobra.Command, bootstrap bool) (*repository.Store, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.App.LogLevel, "text")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if bootstrap {
		return repository.Bootstrap(ctx, cfg.Database, logger)
	}
	return repository.Open(ctx, cfg.Database, logger)
}
