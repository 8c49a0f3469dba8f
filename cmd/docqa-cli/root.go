package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"docqa/internal/adapter/repository"
	"docqa/internal/domain"
	"docqa/internal/infra"
	"docqa/internal/infra/config"
)

var (
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger

	// version is set at build time via ldflags.
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "docqa-cli",
	Short: "Maintenance CLI for the document QA service",
	Long: `docqa-cli operates on the service's document store directly, using the
same environment configuration as the server.

Example usage:
  docqa-cli inspect                  # List stored documents
  docqa-cli inspect 4f2c...          # Show one document's artifacts
  docqa-cli cleanup --dry-run        # Preview the retention sweep
  docqa-cli reprocess 4f2c...        # Queue re-ingestion on a running server`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig loads the service configuration and sets up a terminal logger.
func initConfig() error {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Debug("configuration loaded",
		"storage_backend", cfg.Storage.Backend,
		"storage_root", cfg.Storage.Root,
	)
	return nil
}

// openStore builds the configured artifact store for offline commands. The
// returned close function releases the backing pool when there is one.
func openStore(ctx context.Context) (domain.ArtifactStore, func(), error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := infra.NewPostgresPool(ctx, cfg.DB.DSN(), cfg.DB.MaxConns, cfg.DB.MinConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return repository.NewPostgresStore(pool, logger), pool.Close, nil
	case "fs":
		store, err := repository.NewFSStore(cfg.Storage.Root, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
