package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/postgres"
)

// Global flags available to all subcommands.
var (
	configFile string
	verbose    bool
)

// NewRootCmd creates the root command for the galleryctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "galleryctl",
		Short:        "Administer the world gallery",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "config file path")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewWorldCmd())
	cmd.AddCommand(NewLikesCmd())

	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file, falling back to defaults when it is missing
func loadConfig(logger *slog.Logger) *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Debug("using default configuration", "error", err)
		return config.DefaultConfig()
	}
	return cfg
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Repository, error) {
	repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return repo, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			cfg := loadConfig(logger)

			repo, err := openRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := repo.RunMigrations(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("migrations applied")
			return nil
		},
	}
}
