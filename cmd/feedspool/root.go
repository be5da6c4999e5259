package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedspool/internal/config"
	"feedspool/internal/logger"
	"feedspool/internal/store"
)

var (
	debugFlag     bool
	configFile    string
	migrationsDir string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "feedspool",
	Short: "Feed aggregation engine with a GraphQL API",
	Long: `feedspool polls syndication feeds (RSS / Atom / JSON Feed) with
conditional-GET caching, stores the normalized feeds and entries, records a
per-fetch history log, and serves the corpus over GraphQL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, v, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := v.BindPFlag("debug", cmd.Root().PersistentFlags().Lookup("debug")); err != nil {
			return fmt.Errorf("binding debug flag: %w", err)
		}
		if err := v.Unmarshal(loaded); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		if loaded.Debug {
			loaded.LogLevel = "debug"
		}
		cfg = loaded
		logger.Setup(cfg.LogLevel, cfg.Debug)
		return nil
	},
}

// Execute runs the root command, exiting non-zero on initialization or
// command failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "migrations", "migrations", "path to the schema migrations directory")
}

// openStore migrates the schema and opens the shared store.
func openStore(ctx context.Context) (*store.Store, error) {
	if err := store.Migrate(cfg.DatabaseURL, migrationsDir); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, err
	}
	return store.New(pool), nil
}
