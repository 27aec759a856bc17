package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/shared"
)

var (
	verbose    bool
	configPath string
	dbPath     string

	logger *zap.Logger
	cfg    shared.Config
)

var rootCmd = &cobra.Command{
	Use:   "fews",
	Short: "Sync FEWS NET market prices for Haiti into a local database",
	Long: `fews downloads market price data from the FEWS NET Data Warehouse API and
keeps a DuckDB (or Postgres) database of markets, products, units and price
observations up to date.

Configuration is read from .env, an optional YAML file (--config or
FEWS_CONFIG) and environment variables such as FEWS_DB_PATH and DATABASE_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = shared.NewLogger(verbose)
		if err != nil {
			return err
		}

		cfg, err = shared.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Driver = shared.DriverDuckDB
			cfg.Database.Path = dbPath
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "duckdb database file (overrides config)")

	rootCmd.AddCommand(
		initCmd,
		fullCmd,
		syncCmd,
		statsCmd,
		queryCmd,
		downloadCmd,
		exploreCmd,
		exportCmd,
		availabilityCmd,
		serveCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
