package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmann1123/gwu-haiti-project/api"
	"github.com/mmann1123/gwu-haiti-project/syncer"
)

var (
	servePort     string
	serveInterval time.Duration
	serveNoSync   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the price API and keep the database in sync",
	Long: `Starts the JSON API and runs an incremental sync immediately and then on
every interval (24h by default). Stops cleanly on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port, defaults to PORT or 8080")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0, "time between syncs, defaults to the configured interval")
	serveCmd.Flags().BoolVar(&serveNoSync, "no-sync", false, "serve the API only")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateTables(ctx); err != nil {
		return err
	}

	var s *syncer.Syncer
	if !serveNoSync {
		if s, err = newSyncer(store, newClient(), false); err != nil {
			return err
		}
	}
	interval := serveInterval
	if interval <= 0 {
		interval = cfg.Sync.IntervalDuration()
	}

	port := servePort
	if port == "" {
		port = cfg.Server.Port
	}
	server := api.NewServer(newReports(store), store, logger)

	// The store is closed only after both the server and the sync loop return.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, ":"+port)
	})
	if s != nil {
		g.Go(func() error {
			runSyncLoop(gctx, s, interval)
			return nil
		})
	}
	return g.Wait()
}

// runSyncLoop syncs now and then once per interval until ctx is done.
func runSyncLoop(ctx context.Context, s *syncer.Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		logger.Info("starting scheduled sync")
		res, err := s.Incremental(ctx)
		switch {
		case err != nil:
			logger.Error("scheduled sync failed", zap.Error(err))
		case res.UpToDate:
			logger.Info("database already up to date")
		default:
			logger.Info("scheduled sync finished",
				zap.String("run_id", res.RunID),
				zap.Int("inserted", res.Stats.Inserted),
				zap.Int("updated", res.Stats.Updated))
		}
		logger.Info("waiting for next sync", zap.Duration("interval", interval))

		select {
		case <-ctx.Done():
			logger.Info("sync loop shutting down")
			return
		case <-ticker.C:
		}
	}
}
