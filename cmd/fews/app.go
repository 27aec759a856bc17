package main

import (
	"context"

	"github.com/mmann1123/gwu-haiti-project/collectors"
	"github.com/mmann1123/gwu-haiti-project/pricedb"
	"github.com/mmann1123/gwu-haiti-project/reports"
	"github.com/mmann1123/gwu-haiti-project/shared"
	"github.com/mmann1123/gwu-haiti-project/syncer"
)

func openStore(ctx context.Context) (*pricedb.Store, error) {
	db, err := shared.OpenDatabase(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	logger.Debug("database opened")
	return pricedb.New(db, logger), nil
}

func newClient() *collectors.Client {
	return collectors.NewClient(cfg.API.BaseURL,
		collectors.WithMaxAttempts(cfg.API.MaxRetries),
		collectors.WithConcurrency(cfg.API.Concurrency),
		collectors.WithLogger(logger),
	)
}

func newSyncer(store *pricedb.Store, client *collectors.Client, snapshot bool) (*syncer.Syncer, error) {
	historyStart, err := cfg.Sync.HistoryStartDate()
	if err != nil {
		return nil, err
	}

	opts := syncer.Options{
		CountryCode:  cfg.API.CountryCode,
		HistoryStart: historyStart,
		LookbackDays: cfg.Sync.LookbackDays,
		ChunkMonths:  cfg.API.ChunkMonths,
	}
	if snapshot || cfg.Sync.Snapshot {
		opts.SnapshotDir = cfg.DataDir
	}
	if cfg.Geocoding.Enabled {
		opts.Enricher = collectors.NewMarketEnricher(collectors.GoogleReverseGeocoder(cfg.Geocoding.APIKey), logger)
	}
	return syncer.New(client, store, opts, logger), nil
}

func newReports(store *pricedb.Store) *reports.Reports {
	return reports.New(store.DB(), logger)
}
