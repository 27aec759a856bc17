package pricedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/collectors"
)

// maxLoggedErrors caps the per-row errors written to the log during a sync.
const maxLoggedErrors = 5

// progressEvery controls how often SyncRecords reports progress.
const progressEvery = 5000

// SyncStats counts what happened to each record passed to SyncRecords.
type SyncStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

func (s SyncStats) Total() int {
	return s.Inserted + s.Updated + s.Skipped + s.Errors
}

// SyncRecords upserts records into the fact table, creating dimension rows as
// needed. Rows failing validation are skipped. A row that fails to write is
// counted and does not stop the rest. Only context cancellation aborts the
// sync.
func (s *Store) SyncRecords(ctx context.Context, records []collectors.PriceRecord) (SyncStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCache()

	var stats SyncStats
	for i, r := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := r.Validate(); err != nil {
			stats.Skipped++
			s.log.Debug("skipping record", zap.Int("row", i), zap.Error(err))
			continue
		}

		inserted, err := s.upsertObservation(ctx, r)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Errors++
			if stats.Errors <= maxLoggedErrors {
				s.log.Warn("failed to store record", zap.Int("row", i), zap.Error(err))
			}
		case inserted:
			stats.Inserted++
		default:
			stats.Updated++
		}

		if (i+1)%progressEvery == 0 {
			s.log.Info("sync progress", zap.Int("processed", i+1), zap.Int("total", len(records)))
		}
	}

	if stats.Errors > maxLoggedErrors {
		s.log.Warn("additional record errors not shown", zap.Int("hidden", stats.Errors-maxLoggedErrors))
	}
	s.log.Info("records synced",
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// upsertObservation writes one validated record keyed on
// (market, product, unit, period_date, price_type) and reports whether a new
// row was inserted.
func (s *Store) upsertObservation(ctx context.Context, r collectors.PriceRecord) (bool, error) {
	marketID, err := s.marketID(ctx, r)
	if err != nil {
		return false, err
	}
	productID, err := s.productID(ctx, r)
	if err != nil {
		return false, err
	}
	unitID, err := s.unitID(ctx, r)
	if err != nil {
		return false, err
	}
	sourceID, err := s.sourceID(ctx, r)
	if err != nil {
		return false, err
	}

	period, err := r.Period()
	if err != nil {
		return false, err
	}
	priceType := r.PriceTypeOrDefault()

	var startDate any
	if t, ok := r.Start(); ok {
		startDate = t
	}
	var modified any
	if t, ok := r.ModifiedAt(); ok {
		modified = t
	}

	var existing int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM price_observations
		WHERE market_id = $1 AND product_id = $2 AND unit_id = $3 AND period_date = $4 AND price_type = $5`,
		marketID, productID, unitID, period, priceType,
	).Scan(&existing)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx,
			`UPDATE price_observations SET
				value = $1,
				exchange_rate = $2,
				common_unit_price = $3,
				common_currency_price = $4,
				collection_status = $5,
				api_modified_at = $6,
				imported_at = $7
			WHERE id = $8`,
			r.Value.Any(), r.ExchangeRate.Any(), r.CommonUnitPrice.Any(), r.CommonCurrencyPrice.Any(),
			nullString(r.CollectionStatus), modified, time.Now().UTC(), existing,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update observation %d: %w", existing, err)
		}
		return false, nil

	case errors.Is(err, sql.ErrNoRows):
		var dataseries any
		if v, ok := r.DataSeries.Int64(); ok {
			dataseries = v
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO price_observations (
				market_id, product_id, unit_id, source_id, period_date, start_date,
				price_type, currency, value, exchange_rate, common_unit_price,
				common_currency_price, collection_status, fews_dataseries_id, api_modified_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			marketID, productID, unitID, sourceID, period, startDate,
			priceType, r.CurrencyOrDefault(), r.Value.Any(), r.ExchangeRate.Any(), r.CommonUnitPrice.Any(),
			r.CommonCurrencyPrice.Any(), nullString(r.CollectionStatus), dataseries, modified,
		)
		if err != nil {
			return false, fmt.Errorf("failed to insert observation: %w", err)
		}
		return true, nil

	default:
		return false, fmt.Errorf("failed to look up observation: %w", err)
	}
}
