package reports

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SourceTables are the tables the reports read from.
var SourceTables = []string{
	"markets",
	"products",
	"units",
	"price_observations",
}

// ensureTableReady fails unless the table exists and holds at least one row.
func ensureTableReady(ctx context.Context, db *sql.DB, tableName string) error {
	var exists int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1`, tableName,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to verify presence of %s: %w", tableName, err)
	}
	if exists == 0 {
		return fmt.Errorf("required table %q does not exist", tableName)
	}

	var rowCount int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdentifier(tableName))
	if err := db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		return fmt.Errorf("failed to count rows in %s: %w", tableName, err)
	}
	if rowCount == 0 {
		return fmt.Errorf("required table %q has no data to report on", tableName)
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// WaitForTablesReady polls until every table exists and is non-empty, or ctx
// is done.
func WaitForTablesReady(ctx context.Context, db *sql.DB, log *zap.Logger, pollInterval time.Duration, tables ...string) error {
	if db == nil {
		return fmt.Errorf("db connection is nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if len(tables) == 0 {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	const statusLogInterval = 30 * time.Second
	lastStatusLog := time.Time{}

	var lastErr error
	stopped := func() error {
		if lastErr == nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w while waiting for tables: %w", ctx.Err(), lastErr)
	}

	for {
		if ctx.Err() != nil {
			return stopped()
		}

		lastErr = nil
		for _, table := range tables {
			if err := ensureTableReady(ctx, db, table); err != nil {
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}

		if lastStatusLog.IsZero() || time.Since(lastStatusLog) >= statusLogInterval {
			log.Info("still waiting for price data", zap.Error(lastErr))
			lastStatusLog = time.Now()
		}

		select {
		case <-ctx.Done():
			return stopped()
		case <-ticker.C:
		}
	}
}
