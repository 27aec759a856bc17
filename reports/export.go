package reports

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const exportTable = "prices"

// exportColumns are read from the v_prices view and written as-is.
var exportColumns = []struct {
	name    string
	sqlType string
}{
	{"period_date", "TEXT"},
	{"market_fews_id", "INTEGER"},
	{"market", "TEXT"},
	{"admin_1", "TEXT"},
	{"admin_2", "TEXT"},
	{"product", "TEXT"},
	{"product_source", "TEXT"},
	{"unit", "TEXT"},
	{"price_type", "TEXT"},
	{"currency", "TEXT"},
	{"value", "REAL"},
	{"exchange_rate", "REAL"},
	{"common_unit_price", "REAL"},
	{"common_currency_price", "REAL"},
	{"collection_status", "TEXT"},
}

// ExportSQLite writes every observation, joined with its dimensions, into a
// single table of a new SQLite file at path. An existing file is replaced. It
// returns the number of rows written.
func (r *Reports) ExportSQLite(ctx context.Context, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to remove previous export: %w", err)
	}

	out, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("failed to open sqlite file: %w", err)
	}
	defer out.Close()

	names := make([]string, len(exportColumns))
	defs := make([]string, len(exportColumns))
	for i, c := range exportColumns {
		names[i] = quoteIdentifier(c.name)
		defs[i] = fmt.Sprintf("%s %s", quoteIdentifier(c.name), c.sqlType)
	}
	if _, err := out.ExecContext(ctx, `CREATE TABLE `+exportTable+` (`+strings.Join(defs, ", ")+`)`); err != nil {
		return 0, fmt.Errorf("failed to create export table: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+strings.Join(names, ", ")+` FROM v_prices ORDER BY period_date, market, product`)
	if err != nil {
		return 0, fmt.Errorf("failed to read prices: %w", err)
	}
	defer rows.Close()

	tx, err := out.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start export transaction: %w", err)
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(exportColumns)), ",")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO `+exportTable+` (`+strings.Join(names, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare export insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for rows.Next() {
		values := make([]any, len(exportColumns))
		pointers := make([]any, len(exportColumns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			tx.Rollback()
			return written, fmt.Errorf("failed to scan price row: %w", err)
		}
		for i, v := range values {
			values[i] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			tx.Rollback()
			return written, fmt.Errorf("failed to write price row: %w", err)
		}
		written++
	}
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return written, err
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_prices_product ON prices(product)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_market ON prices(market)`,
		`CREATE INDEX IF NOT EXISTS idx_prices_period ON prices(period_date)`,
	} {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			tx.Rollback()
			return written, fmt.Errorf("failed to create export index: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("failed to commit export: %w", err)
	}
	r.log.Info("exported prices to sqlite", zap.String("path", path), zap.Int("rows", written))
	return written, nil
}

// sqliteValue converts a scanned value to one of the types SQLite stores.
// Dates become YYYY-MM-DD text.
func sqliteValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.DateOnly)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	}
	return v
}
