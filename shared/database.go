package shared

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"

	// DefaultDatabasePath is used when neither FEWS_DB_PATH nor DATABASE_URL is set.
	DefaultDatabasePath = "data/fews_haiti.duckdb"
)

// pingAttempts and pingDelay bound how long OpenDatabase waits for a server to come up.
var (
	pingAttempts = 10
	pingDelay    = 5 * time.Second
)

// OpenDatabase opens a duckdb file (or in-memory database when dsn is empty)
// or a postgres connection, and verifies connectivity with retries.
func OpenDatabase(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverDuckDB:
		if dsn != "" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("could not create database directory: %w", err)
			}
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("database connection string is required")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open connection: %w", err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pingDelay), uint64(pingAttempts-1)), ctx)
	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, policy); err != nil {
		db.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("database not reachable after %d attempts: %w", pingAttempts, err)
	}
	return db, nil
}
