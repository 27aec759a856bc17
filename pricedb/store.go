package pricedb

import (
	"database/sql"
	"sync"

	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/shared"
)

// Store persists FEWS NET price records in a star schema: markets, products,
// units and data sources as dimensions, price_observations as the fact table.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	// mu serializes syncs, which share the dimension caches.
	mu       sync.Mutex
	markets  map[int64]int64
	products map[productKey]int64
	units    map[string]int64
	sources  map[int64]int64
}

type productKey struct {
	name   string
	source string
}

func New(db *sql.DB, log *zap.Logger) *Store {
	s := &Store{db: db, log: shared.OrNop(log)}
	s.resetCache()
	return s
}

// DB exposes the underlying handle for read-only reporting queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) resetCache() {
	s.markets = make(map[int64]int64)
	s.products = make(map[productKey]int64)
	s.units = make(map[string]int64)
	s.sources = make(map[int64]int64)
}

// nullString maps empty strings to SQL NULL.
func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
