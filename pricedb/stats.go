package pricedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats summarizes the contents of the database.
type Stats struct {
	TotalObservations int64      `json:"total_observations"`
	TotalMarkets      int64      `json:"total_markets"`
	TotalProducts     int64      `json:"total_products"`
	TotalUnits        int64      `json:"total_units"`
	DateMin           *time.Time `json:"date_min,omitempty"`
	DateMax           *time.Time `json:"date_max,omitempty"`
	LastImport        *time.Time `json:"last_import,omitempty"`
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error

	if st.TotalObservations, err = s.count(ctx, ObservationsTable); err != nil {
		return st, err
	}
	if st.TotalMarkets, err = s.count(ctx, MarketsTable); err != nil {
		return st, err
	}
	if st.TotalProducts, err = s.count(ctx, ProductsTable); err != nil {
		return st, err
	}
	if st.TotalUnits, err = s.count(ctx, UnitsTable); err != nil {
		return st, err
	}

	var minDate, maxDate sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(period_date), MAX(period_date) FROM price_observations`,
	).Scan(&minDate, &maxDate); err != nil {
		return st, fmt.Errorf("failed to read date range: %w", err)
	}
	if minDate.Valid {
		st.DateMin = &minDate.Time
	}
	if maxDate.Valid {
		st.DateMax = &maxDate.Time
	}

	var lastImport sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(import_date) FROM import_log WHERE status = $1`, StatusSuccess,
	).Scan(&lastImport); err != nil {
		return st, fmt.Errorf("failed to read last import: %w", err)
	}
	if lastImport.Valid {
		st.LastImport = &lastImport.Time
	}
	return st, nil
}

// MarketInfo is a market dimension row.
type MarketInfo struct {
	FewsID int64  `json:"fews_id"`
	Name   string `json:"name"`
	Admin1 string `json:"admin_1,omitempty"`
	Admin2 string `json:"admin_2,omitempty"`
}

// ListMarkets returns all markets ordered by name.
func (s *Store) ListMarkets(ctx context.Context) ([]MarketInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fews_id, name, admin_1, admin_2 FROM markets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var markets []MarketInfo
	for rows.Next() {
		var m MarketInfo
		var admin1, admin2 sql.NullString
		if err := rows.Scan(&m.FewsID, &m.Name, &admin1, &admin2); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		m.Admin1 = admin1.String
		m.Admin2 = admin2.String
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// ListProducts returns the distinct product names ordered alphabetically.
func (s *Store) ListProducts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, name)
	}
	return products, rows.Err()
}
