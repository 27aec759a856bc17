package pricedb

import (
	"context"
	"fmt"
)

const (
	MarketsTable      = "markets"
	ProductsTable     = "products"
	UnitsTable        = "units"
	DataSourcesTable  = "data_sources"
	ObservationsTable = "price_observations"
	ImportLogTable    = "import_log"
	LatestPricesView  = "v_latest_prices"
	PricesView        = "v_prices"
)

// schemaStatements run in order. Every statement is valid for both duckdb and
// postgres, and safe to repeat.
var schemaStatements = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_markets_id START 1`,
	`CREATE TABLE IF NOT EXISTS markets (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_markets_id'),
		fews_id INTEGER NOT NULL UNIQUE,
		fnid VARCHAR,
		name VARCHAR NOT NULL,
		admin_1 VARCHAR,
		admin_2 VARCHAR,
		country_code VARCHAR DEFAULT 'HT',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_products_id START 1`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_products_id'),
		name VARCHAR NOT NULL,
		cpcv2 VARCHAR,
		cpcv2_description VARCHAR,
		product_source VARCHAR NOT NULL DEFAULT '',
		is_staple_food BOOLEAN DEFAULT FALSE,
		UNIQUE (name, product_source)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_units_id START 1`,
	`CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_units_id'),
		name VARCHAR NOT NULL UNIQUE,
		unit_type VARCHAR,
		common_unit VARCHAR
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_data_sources_id START 1`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_data_sources_id'),
		fews_id INTEGER NOT NULL UNIQUE,
		name VARCHAR,
		document_name VARCHAR
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_price_observations_id START 1`,
	`CREATE TABLE IF NOT EXISTS price_observations (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_price_observations_id'),
		market_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		unit_id INTEGER NOT NULL,
		source_id INTEGER,
		period_date DATE NOT NULL,
		start_date DATE,
		price_type VARCHAR NOT NULL DEFAULT 'Retail',
		currency VARCHAR DEFAULT 'HTG',
		value DOUBLE PRECISION,
		exchange_rate DOUBLE PRECISION,
		common_unit_price DOUBLE PRECISION,
		common_currency_price DOUBLE PRECISION,
		collection_status VARCHAR,
		fews_dataseries_id INTEGER,
		api_modified_at TIMESTAMP,
		imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (market_id, product_id, unit_id, period_date, price_type)
	)`,

	`CREATE SEQUENCE IF NOT EXISTS seq_import_log_id START 1`,
	`CREATE TABLE IF NOT EXISTS import_log (
		id INTEGER PRIMARY KEY DEFAULT nextval('seq_import_log_id'),
		run_id VARCHAR,
		import_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		mode VARCHAR,
		records_fetched INTEGER DEFAULT 0,
		records_inserted INTEGER DEFAULT 0,
		records_updated INTEGER DEFAULT 0,
		records_skipped INTEGER DEFAULT 0,
		records_errored INTEGER DEFAULT 0,
		date_range_start DATE,
		date_range_end DATE,
		status VARCHAR NOT NULL,
		error_message VARCHAR
	)`,

	`CREATE OR REPLACE VIEW v_prices AS
	SELECT
		po.period_date,
		m.fews_id AS market_fews_id,
		m.name AS market,
		m.admin_1,
		m.admin_2,
		p.name AS product,
		p.product_source,
		u.name AS unit,
		po.price_type,
		po.currency,
		po.value,
		po.exchange_rate,
		po.common_unit_price,
		po.common_currency_price,
		po.collection_status
	FROM price_observations po
	JOIN markets m ON m.id = po.market_id
	JOIN products p ON p.id = po.product_id
	JOIN units u ON u.id = po.unit_id`,

	`CREATE OR REPLACE VIEW v_latest_prices AS
	SELECT
		m.name AS market,
		m.admin_1,
		p.name AS product,
		u.name AS unit,
		ranked.price_type,
		ranked.currency,
		ranked.period_date,
		ranked.value,
		ranked.common_currency_price
	FROM (
		SELECT po.*,
			ROW_NUMBER() OVER (
				PARTITION BY po.market_id, po.product_id, po.unit_id, po.price_type
				ORDER BY po.period_date DESC
			) AS rn
		FROM price_observations po
	) ranked
	JOIN markets m ON m.id = ranked.market_id
	JOIN products p ON p.id = ranked.product_id
	JOIN units u ON u.id = ranked.unit_id
	WHERE ranked.rn = 1`,
}

// CreateTables creates the schema if it does not exist yet.
func (s *Store) CreateTables(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to execute statement %q: %w", statement, err)
		}
	}
	s.log.Debug("database schema ready")
	return nil
}
