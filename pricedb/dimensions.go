package pricedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmann1123/gwu-haiti-project/collectors"
)

// getOrCreate returns the id found by lookup, inserting the row when it does
// not exist. The insert statement must return the new id.
func (s *Store) getOrCreate(ctx context.Context, lookup string, lookupArgs []any, insert string, insertArgs []any) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, lookup, lookupArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if err := s.db.QueryRowContext(ctx, insert, insertArgs...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Store) marketID(ctx context.Context, r collectors.PriceRecord) (int64, error) {
	fewsID, _ := r.MarketID.Int64()
	if id, ok := s.markets[fewsID]; ok {
		return id, nil
	}

	name := r.Market
	if name == "" {
		name = fmt.Sprintf("market %d", fewsID)
	}
	id, err := s.getOrCreate(ctx,
		`SELECT id FROM markets WHERE fews_id = $1`,
		[]any{fewsID},
		`INSERT INTO markets (fews_id, fnid, name, admin_1, admin_2, country_code, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		[]any{fewsID, nullString(r.FNID), name, nullString(r.Admin1), nullString(r.Admin2),
			r.CountryOrDefault(), r.Latitude.Any(), r.Longitude.Any()},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve market %d: %w", fewsID, err)
	}
	s.markets[fewsID] = id
	return id, nil
}

func (s *Store) productID(ctx context.Context, r collectors.PriceRecord) (int64, error) {
	key := productKey{name: r.Product, source: r.ProductSource}
	if id, ok := s.products[key]; ok {
		return id, nil
	}

	id, err := s.getOrCreate(ctx,
		`SELECT id FROM products WHERE name = $1 AND product_source = $2`,
		[]any{key.name, key.source},
		`INSERT INTO products (name, cpcv2, cpcv2_description, product_source, is_staple_food)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		[]any{key.name, nullString(r.CPCV2), nullString(r.CPCV2Description), key.source, r.IsStapleFood},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve product %q: %w", r.Product, err)
	}
	s.products[key] = id
	return id, nil
}

func (s *Store) unitID(ctx context.Context, r collectors.PriceRecord) (int64, error) {
	if id, ok := s.units[r.Unit]; ok {
		return id, nil
	}

	id, err := s.getOrCreate(ctx,
		`SELECT id FROM units WHERE name = $1`,
		[]any{r.Unit},
		`INSERT INTO units (name, unit_type, common_unit)
		VALUES ($1, $2, $3)
		RETURNING id`,
		[]any{r.Unit, nullString(r.UnitType), nullString(r.CommonUnit)},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve unit %q: %w", r.Unit, err)
	}
	s.units[r.Unit] = id
	return id, nil
}

// sourceID returns nil when the record names no source organization.
func (s *Store) sourceID(ctx context.Context, r collectors.PriceRecord) (any, error) {
	fewsID, ok := r.DataSourceOrganization.Int64()
	if !ok {
		return nil, nil
	}
	if id, ok := s.sources[fewsID]; ok {
		return id, nil
	}

	id, err := s.getOrCreate(ctx,
		`SELECT id FROM data_sources WHERE fews_id = $1`,
		[]any{fewsID},
		`INSERT INTO data_sources (fews_id, name, document_name)
		VALUES ($1, $2, $3)
		RETURNING id`,
		[]any{fewsID, nullString(r.SourceOrganization), nullString(r.SourceDocument)},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data source %d: %w", fewsID, err)
	}
	s.sources[fewsID] = id
	return id, nil
}
