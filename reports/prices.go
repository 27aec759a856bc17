package reports

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// NonAgricultural products are listed after food commodities.
var NonAgricultural = map[string]bool{
	"Charcoal": true,
	"Diesel":   true,
	"Gasoline": true,
	"Kerosene": true,
}

// Commodities lists products with at least one observation, agricultural
// products first, each group alphabetical.
func (r *Reports) Commodities(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM products p
		JOIN price_observations po ON p.id = po.product_id
		ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query commodities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return OrderCommodities(names), nil
}

// OrderCommodities puts agricultural products ahead of fuels.
func OrderCommodities(names []string) []string {
	var agricultural, fuels []string
	for _, n := range names {
		if NonAgricultural[n] {
			fuels = append(fuels, n)
		} else {
			agricultural = append(agricultural, n)
		}
	}
	sort.Strings(agricultural)
	sort.Strings(fuels)
	return append(agricultural, fuels...)
}

type Market struct {
	Name      string   `json:"name"`
	Admin1    string   `json:"admin_1,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Markets lists markets with at least one observation.
func (r *Reports) Markets(ctx context.Context) ([]Market, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.name, m.admin_1, m.latitude, m.longitude
		FROM markets m
		WHERE EXISTS (SELECT 1 FROM price_observations po WHERE po.market_id = m.id)
		ORDER BY m.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()

	var markets []Market
	for rows.Next() {
		var m Market
		var admin1 sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&m.Name, &admin1, &lat, &lon); err != nil {
			return nil, err
		}
		m.Admin1 = admin1.String
		m.Latitude = nullFloat(lat)
		m.Longitude = nullFloat(lon)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

type DateRange struct {
	Min *time.Time `json:"min_date"`
	Max *time.Time `json:"max_date"`
}

func (r *Reports) DateRange(ctx context.Context) (DateRange, error) {
	var minDate, maxDate sql.NullTime
	if err := r.db.QueryRowContext(ctx,
		`SELECT MIN(period_date), MAX(period_date) FROM price_observations`,
	).Scan(&minDate, &maxDate); err != nil {
		return DateRange{}, fmt.Errorf("failed to query date range: %w", err)
	}
	return DateRange{Min: nullTime(minDate), Max: nullTime(maxDate)}, nil
}

// MeanPrice aggregates one commodity across markets for a period.
type MeanPrice struct {
	PeriodDate time.Time `json:"period_date"`
	MeanHTG    *float64  `json:"mean_price_htg"`
	MeanUSD    *float64  `json:"mean_price_usd"`
	MinHTG     *float64  `json:"min_price_htg"`
	MaxHTG     *float64  `json:"max_price_htg"`
	Markets    int       `json:"num_markets"`
}

func (r *Reports) MeanPrices(ctx context.Context, commodity string) ([]MeanPrice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			po.period_date,
			AVG(po.value),
			AVG(po.common_currency_price),
			MIN(po.value),
			MAX(po.value),
			COUNT(DISTINCT po.market_id)
		FROM price_observations po
		JOIN products p ON po.product_id = p.id
		WHERE p.name = $1
		GROUP BY po.period_date
		ORDER BY po.period_date`, commodity)
	if err != nil {
		return nil, fmt.Errorf("failed to query mean prices for %q: %w", commodity, err)
	}
	defer rows.Close()

	var prices []MeanPrice
	for rows.Next() {
		var mp MeanPrice
		var meanHTG, meanUSD, minHTG, maxHTG sql.NullFloat64
		if err := rows.Scan(&mp.PeriodDate, &meanHTG, &meanUSD, &minHTG, &maxHTG, &mp.Markets); err != nil {
			return nil, err
		}
		mp.MeanHTG = nullFloat(meanHTG)
		mp.MeanUSD = nullFloat(meanUSD)
		mp.MinHTG = nullFloat(minHTG)
		mp.MaxHTG = nullFloat(maxHTG)
		prices = append(prices, mp)
	}
	return prices, rows.Err()
}

type MarketPrice struct {
	Market     string    `json:"market"`
	PeriodDate time.Time `json:"period_date"`
	PriceHTG   *float64  `json:"price_htg"`
	PriceUSD   *float64  `json:"price_usd"`
}

// MarketPrices returns every observation of a commodity, by date then market.
func (r *Reports) MarketPrices(ctx context.Context, commodity string) ([]MarketPrice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.name, po.period_date, po.value, po.common_currency_price
		FROM price_observations po
		JOIN markets m ON po.market_id = m.id
		JOIN products p ON po.product_id = p.id
		WHERE p.name = $1
		ORDER BY po.period_date, m.name`, commodity)
	if err != nil {
		return nil, fmt.Errorf("failed to query market prices for %q: %w", commodity, err)
	}
	defer rows.Close()

	var prices []MarketPrice
	for rows.Next() {
		var mp MarketPrice
		var htg, usd sql.NullFloat64
		if err := rows.Scan(&mp.Market, &mp.PeriodDate, &htg, &usd); err != nil {
			return nil, err
		}
		mp.PriceHTG = nullFloat(htg)
		mp.PriceUSD = nullFloat(usd)
		prices = append(prices, mp)
	}
	return prices, rows.Err()
}

// MeanSeries turns mean prices into a price series for the given currency,
// dropping periods without a value.
func MeanSeries(means []MeanPrice, currency string) ([]PricePoint, error) {
	if _, err := priceColumn(currency); err != nil {
		return nil, err
	}
	points := make([]PricePoint, 0, len(means))
	for _, m := range means {
		v := m.MeanHTG
		if currency == CurrencyUSD {
			v = m.MeanUSD
		}
		if v == nil {
			continue
		}
		points = append(points, PricePoint{Date: m.PeriodDate, Price: decimalFromFloat(*v)})
	}
	return points, nil
}
