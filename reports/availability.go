package reports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinMonths is the history a market needs before it is forecast.
const DefaultMinMonths = 24

const daysPerMonth = 30.44

// SeriesPoint is a single market observation of one commodity.
type SeriesPoint struct {
	Date     time.Time `json:"date"`
	MarketID int64     `json:"market_id"`
	Market   string    `json:"market"`
	Price    float64   `json:"price"`
}

// PriceSeries returns the non-null prices of a commodity in the given
// currency, ordered by market name then date.
func (r *Reports) PriceSeries(ctx context.Context, commodity, currency string) ([]SeriesPoint, error) {
	column, err := priceColumn(currency)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT po.period_date, m.id, m.name, po.%[1]s
		FROM price_observations po
		JOIN products p ON po.product_id = p.id
		JOIN markets m ON po.market_id = m.id
		WHERE p.name = $1 AND po.%[1]s IS NOT NULL
		ORDER BY m.name, po.period_date`, column)

	rows, err := r.db.QueryContext(ctx, query, commodity)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series for %q: %w", commodity, err)
	}
	defer rows.Close()

	var points []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Date, &p.MarketID, &p.Market, &p.Price); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Availability reports whether a market has enough history to forecast.
type Availability struct {
	Market       string  `json:"market"`
	Observations int     `json:"n_observations"`
	MonthsSpan   float64 `json:"months_span"`
	Sufficient   bool    `json:"sufficient"`
	Reason       string  `json:"reason,omitempty"`
}

// CheckAvailability evaluates each market in order of first appearance. A
// market is sufficient when both its observation count and the months between
// its first and last observation reach minMonths.
func CheckAvailability(points []SeriesPoint, minMonths int) []Availability {
	if minMonths <= 0 {
		minMonths = DefaultMinMonths
	}

	type span struct {
		n          int
		first, end time.Time
	}
	var order []string
	spans := make(map[string]*span)
	for _, p := range points {
		s, ok := spans[p.Market]
		if !ok {
			s = &span{first: p.Date, end: p.Date}
			spans[p.Market] = s
			order = append(order, p.Market)
		}
		s.n++
		if p.Date.Before(s.first) {
			s.first = p.Date
		}
		if p.Date.After(s.end) {
			s.end = p.Date
		}
	}

	result := make([]Availability, 0, len(order))
	for _, market := range order {
		s := spans[market]
		months := s.end.Sub(s.first).Hours() / 24 / daysPerMonth
		a := Availability{
			Market:       market,
			Observations: s.n,
			MonthsSpan:   math.Round(months*10) / 10,
			Sufficient:   s.n >= minMonths && months >= float64(minMonths),
		}
		if !a.Sufficient {
			a.Reason = fmt.Sprintf("Only %d observations (%.1f months)", s.n, months)
		}
		result = append(result, a)
	}
	return result
}

// SufficientMarkets returns the names of markets that passed CheckAvailability.
func SufficientMarkets(availability []Availability) []string {
	var markets []string
	for _, a := range availability {
		if a.Sufficient {
			markets = append(markets, a.Market)
		}
	}
	return markets
}

// MarketSeries returns one market's prices ordered by date. When a date
// repeats, the last value wins.
func MarketSeries(points []SeriesPoint, market string) []PricePoint {
	byDate := make(map[time.Time]decimal.Decimal)
	for _, p := range points {
		if p.Market == market {
			byDate[p.Date] = decimalFromFloat(p.Price)
		}
	}
	return sortedSeries(byDate)
}

// MarketAverage averages the prices of the given markets for each date.
func MarketAverage(points []SeriesPoint, markets []string) []PricePoint {
	include := make(map[string]bool, len(markets))
	for _, m := range markets {
		include[m] = true
	}

	sums := make(map[time.Time]decimal.Decimal)
	counts := make(map[time.Time]int64)
	for _, p := range points {
		if !include[p.Market] {
			continue
		}
		sums[p.Date] = sums[p.Date].Add(decimalFromFloat(p.Price))
		counts[p.Date]++
	}

	avg := make(map[time.Time]decimal.Decimal, len(sums))
	for d, sum := range sums {
		avg[d] = sum.Div(decimal.NewFromInt(counts[d]))
	}
	return sortedSeries(avg)
}

func sortedSeries(byDate map[time.Time]decimal.Decimal) []PricePoint {
	series := make([]PricePoint, 0, len(byDate))
	for d, v := range byDate {
		series = append(series, PricePoint{Date: d, Price: v})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series
}
