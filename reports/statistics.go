package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one value of a price series.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Statistics summarizes the tail of a monthly price series. Changes are
// percentages.
type Statistics struct {
	CurrentPrice decimal.Decimal  `json:"current_price"`
	CurrentDate  string           `json:"current_date"`
	MoMChange    *decimal.Decimal `json:"mom_change,omitempty"`
	YoYChange    *decimal.Decimal `json:"yoy_change,omitempty"`
	MovingAvg12M *decimal.Decimal `json:"moving_avg_12m,omitempty"`
}

var hundred = decimal.NewFromInt(100)

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// percentChange returns (cur-prev)/prev*100, or nil when prev is not positive.
func percentChange(cur, prev decimal.Decimal) *decimal.Decimal {
	if !prev.IsPositive() {
		return nil
	}
	change := cur.Sub(prev).Div(prev).Mul(hundred)
	return &change
}

// CalculateStatistics expects points ordered by date. ok is false for an
// empty series. Month-over-month compares the last two points, year-over-year
// the last point with the one twelve before it.
func CalculateStatistics(points []PricePoint) (Statistics, bool) {
	n := len(points)
	if n == 0 {
		return Statistics{}, false
	}

	latest := points[n-1]
	st := Statistics{
		CurrentPrice: latest.Price,
		CurrentDate:  latest.Date.Format(time.DateOnly),
	}

	if n >= 2 {
		st.MoMChange = percentChange(latest.Price, points[n-2].Price)
	}
	if n >= 13 {
		st.YoYChange = percentChange(latest.Price, points[n-13].Price)
	}
	if n >= 12 {
		sum := decimal.Zero
		for _, p := range points[n-12:] {
			sum = sum.Add(p.Price)
		}
		avg := sum.Div(decimal.NewFromInt(12))
		st.MovingAvg12M = &avg
	}
	return st, true
}
