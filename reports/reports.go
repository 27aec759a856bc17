package reports

import (
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/shared"
)

const (
	CurrencyHTG = "HTG"
	CurrencyUSD = "USD"
)

var ErrUnknownCurrency = errors.New("currency must be HTG or USD")

// Reports runs the read-side queries behind the dashboard and the API.
type Reports struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, log *zap.Logger) *Reports {
	return &Reports{db: db, log: shared.OrNop(log)}
}

// priceColumn maps a currency to the observation column holding it.
func priceColumn(currency string) (string, error) {
	switch currency {
	case "", CurrencyHTG:
		return "value", nil
	case CurrencyUSD:
		return "common_currency_price", nil
	}
	return "", ErrUnknownCurrency
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
