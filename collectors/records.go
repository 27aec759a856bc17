package collectors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPriceType   = "Retail"
	DefaultCurrency    = "HTG"
	DefaultCountryCode = "HT"
)

// Number is a nullable numeric field. The FEWS NET API sends numbers, numeric
// strings and nulls for the same columns depending on the series.
type Number struct {
	Value float64
	Valid bool
}

// NewNumber returns a valid Number.
func NewNumber(v float64) Number {
	return Number{Value: v, Valid: true}
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = Number{}
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" || strings.EqualFold(raw, "nan") {
			*n = Number{}
			return nil
		}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", raw, err)
	}
	*n = NewNumber(v)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Int64 returns the value truncated to an integer id.
func (n Number) Int64() (int64, bool) {
	return int64(n.Value), n.Valid
}

// Any returns the value for a SQL parameter, nil when null.
func (n Number) Any() any {
	if !n.Valid {
		return nil
	}
	return n.Value
}

func (n Number) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// PriceRecord is one row of the marketpricefacts endpoint.
type PriceRecord struct {
	MarketID    Number `json:"market_id"`
	FNID        string `json:"fnid"`
	Market      string `json:"market"`
	Admin1      string `json:"admin_1"`
	Admin2      string `json:"admin_2"`
	CountryCode string `json:"country_code"`
	Latitude    Number `json:"latitude"`
	Longitude   Number `json:"longitude"`

	Product          string `json:"product"`
	CPCV2            string `json:"cpcv2"`
	CPCV2Description string `json:"cpcv2_description"`
	ProductSource    string `json:"product_source"`
	IsStapleFood     bool   `json:"is_staple_food"`

	Unit       string `json:"unit"`
	UnitType   string `json:"unit_type"`
	CommonUnit string `json:"common_unit"`

	DataSourceOrganization Number `json:"datasourceorganization"`
	SourceOrganization     string `json:"source_organization"`
	SourceDocument         string `json:"source_document"`

	PeriodDate          string `json:"period_date"`
	StartDate           string `json:"start_date"`
	PriceType           string `json:"price_type"`
	Currency            string `json:"currency"`
	Value               Number `json:"value"`
	ExchangeRate        Number `json:"exchange_rate"`
	CommonUnitPrice     Number `json:"common_unit_price"`
	CommonCurrencyPrice Number `json:"common_currency_price"`
	CollectionStatus    string `json:"collection_status"`
	DataSeries          Number `json:"dataseries"`
	Modified            string `json:"modified"`

	// decodeErr is set on rows the API sent but that could not be decoded.
	decodeErr error
}

var (
	ErrIncompleteRecord = errors.New("incomplete price record")
	ErrMalformedRecord  = errors.New("malformed price record")
)

// decodePriceRows decodes each row on its own. A row that fails to decode is
// kept as a malformed record so callers can count it.
func decodePriceRows(rows []json.RawMessage) ([]PriceRecord, int) {
	records := make([]PriceRecord, len(rows))
	malformed := 0
	for i, raw := range rows {
		if err := json.Unmarshal(raw, &records[i]); err != nil {
			records[i] = PriceRecord{decodeErr: err}
			malformed++
		}
	}
	return records, malformed
}

// Malformed reports whether the row could not be decoded.
func (r PriceRecord) Malformed() bool {
	return r.decodeErr != nil
}

// Validate checks the fields that make up the observation's natural key.
func (r PriceRecord) Validate() error {
	if r.decodeErr != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, r.decodeErr)
	}
	var missing []string
	if !r.MarketID.Valid {
		missing = append(missing, "market_id")
	}
	if strings.TrimSpace(r.Product) == "" {
		missing = append(missing, "product")
	}
	if strings.TrimSpace(r.Unit) == "" {
		missing = append(missing, "unit")
	}
	if _, err := r.Period(); err != nil {
		missing = append(missing, "period_date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRecord, strings.Join(missing, ", "))
	}
	return nil
}

// Period parses period_date, which the API sends either as a date or a timestamp.
func (r PriceRecord) Period() (time.Time, error) {
	return ParseDate(r.PeriodDate)
}

// Start parses start_date; ok is false when it is absent or malformed.
func (r PriceRecord) Start() (time.Time, bool) {
	t, err := ParseDate(r.StartDate)
	return t, err == nil
}

// ModifiedAt parses the API modification timestamp.
func (r PriceRecord) ModifiedAt() (time.Time, bool) {
	s := strings.TrimSpace(r.Modified)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (r PriceRecord) PriceTypeOrDefault() string {
	if r.PriceType == "" {
		return DefaultPriceType
	}
	return r.PriceType
}

func (r PriceRecord) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return r.Currency
}

func (r PriceRecord) CountryOrDefault() string {
	if r.CountryCode == "" {
		return DefaultCountryCode
	}
	return r.CountryCode
}

// ParseDate accepts YYYY-MM-DD optionally followed by a time component.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Parse(time.DateOnly, s[:len(time.DateOnly)])
}

// Market is one row of the market endpoint.
type Market struct {
	ID          Number `json:"id"`
	FNID        string `json:"fnid"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code"`
	Admin1      string `json:"admin_1"`
	Admin2      string `json:"admin_2"`
	Latitude    Number `json:"latitude"`
	Longitude   Number `json:"longitude"`
}
