package collectors

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVColumns is the column order of price snapshots, matching the API fields.
var CSVColumns = []string{
	"market_id", "fnid", "market", "admin_1", "admin_2", "country_code", "latitude", "longitude",
	"product", "cpcv2", "cpcv2_description", "product_source", "is_staple_food",
	"unit", "unit_type", "common_unit",
	"datasourceorganization", "source_organization", "source_document",
	"period_date", "start_date", "price_type", "currency", "value", "exchange_rate",
	"common_unit_price", "common_currency_price", "collection_status", "dataseries", "modified",
}

// Snapshots start with a byte order mark so Excel opens them as UTF-8.
const utf8BOM = "\ufeff"

// WritePricesCSV writes records as CSV with a header row. Malformed records
// are left out.
func WritePricesCSV(w io.Writer, records []PriceRecord) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVColumns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for i, r := range records {
		if r.Malformed() {
			continue
		}
		if err := cw.Write(csvRow(r)); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(r PriceRecord) []string {
	return []string{
		r.MarketID.String(), r.FNID, r.Market, r.Admin1, r.Admin2, r.CountryCode, r.Latitude.String(), r.Longitude.String(),
		r.Product, r.CPCV2, r.CPCV2Description, r.ProductSource, strconv.FormatBool(r.IsStapleFood),
		r.Unit, r.UnitType, r.CommonUnit,
		r.DataSourceOrganization.String(), r.SourceOrganization, r.SourceDocument,
		r.PeriodDate, r.StartDate, r.PriceType, r.Currency, r.Value.String(), r.ExchangeRate.String(),
		r.CommonUnitPrice.String(), r.CommonCurrencyPrice.String(), r.CollectionStatus, r.DataSeries.String(), r.Modified,
	}
}
