package pricedb

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmann1123/gwu-haiti-project/collectors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, zaptest.NewLogger(t))
	require.NoError(t, s.CreateTables(context.Background()))
	return s
}

func record(marketID float64, product, unit, period string, value float64) collectors.PriceRecord {
	return collectors.PriceRecord{
		MarketID:            collectors.NewNumber(marketID),
		Market:              "Market",
		Admin1:              "Ouest",
		Product:             product,
		ProductSource:       "Local",
		Unit:                unit,
		PeriodDate:          period,
		PriceType:           "Retail",
		Currency:            "HTG",
		Value:               collectors.NewNumber(value),
		CommonCurrencyPrice: collectors.NewNumber(value / 130),
	}
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateTables(context.Background()))

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalObservations)
	assert.Nil(t, st.DateMin)
	assert.Nil(t, st.LastImport)
}

func TestSyncRecordsInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := []collectors.PriceRecord{
		record(101, "Rice (Imported)", "6 lb", "2024-01-15", 350),
		record(101, "Rice (Imported)", "6 lb", "2024-02-15", 360),
		record(102, "Rice (Imported)", "6 lb", "2024-01-15", 340),
	}
	stats, err := s.SyncRecords(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Inserted: 3}, stats)

	revised := record(101, "Rice (Imported)", "6 lb", "2024-02-15", 375)
	stats, err = s.SyncRecords(ctx, []collectors.PriceRecord{revised})
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Updated: 1}, stats)

	var value float64
	var count int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(value) FROM price_observations WHERE period_date = $1`, date("2024-02-15"),
	).Scan(&count, &value))
	assert.Equal(t, 1, count)
	assert.InDelta(t, 375, value, 1e-9)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.TotalObservations)
	assert.EqualValues(t, 2, st.TotalMarkets)
	assert.EqualValues(t, 1, st.TotalProducts)
	assert.EqualValues(t, 1, st.TotalUnits)
	require.NotNil(t, st.DateMin)
	require.NotNil(t, st.DateMax)
	assert.Equal(t, "2024-01-15", st.DateMin.Format(time.DateOnly))
	assert.Equal(t, "2024-02-15", st.DateMax.Format(time.DateOnly))
}

func TestSyncRecordsDistinguishesPriceType(t *testing.T) {
	s := newTestStore(t)

	retail := record(101, "Maize Meal", "marmite", "2024-03-15", 200)
	wholesale := retail
	wholesale.PriceType = "Wholesale"
	wholesale.Value = collectors.NewNumber(180)

	stats, err := s.SyncRecords(context.Background(), []collectors.PriceRecord{retail, wholesale})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)
}

func TestSyncRecordsSkipsIncompleteRows(t *testing.T) {
	s := newTestStore(t)

	noMarket := record(0, "Beans (Black)", "marmite", "2024-01-15", 500)
	noMarket.MarketID = collectors.Number{}
	noPeriod := record(101, "Beans (Black)", "marmite", "", 500)
	noUnit := record(101, "Beans (Black)", "", "2024-01-15", 500)

	stats, err := s.SyncRecords(context.Background(), []collectors.PriceRecord{
		noMarket, noPeriod, noUnit,
		record(101, "Beans (Black)", "marmite", "2024-01-15", 500),
	})
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Inserted: 1, Skipped: 3}, stats)
	assert.Equal(t, 4, stats.Total())
}

func TestSyncRecordsCountsRowErrorsAndContinues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	core, logs := observer.New(zapcore.WarnLevel)
	s.log = zap.New(core)

	badMarket := record(3e9, "Rice (Local)", "marmite", "2024-01-15", 450)
	records := []collectors.PriceRecord{badMarket}
	for i := 0; i < 6; i++ {
		r := record(101, fmt.Sprintf("Product %d", i), "marmite", "2024-01-15", 100)
		r.DataSeries = collectors.NewNumber(5e9)
		records = append(records, r)
	}
	records = append(records, record(101, "Beans (Black)", "marmite", "2024-01-15", 600))

	stats, err := s.SyncRecords(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Inserted: 1, Errors: 7}, stats)

	var value float64
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT value FROM v_prices WHERE product = $1`, "Beans (Black)",
	).Scan(&value))
	assert.InDelta(t, 600, value, 1e-9)

	assert.Equal(t, maxLoggedErrors, logs.FilterMessage("failed to store record").Len())
	hidden := logs.FilterMessage("additional record errors not shown").All()
	require.Len(t, hidden, 1)
	assert.EqualValues(t, 2, hidden[0].ContextMap()["hidden"])
}

func TestSyncRecordsTreatsMissingProductSourceAsEmpty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := record(101, "Charcoal", "marmite", "2024-01-15", 100)
	a.ProductSource = ""
	b := record(102, "Charcoal", "marmite", "2024-01-15", 110)
	b.ProductSource = ""

	_, err := s.SyncRecords(ctx, []collectors.PriceRecord{a, b})
	require.NoError(t, err)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Charcoal"}, products)
}

func TestSyncRecordsStoresNullsAndSources(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	withSource := record(101, "Sugar", "lb", "2024-01-15", 90)
	withSource.DataSourceOrganization = collectors.NewNumber(7)
	withSource.SourceOrganization = "CNSA"
	missingValue := record(101, "Sugar", "lb", "2024-02-15", 0)
	missingValue.Value = collectors.Number{}
	missingValue.CommonCurrencyPrice = collectors.Number{}

	stats, err := s.SyncRecords(ctx, []collectors.PriceRecord{withSource, missingValue})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Inserted)

	var sources int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM data_sources`).Scan(&sources))
	assert.Equal(t, 1, sources)

	var nullValues int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_observations WHERE value IS NULL AND source_id IS NULL`).Scan(&nullValues))
	assert.Equal(t, 1, nullValues)
}

func TestSyncRecordsHonorsCancellation(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SyncRecords(ctx, []collectors.PriceRecord{record(101, "Rice", "lb", "2024-01-15", 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListMarkets(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	jeremie := record(102, "Rice", "lb", "2024-01-15", 1)
	jeremie.Market = "Jeremie"
	jeremie.Admin1 = "Grand'Anse"
	cayes := record(103, "Rice", "lb", "2024-01-15", 1)
	cayes.Market = "Cayes"
	cayes.Admin1 = "Sud"

	_, err := s.SyncRecords(ctx, []collectors.PriceRecord{jeremie, cayes})
	require.NoError(t, err)

	markets, err := s.ListMarkets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, MarketInfo{FewsID: 103, Name: "Cayes", Admin1: "Sud"}, markets[0])
	assert.Equal(t, "Jeremie", markets[1].Name)
}

func TestLatestPricesView(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.SyncRecords(ctx, []collectors.PriceRecord{
		record(101, "Rice", "lb", "2024-01-15", 10),
		record(101, "Rice", "lb", "2024-03-15", 12),
		record(101, "Rice", "lb", "2024-02-15", 11),
	})
	require.NoError(t, err)

	res, err := s.Query(ctx, `SELECT period_date, value FROM `+LatestPricesView)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"period_date", "value"}, res.Columns)
	assert.Equal(t, 12.0, res.Rows[0][1])
}
