package collectors

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePrices = `[
  {"market_id": 101, "fnid": "HT2001M01", "market": "Port-au-Prince, Croix-de-Bossales", "admin_1": "Ouest", "admin_2": "Port-au-Prince",
   "country_code": "HT", "latitude": 18.55, "longitude": -72.34, "product": "Rice (Imported)", "product_source": "Import",
   "unit": "6 lb", "datasourceorganization": "7", "period_date": "2024-01-15", "price_type": "Retail", "currency": "HTG",
   "value": "350.5", "common_currency_price": 2.66, "dataseries": 5521, "modified": "2024-02-02T10:11:12Z"},
  {"market_id": 102, "market": "Jeremie", "product": "Beans (Black)", "unit": "marmite", "period_date": "2024-01-15T00:00:00",
   "value": null, "common_currency_price": "NaN"}
]`

func newTestClient(srv *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithHTTPClients(srv.Client(), srv.Client()),
		WithRetryInterval(time.Millisecond),
	}
	return NewClient(srv.URL+"/api", append(base, opts...)...)
}

func TestGetMarketPricesDecodesMixedTypes(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/marketpricefacts/", r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, samplePrices)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	records, err := client.GetMarketPrices(context.Background(), PriceQuery{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Product:   "Rice (Imported)",
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Contains(t, gotQuery, "format=json")
	assert.Contains(t, gotQuery, "country_code=HT")
	assert.Contains(t, gotQuery, "start_date=2024-01-01")
	assert.Contains(t, gotQuery, "end_date=2024-01-31")
	assert.Contains(t, gotQuery, "product=Rice+%28Imported%29")

	rice := records[0]
	assert.Equal(t, NewNumber(101), rice.MarketID)
	assert.Equal(t, NewNumber(350.5), rice.Value)
	assert.Equal(t, NewNumber(7), rice.DataSourceOrganization)
	assert.Equal(t, NewNumber(2.66), rice.CommonCurrencyPrice)
	modified, ok := rice.ModifiedAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 2, 2, 10, 11, 12, 0, time.UTC), modified)

	beans := records[1]
	assert.False(t, beans.Value.Valid)
	assert.False(t, beans.CommonCurrencyPrice.Valid)
	period, err := beans.Period()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), period)
}

func TestGetMarketPricesKeepsRowsAroundMalformedOnes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
		  {"market_id": 101, "product": "Rice (Local)", "unit": "marmite", "period_date": "2024-01-15", "value": "12.5"},
		  {"market_id": 101, "product": "Sugar", "unit": "kg", "period_date": "2024-01-15", "value": "N/A"},
		  {"market_id": 102, "product": "Maize Grain (Local)", "unit": "marmite", "period_date": "2024-01-15", "is_staple_food": "yes"},
		  {"market_id": 103, "product": "Beans (Black)", "unit": "marmite", "period_date": "2024-01-15", "value": 600}
		]`)
	}))
	defer srv.Close()

	records, err := newTestClient(srv).GetMarketPrices(context.Background(), PriceQuery{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.False(t, records[0].Malformed())
	assert.Equal(t, NewNumber(12.5), records[0].Value)
	assert.True(t, records[1].Malformed())
	assert.ErrorIs(t, records[1].Validate(), ErrMalformedRecord)
	assert.True(t, records[2].Malformed())
	assert.False(t, records[3].Malformed())
	assert.Equal(t, "Beans (Black)", records[3].Product)
	assert.NoError(t, records[3].Validate())
}

func TestGetRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	records, err := newTestClient(srv).GetMarketPrices(context.Background(), PriceQuery{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, WithMaxAttempts(2)).GetMarketPrices(context.Background(), PriceQuery{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetMarketPrices(context.Background(), PriceQuery{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.False(t, statusErr.Retryable())
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv).GetMarketPrices(ctx, PriceQuery{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetMarketPricesRangeFetchesEveryWindow(t *testing.T) {
	var mu sync.Mutex
	var windows []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start_date")
		end := r.URL.Query().Get("end_date")
		mu.Lock()
		windows = append(windows, start+".."+end)
		mu.Unlock()
		fmt.Fprintf(w, `[{"market_id": 1, "product": "Maize", "unit": "kg", "period_date": %q}]`, start)
	}))
	defer srv.Close()

	records, err := newTestClient(srv, WithConcurrency(2)).GetMarketPricesRange(context.Background(), PriceQuery{
		StartDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
	}, 12)
	require.NoError(t, err)

	sort.Strings(windows)
	assert.Equal(t, []string{
		"2022-01-01..2022-12-31",
		"2023-01-01..2023-12-31",
		"2024-01-01..2024-03-15",
	}, windows)

	require.Len(t, records, 3)
	assert.Equal(t, "2022-01-01", records[0].PeriodDate)
	assert.Equal(t, "2023-01-01", records[1].PeriodDate)
	assert.Equal(t, "2024-01-01", records[2].PeriodDate)
}

func TestGetMarketPricesRangeFailsWhenAnyWindowFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start_date") == "2023-01-01" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).GetMarketPricesRange(context.Background(), PriceQuery{
		StartDate: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
	}, 12)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2023-01-01..2023-06-30")
}

func TestGetCommoditiesSortedUnique(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10000", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `[{"product": "Sugar"}, {"product": "Beans (Black)"}, {"product": "Sugar"}, {"product": ""}]`)
	}))
	defer srv.Close()

	products, err := newTestClient(srv).GetCommodities(context.Background(), "HT")
	require.NoError(t, err)
	assert.Equal(t, []string{"Beans (Black)", "Sugar"}, products)
}

func TestGetMarketsAndTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/", r.URL.Path)
		fmt.Fprint(w, `[{"id": 101, "name": "Cap Haitien", "admin_1": "Nord", "latitude": "19.75"}]`)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	require.NoError(t, client.TestConnection(context.Background()))

	markets, err := client.GetMarkets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "Cap Haitien", markets[0].Name)
	assert.Equal(t, NewNumber(19.75), markets[0].Latitude)
}

func TestTestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestClient(srv).TestConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
}
