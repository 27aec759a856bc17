package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmann1123/gwu-haiti-project/shared"
)

const (
	DefaultBaseURL = "https://fdw.fews.net/api"

	pricesEndpoint  = "marketpricefacts"
	marketsEndpoint = "market"

	// commoditySampleSize bounds the price sample used to list commodities.
	commoditySampleSize = 10000
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status fetching %s: %s", e.URL, e.Status)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client talks to the FEWS NET Data Warehouse API. The API is public and
// needs no authentication.
type Client struct {
	baseURL       string
	fast          *http.Client
	slow          *http.Client
	maxAttempts   int
	retryInterval time.Duration
	concurrency   int
	log           *zap.Logger
}

type Option func(*Client)

// WithHTTPClients overrides the shared fast and slow clients.
func WithHTTPClients(fast, slow *http.Client) Option {
	return func(c *Client) {
		c.fast = fast
		c.slow = slow
	}
}

// WithMaxAttempts sets how many times a request is tried in total.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryInterval sets the first backoff delay; later delays double.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) {
		c.retryInterval = d
	}
}

// WithConcurrency bounds the number of windows fetched in parallel.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = shared.OrNop(l)
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		fast:          shared.FastClient(),
		slow:          shared.SlowClient(),
		maxAttempts:   3,
		retryInterval: 2 * time.Second,
		concurrency:   3,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get fetches {base}/{endpoint}/?format=json&... into out, retrying transient failures.
func (c *Client) get(ctx context.Context, client *http.Client, endpoint string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("format", "json")
	target := fmt.Sprintf("%s/%s/?%s", c.baseURL, endpoint, params.Encode())

	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to construct request: %w", err))
		}

		res, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("error fetching %s: %w", target, err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			statusErr := &StatusError{URL: target, StatusCode: res.StatusCode, Status: res.Status}
			if statusErr.Retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode %s response: %w", endpoint, err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()

	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)
	return backoff.RetryNotify(operation, retries, func(err error, wait time.Duration) {
		c.log.Warn("request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}

// PriceQuery filters the marketpricefacts endpoint. Zero values are omitted.
type PriceQuery struct {
	CountryCode string
	StartDate   time.Time
	EndDate     time.Time
	Product     string
	Market      string
	Limit       int
}

func (q PriceQuery) values() url.Values {
	params := url.Values{}
	country := q.CountryCode
	if country == "" {
		country = DefaultCountryCode
	}
	params.Set("country_code", country)
	if !q.StartDate.IsZero() {
		params.Set("start_date", q.StartDate.Format(time.DateOnly))
	}
	if !q.EndDate.IsZero() {
		params.Set("end_date", q.EndDate.Format(time.DateOnly))
	}
	if q.Product != "" {
		params.Set("product", q.Product)
	}
	if q.Market != "" {
		params.Set("market", q.Market)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return params
}

// GetMarketPrices fetches price facts matching q in a single request.
func (c *Client) GetMarketPrices(ctx context.Context, q PriceQuery) ([]PriceRecord, error) {
	params := q.values()
	c.log.Info("fetching market prices", zap.String("params", params.Encode()))

	var rows []json.RawMessage
	if err := c.get(ctx, c.slow, pricesEndpoint, params, &rows); err != nil {
		return nil, err
	}

	records, malformed := decodePriceRows(rows)
	if malformed > 0 {
		c.log.Warn("some price rows could not be decoded", zap.Int("malformed", malformed), zap.Int("records", len(records)))
	}
	c.log.Info("retrieved market prices", zap.Int("records", len(records)))
	return records, nil
}

// GetMarketPricesRange fetches q's date range in windows of chunkMonths,
// several at a time, and returns the rows in window order. A chunkMonths of
// zero, or an open-ended range, results in a single request.
func (c *Client) GetMarketPricesRange(ctx context.Context, q PriceQuery, chunkMonths int) ([]PriceRecord, error) {
	if chunkMonths <= 0 || q.StartDate.IsZero() || q.EndDate.IsZero() {
		return c.GetMarketPrices(ctx, q)
	}

	windows := SplitWindows(q.StartDate, q.EndDate, chunkMonths)
	if len(windows) <= 1 {
		return c.GetMarketPrices(ctx, q)
	}

	results := make([][]PriceRecord, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, w := range windows {
		g.Go(func() error {
			wq := q
			wq.StartDate = w.Start
			wq.EndDate = w.End
			records, err := c.GetMarketPrices(gctx, wq)
			if err != nil {
				return fmt.Errorf("failed to fetch window %s: %w", w, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]PriceRecord, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

// GetMarkets lists the markets of a country.
func (c *Client) GetMarkets(ctx context.Context, countryCode string) ([]Market, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	params := url.Values{}
	params.Set("country_code", countryCode)

	var rows []json.RawMessage
	if err := c.get(ctx, c.fast, marketsEndpoint, params, &rows); err != nil {
		return nil, err
	}

	markets := make([]Market, 0, len(rows))
	for i, raw := range rows {
		var m Market
		if err := json.Unmarshal(raw, &m); err != nil {
			c.log.Warn("dropping undecodable market", zap.Int("row", i), zap.Error(err))
			continue
		}
		markets = append(markets, m)
	}
	c.log.Info("found markets", zap.String("country_code", countryCode), zap.Int("markets", len(markets)))
	return markets, nil
}

// GetCommodities returns the sorted product names seen in a sample of a
// country's price facts.
func (c *Client) GetCommodities(ctx context.Context, countryCode string) ([]string, error) {
	records, err := c.GetMarketPrices(ctx, PriceQuery{CountryCode: countryCode, Limit: commoditySampleSize})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, r := range records {
		if !r.Malformed() && r.Product != "" {
			seen[r.Product] = struct{}{}
		}
	}
	products := make([]string, 0, len(seen))
	for p := range seen {
		products = append(products, p)
	}
	sort.Strings(products)
	return products, nil
}

// TestConnection checks the API is reachable using the markets endpoint,
// which answers much faster than the price facts.
func (c *Client) TestConnection(ctx context.Context) error {
	params := url.Values{}
	params.Set("country_code", DefaultCountryCode)

	var markets []json.RawMessage
	if err := c.get(ctx, c.fast, marketsEndpoint, params, &markets); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}
