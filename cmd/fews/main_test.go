package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mmann1123/gwu-haiti-project/pricedb"
	"github.com/mmann1123/gwu-haiti-project/shared"
)

const fakePrices = `[
	{"market_id": 101, "market": "Hinche", "admin_1": "Centre", "product": "Rice (Local)", "unit": "marmite",
	 "period_date": "2024-01-15", "price_type": "Retail", "currency": "HTG", "value": 450, "common_currency_price": 3.4},
	{"market_id": 102, "market": "Jacmel", "admin_1": "Sud-Est", "product": "Rice (Local)", "unit": "marmite",
	 "period_date": "2024-01-15", "price_type": "Retail", "currency": "HTG", "value": "470", "common_currency_price": 3.5}
]`

func setupCLI(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/market/":
			fmt.Fprint(w, `[{"id": 101, "name": "Hinche"}, {"id": 102, "name": "Jacmel"}]`)
		case "/api/marketpricefacts/":
			fmt.Fprint(w, fakePrices)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	logger = zaptest.NewLogger(t)
	cfg = shared.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "fews.duckdb")
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.API.ChunkMonths = 0
	cfg.DataDir = t.TempDir()
	cfg.Sync.HistoryStart = "2024-01-01"
}

func newTestCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestSyncCommands(t *testing.T) {
	setupCLI(t)

	cmd, out := newTestCommand(t)
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), "Database initialized")

	cmd, out = newTestCommand(t)
	require.NoError(t, runSync(cmd, nil))
	assert.Contains(t, out.String(), "(incremental) 2024-01-01")
	assert.Contains(t, out.String(), "inserted: 2")

	cmd, out = newTestCommand(t)
	require.NoError(t, runSync(cmd, nil))
	assert.Contains(t, out.String(), "Database is up to date")

	cmd, out = newTestCommand(t)
	require.NoError(t, runFull(cmd, nil))
	assert.Contains(t, out.String(), "updated:  2")

	cmd, out = newTestCommand(t)
	require.NoError(t, runStats(cmd, nil))
	assert.Contains(t, out.String(), "Observations: 2")
	assert.Contains(t, out.String(), "Markets:      2")
	assert.Contains(t, out.String(), "full")
	assert.Contains(t, out.String(), "incremental")

	cmd, out = newTestCommand(t)
	require.NoError(t, runQuery(cmd, []string{"SELECT market, value FROM v_prices ORDER BY market"}))
	assert.Contains(t, out.String(), "Hinche")
	assert.Contains(t, out.String(), "470")
	assert.Contains(t, out.String(), "(2 rows)")
}

func TestSyncSnapshot(t *testing.T) {
	setupCLI(t)
	snapshotFlag = true
	defer func() { snapshotFlag = false }()

	cmd, out := newTestCommand(t)
	require.NoError(t, runFull(cmd, nil))
	assert.Contains(t, out.String(), "snapshot:")

	matches, err := filepath.Glob(filepath.Join(cfg.DataDir, "fewsnet_ht_prices_*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestExportAndAvailability(t *testing.T) {
	setupCLI(t)

	cmd, _ := newTestCommand(t)
	require.NoError(t, runFull(cmd, nil))

	exportPath = filepath.Join(t.TempDir(), "out.sqlite")
	exportWait = time.Second
	defer func() { exportPath, exportWait = "", 0 }()
	cmd, out := newTestCommand(t)
	require.NoError(t, runExport(cmd, nil))
	assert.Contains(t, out.String(), "Exported 2 observations")
	_, err := os.Stat(exportPath)
	require.NoError(t, err)

	availabilityCommodity = "Rice (Local)"
	availabilityCurrency = "HTG"
	availabilityMinMonths = 24
	defer func() { availabilityCommodity = "" }()
	cmd, out = newTestCommand(t)
	require.NoError(t, runAvailability(cmd, nil))
	assert.Contains(t, out.String(), "Only 1 observations (0.0 months)")
	assert.Contains(t, out.String(), "0 of 2 markets")
}

func TestDownloadAndExplore(t *testing.T) {
	setupCLI(t)

	downloadStart = "2024-01-01"
	downloadEnd = "2024-01-31"
	downloadOutput = "rice.csv"
	defer func() { downloadStart, downloadEnd, downloadOutput = "", "", "" }()

	cmd, out := newTestCommand(t)
	require.NoError(t, runDownload(cmd, nil))
	assert.Contains(t, out.String(), "Saved 2 records")
	assert.Contains(t, out.String(), "markets:  2")
	_, err := os.Stat(filepath.Join(cfg.DataDir, "rice.csv"))
	require.NoError(t, err)

	cmd, out = newTestCommand(t)
	require.NoError(t, runExplore(cmd, nil))
	assert.Contains(t, out.String(), "API connection OK")
	assert.Contains(t, out.String(), "Markets (2)")
	assert.Contains(t, out.String(), "Rice (Local)")
}

func TestDownloadRejectsBadDate(t *testing.T) {
	setupCLI(t)
	downloadStart = "01/01/2024"
	defer func() { downloadStart = "" }()

	cmd, _ := newTestCommand(t)
	err := runDownload(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--start")
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "NULL", formatCell(nil))
	assert.Equal(t, "2024-01-15", formatCell(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-01-15T10:30:00Z", formatCell(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, "350.5", formatCell(350.5))
	assert.Equal(t, "42", formatCell(int64(42)))
}

func TestRunSyncLoopStopsOnCancel(t *testing.T) {
	setupCLI(t)
	ctx, cancel := context.WithCancel(context.Background())

	store, err := openStore(ctx)
	require.NoError(t, err)
	defer store.Close()
	s, err := newSyncer(store, newClient(), false)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		runSyncLoop(ctx, s, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		imports, err := store.RecentImports(context.Background(), 1)
		return err == nil && len(imports) == 1 && imports[0].Status == pricedb.StatusSuccess
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sync loop did not stop")
	}
}

func TestServeRecordsInterruptedSyncBeforeClosing(t *testing.T) {
	setupCLI(t)

	fetching := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/market/" {
			fmt.Fprint(w, `[]`)
			return
		}
		once.Do(func() { close(fetching) })
		<-r.Context().Done()
	}))
	defer srv.Close()
	cfg.API.BaseURL = srv.URL + "/api"
	servePort = "0"
	defer func() { servePort = "" }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd, _ := newTestCommand(t)
	cmd.SetContext(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- runServe(cmd, nil) }()

	select {
	case <-fetching:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never started fetching")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}

	store, err := openStore(context.Background())
	require.NoError(t, err)
	defer store.Close()
	imports, err := store.RecentImports(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, pricedb.StatusFailed, imports[0].Status)
	assert.Contains(t, imports[0].ErrorMessage, "context canceled")
}

func TestExportWaitsForData(t *testing.T) {
	setupCLI(t)

	cmd, _ := newTestCommand(t)
	require.NoError(t, runInit(cmd, nil))

	exportWait = 50 * time.Millisecond
	defer func() { exportWait = 0 }()
	cmd, _ = newTestCommand(t)
	err := runExport(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price data not ready")
	assert.Contains(t, err.Error(), "while waiting for tables")
}
