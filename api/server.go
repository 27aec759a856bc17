package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/pricedb"
	"github.com/mmann1123/gwu-haiti-project/reports"
	"github.com/mmann1123/gwu-haiti-project/shared"
)

// PriceReports is the read side the handlers query.
type PriceReports interface {
	Commodities(ctx context.Context) ([]string, error)
	Markets(ctx context.Context) ([]reports.Market, error)
	DateRange(ctx context.Context) (reports.DateRange, error)
	MeanPrices(ctx context.Context, commodity string) ([]reports.MeanPrice, error)
	MarketPrices(ctx context.Context, commodity string) ([]reports.MarketPrice, error)
	PriceSeries(ctx context.Context, commodity, currency string) ([]reports.SeriesPoint, error)
}

// ImportHistory exposes database statistics and the import log.
type ImportHistory interface {
	Stats(ctx context.Context) (pricedb.Stats, error)
	RecentImports(ctx context.Context, limit int) ([]pricedb.ImportEntry, error)
}

// Server serves the price data as JSON.
type Server struct {
	reports PriceReports
	history ImportHistory
	router  *gin.Engine
	log     *zap.Logger
}

func NewServer(r PriceReports, h ImportHistory, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		reports: r,
		history: h,
		router:  router,
		log:     shared.OrNop(log),
	}

	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/commodities", s.handleCommodities)
		api.GET("/markets", s.handleMarkets)
		api.GET("/date-range", s.handleDateRange)
		api.GET("/stats", s.handleStats)
		api.GET("/imports", s.handleImports)
		api.GET("/prices/mean", s.handleMeanPrices)
		api.GET("/prices/markets", s.handleMarketPrices)
		api.GET("/prices/stats", s.handlePriceStatistics)
		api.GET("/forecast/availability", s.handleAvailability)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", time.Since(start)))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("api stopped")
	return nil
}
