package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mmann1123/gwu-haiti-project/reports"
)

const (
	defaultImportLimit = 20
	maxImportLimit     = 500
)

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, reports.ErrUnknownCurrency) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// commodity reads the required commodity query parameter.
func commodity(c *gin.Context) (string, bool) {
	name := c.Query("commodity")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commodity is required"})
		return "", false
	}
	return name, true
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCommodities(c *gin.Context) {
	commodities, err := s.reports.Commodities(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commodities": commodities, "count": len(commodities)})
}

func (s *Server) handleMarkets(c *gin.Context) {
	markets, err := s.reports.Markets(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": markets, "count": len(markets)})
}

func (s *Server) handleDateRange(c *gin.Context) {
	dr, err := s.reports.DateRange(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dr)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.history.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultImportLimit)))
	if err != nil || limit < 1 || limit > maxImportLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	imports, err := s.history.RecentImports(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": imports, "count": len(imports)})
}

func (s *Server) handleMeanPrices(c *gin.Context) {
	name, ok := commodity(c)
	if !ok {
		return
	}
	prices, err := s.reports.MeanPrices(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commodity": name, "prices": prices})
}

func (s *Server) handleMarketPrices(c *gin.Context) {
	name, ok := commodity(c)
	if !ok {
		return
	}
	prices, err := s.reports.MarketPrices(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commodity": name, "prices": prices})
}

func (s *Server) handlePriceStatistics(c *gin.Context) {
	name, ok := commodity(c)
	if !ok {
		return
	}
	currency := c.DefaultQuery("currency", reports.CurrencyHTG)

	means, err := s.reports.MeanPrices(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return
	}
	series, err := reports.MeanSeries(means, currency)
	if err != nil {
		s.fail(c, err)
		return
	}

	stats, found := reports.CalculateStatistics(series)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prices for " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"commodity": name, "currency": currency, "statistics": stats})
}

func (s *Server) handleAvailability(c *gin.Context) {
	name, ok := commodity(c)
	if !ok {
		return
	}
	currency := c.DefaultQuery("currency", reports.CurrencyHTG)
	minMonths, err := strconv.Atoi(c.DefaultQuery("min_months", strconv.Itoa(reports.DefaultMinMonths)))
	if err != nil || minMonths < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_months must be a positive integer"})
		return
	}

	points, err := s.reports.PriceSeries(c.Request.Context(), name, currency)
	if err != nil {
		s.fail(c, err)
		return
	}

	availability := reports.CheckAvailability(points, minMonths)
	sufficient := reports.SufficientMarkets(availability)
	c.JSON(http.StatusOK, gin.H{
		"commodity":      name,
		"currency":       currency,
		"min_months":     minMonths,
		"markets":        availability,
		"market_average": reports.MarketAverage(points, sufficient),
	})
}
