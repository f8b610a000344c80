package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"perptrader/internal/engine"
	"perptrader/internal/governor"
	"perptrader/internal/market"
)

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "running",
		"version":        s.Meta.Version,
		"symbols":        s.Meta.Symbols,
		"mock_feed":      s.Meta.UseMockFeed,
		"uptime_seconds": time.Since(s.started).Seconds(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.Engine.Positions()})
}

func (s *Server) getHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.Engine.History()})
}

func (s *Server) getAccount(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Account())
}

func (s *Server) getSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.Governor.ActiveSignals()})
}

func (s *Server) getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.Logs.Entries()})
}

// getBook serves the latest snapshot with derived pressure numbers. A
// missing book is neutral, not an error.
func (s *Server) getBook(c *gin.Context) {
	symbol := c.Param("symbol")
	book := s.Data.Book(symbol)
	if book == nil {
		c.JSON(http.StatusOK, gin.H{
			"book":      nil,
			"imbalance": 0,
			"sentiment": market.Sentiment(nil),
		})
		return
	}
	spread, spreadPct := book.Spread()
	c.JSON(http.StatusOK, gin.H{
		"book":       book,
		"imbalance":  book.Imbalance(),
		"sentiment":  market.Sentiment(book),
		"spread":     spread,
		"spread_pct": spreadPct,
	})
}

type openRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Side       string  `json:"side"`
	Size       float64 `json:"size" binding:"required,gt=0"`
	Leverage   float64 `json:"leverage" binding:"required,gte=1"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

func (s *Server) openPosition(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": err.Error(),
		})
		return
	}

	price, ok := s.Data.Price(req.Symbol)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "NO_PRICE",
			"error": "no price available for " + req.Symbol,
		})
		return
	}

	// A missing or unknown side is dropped by the engine, not rejected.
	pos := s.Engine.Open(engine.OpenRequest{
		Symbol:     req.Symbol,
		Side:       engine.Side(req.Side),
		Size:       req.Size,
		Leverage:   req.Leverage,
		EntryPrice: price,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
	})
	if pos == nil {
		c.JSON(http.StatusOK, gin.H{"position": nil})
		return
	}
	s.Metrics.IncrementOpens()
	c.JSON(http.StatusCreated, gin.H{"position": pos})
}

// closePosition is idempotent: closing a contested or unknown id reports
// closed=false with no error.
func (s *Server) closePosition(c *gin.Context) {
	trade, ok := s.Engine.Close(c.Param("id"), engine.ReasonManual)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"closed": false})
		return
	}
	s.Metrics.IncrementCloses()
	c.JSON(http.StatusOK, gin.H{"closed": true, "trade": trade})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Governor.Settings())
}

func (s *Server) updateSettings(c *gin.Context) {
	var req governor.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": err.Error(),
		})
		return
	}
	if req.MinConfidence < 0 || req.MinConfidence > 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_CONFIDENCE",
			"error": "min_confidence must be within [0, 1]",
		})
		return
	}
	s.Governor.UpdateSettings(req)
	c.JSON(http.StatusOK, req)
}

// triggerScan mirrors the UI's scan-now button. The scan outlives the
// request, so it runs on a detached context.
func (s *Server) triggerScan(c *gin.Context) {
	s.Metrics.IncrementScans()
	go s.Governor.Scan(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"scanning": true})
}
