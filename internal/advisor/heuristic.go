package advisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"perptrader/internal/indicators"
)

const (
	smaShort  = 7
	smaLong   = 21
	rsiPeriod = 14
	volPeriod = 20
	minStop   = 0.01 // stop distance floor, fraction of price
)

// Heuristic is the deterministic local analyst: trend-follow on moving
// averages, tempered by RSI extremes and book sentiment. It is the fallback
// for every remote failure and never errors itself.
type Heuristic struct{}

func (Heuristic) Analyze(_ context.Context, req Request) (Signal, error) {
	closes := make([]float64, len(req.Candles))
	for i, c := range req.Candles {
		closes[i] = c.Close
	}

	if len(closes) < smaLong+1 {
		return Signal{
			ID:        uuid.NewString(),
			Symbol:    req.Symbol,
			Action:    ActionHold,
			Reasoning: "Insufficient data for analysis.",
			Model:     "System Wait",
			IssuedAt:  time.Now(),
		}, nil
	}

	var score float64
	if indicators.CrossedAbove(closes, smaShort, smaLong) {
		score++
	} else {
		score--
	}

	rsi := indicators.RSI(closes, rsiPeriod)
	switch {
	case rsi < 30:
		score += 0.5 // oversold, lean long
	case rsi > 70:
		score -= 0.5 // overbought, lean short
	}

	score += (req.Sentiment - 50) / 50

	action := ActionLong
	trend := "Bullish"
	if score < 0 {
		action = ActionShort
		trend = "Bearish"
	}

	// Stop scales with realized volatility, target keeps a 1:2 risk/reward.
	slPct := math.Max(minStop, indicators.Volatility(closes, volPeriod)*1.5)
	tpPct := slPct * 2
	dir := 1.0
	if action == ActionShort {
		dir = -1
	}

	return Signal{
		ID:         uuid.NewString(),
		Symbol:     req.Symbol,
		Action:     action,
		Confidence: 0.55 + 0.1*math.Min(math.Abs(score), 2),
		StopLoss:   req.Price * (1 - dir*slPct),
		TakeProfit: req.Price * (1 + dir*tpPct),
		Reasoning:  fmt.Sprintf("Trend is %s (RSI %.0f, sentiment %.0f).", trend, rsi, req.Sentiment),
		Model:      "Technical Analysis",
		IssuedAt:   time.Now(),
	}, nil
}
