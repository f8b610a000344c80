package advisor

import (
	"context"
	"time"

	"perptrader/internal/engine"
	"perptrader/internal/market"
)

// Action is the advisory verdict.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionHold  Action = "HOLD"
)

// Side maps a directional action onto a position side. HOLD has none.
func (a Action) Side() (engine.Side, bool) {
	switch a {
	case ActionLong:
		return engine.SideLong, true
	case ActionShort:
		return engine.SideShort, true
	}
	return "", false
}

// Request carries the market context for one analysis call.
type Request struct {
	Symbol    string
	Price     float64
	Candles   []market.Candle
	Sentiment float64 // 0-100, 50 neutral
}

// Signal is the advisory output, one per analysis.
type Signal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0-1
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Reasoning  string    `json:"reasoning"`
	Model      string    `json:"model"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Analyzer produces a signal from market context.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Signal, error)
}
