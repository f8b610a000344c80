package engine

import "time"

// Side is the direction of a leveraged exposure.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// direction returns +1 for LONG and -1 for SHORT.
func (s Side) direction() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// CloseReason labels why a position left the open set.
type CloseReason string

const (
	ReasonManual      CloseReason = "Manual Close"
	ReasonTakeProfit  CloseReason = "Take Profit"
	ReasonStopLoss    CloseReason = "Stop Loss"
	ReasonLiquidation CloseReason = "Liquidation"
	ReasonFlip        CloseReason = "AI Flip/Reversal"
)

// Position is an open leveraged exposure against the virtual balance.
// Margin is fixed at open; UnrealizedPnL and MarkPrice are recomputed on
// every mark-price update and never accumulated.
type Position struct {
	ID               string    `json:"id"`
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	Size             float64   `json:"size"` // notional, quote currency
	Margin           float64   `json:"margin"`
	EntryPrice       float64   `json:"entry_price"`
	MarkPrice        float64   `json:"mark_price"`
	Leverage         float64   `json:"leverage"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	LiquidationPrice float64   `json:"liquidation_price"`
	TakeProfit       float64   `json:"take_profit,omitempty"`
	StopLoss         float64   `json:"stop_loss,omitempty"`
	OpenedAt         time.Time `json:"opened_at"`
}

// ClosedTrade is the immutable record of a finished position.
type ClosedTrade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	EntryPrice float64     `json:"entry_price"`
	ExitPrice  float64     `json:"exit_price"`
	Size       float64     `json:"size"`
	Leverage   float64     `json:"leverage"`
	PnL        float64     `json:"pnl"`
	PnLPercent float64     `json:"pnl_percent"`
	Reason     CloseReason `json:"close_reason"`
	ClosedAt   time.Time   `json:"closed_at"`
}

// OpenRequest describes an open-trade intent, manual or advisor-driven.
// Numeric fields are assumed pre-validated by the caller; TakeProfit and
// StopLoss of zero select the default brackets.
type OpenRequest struct {
	Symbol     string
	Side       Side
	Size       float64
	Leverage   float64
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// Account is a derived snapshot of the ledger plus live unrealized PnL.
type Account struct {
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	MarginUsed   float64 `json:"margin_used"`
	FreeMargin   float64 `json:"free_margin"`
	DayPnL       float64 `json:"day_pnl"`
	StartBalance float64 `json:"start_balance"`
}
