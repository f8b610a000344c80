package market

import "time"

// Candle is one OHLCV bar. Time is the open time in unix milliseconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// Book is an order-book snapshot. Bids descend, asks ascend.
type Book struct {
	Symbol    string      `json:"symbol"`
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Imbalance is the normalized bid/ask depth difference in [-1, 1].
// Positive values mean bid pressure.
func (b *Book) Imbalance() float64 {
	var bid, ask float64
	for _, l := range b.Bids {
		bid += l.Amount
	}
	for _, l := range b.Asks {
		ask += l.Amount
	}
	total := bid + ask
	if total == 0 {
		return 0
	}
	return (bid - ask) / total
}

// Spread returns the absolute top-of-book spread and its percentage of the
// mid price. Both are 0 when either side is empty.
func (b *Book) Spread() (float64, float64) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0, 0
	}
	bestBid, bestAsk := b.Bids[0].Price, b.Asks[0].Price
	mid := (bestBid + bestAsk) / 2
	if mid == 0 {
		return 0, 0
	}
	spread := bestAsk - bestBid
	return spread, spread / mid * 100
}

// Sentiment maps book imbalance onto a 0-100 scale, 50 neutral. A nil or
// empty book is neutral.
func Sentiment(b *Book) float64 {
	if b == nil {
		return 50
	}
	return 50 + b.Imbalance()*50
}
