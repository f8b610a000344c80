package binance

import "strconv"

// Kline is one candle as served by the REST and stream APIs.
type Kline struct {
	Symbol    string
	OpenTime  int64
	CloseTime int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Closed    bool
}

// AggTrade is an aggregated trade event, the chart/last-price stream.
type AggTrade struct {
	Symbol string
	Price  float64
	Qty    float64
	Time   int64
}

// MarkPrice is the perpetual mark-price event, the risk reference price.
type MarkPrice struct {
	Symbol      string
	Price       float64
	FundingRate float64
	Time        int64
}

// DepthSnapshot is a truncated order-book snapshot.
type DepthSnapshot struct {
	Symbol string
	Bids   [][2]float64 // price, amount
	Asks   [][2]float64
}

// f64 parses Binance's string-encoded numbers, 0 on malformed input.
func f64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
