package market

import (
	"math/rand"
	"time"
)

// basePrices seeds the mock feed and synthetic fallback with plausible
// starting levels. Unknown symbols start at 100.
var basePrices = map[string]float64{
	"BTCUSDT":   60000,
	"ETHUSDT":   3000,
	"SOLUSDT":   150,
	"BNBUSDT":   550,
	"XRPUSDT":   0.55,
	"DOGEUSDT":  0.14,
	"ADAUSDT":   0.45,
	"AVAXUSDT":  30,
	"DOTUSDT":   6,
	"LINKUSDT":  15,
	"MATICUSDT": 0.6,
	"SHIBUSDT":  0.000020,
	"PEPEUSDT":  0.000010,
	"WIFUSDT":   2.5,
}

func basePrice(symbol string) float64 {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return 100
}

// walk moves price by up to +/-0.05%, the synthetic tick generator.
func walk(price float64) float64 {
	return price * (1 + (rand.Float64()*2-1)*0.0005)
}

// syntheticBook fabricates an order-book snapshot around price with 12
// levels per side, used when the depth endpoint is unreachable.
func syntheticBook(symbol string, price float64) *Book {
	const levels = 12
	book := &Book{Symbol: symbol, UpdatedAt: time.Now()}
	step := price * 0.0002
	for i := 1; i <= levels; i++ {
		amount := (rand.Float64() + 0.2) * 10 / float64(i)
		book.Bids = append(book.Bids, BookLevel{Price: price - step*float64(i), Amount: amount})
		amount = (rand.Float64() + 0.2) * 10 / float64(i)
		book.Asks = append(book.Asks, BookLevel{Price: price + step*float64(i), Amount: amount})
	}
	return book
}
