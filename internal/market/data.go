package market

import "perptrader/pkg/cache"

// Data is the read side of the market layer, shared by the live and mock
// feeds so consumers never care which one is running.
type Data struct {
	Prices      *cache.PriceCache
	CandleStore *CandleCache
	Books       *BookCache
}

func NewData() *Data {
	return &Data{
		Prices:      cache.NewPriceCache(16),
		CandleStore: NewCandleCache(200),
		Books:       NewBookCache(),
	}
}

// Price returns the last observed price for symbol.
func (d *Data) Price(symbol string) (float64, bool) {
	return d.Prices.Get(symbol)
}

// Candles returns the cached series for symbol, oldest first.
func (d *Data) Candles(symbol string) []Candle {
	return d.CandleStore.Candles(symbol)
}

// Sentiment derives the 0-100 directional score from the latest book,
// neutral when no book was captured.
func (d *Data) Sentiment(symbol string) float64 {
	return Sentiment(d.Books.Get(symbol))
}

// Book returns the latest snapshot or nil.
func (d *Data) Book(symbol string) *Book {
	return d.Books.Get(symbol)
}
