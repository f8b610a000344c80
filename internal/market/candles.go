package market

import "sync"

// CandleCache keeps the last maxBars candles per symbol. A new bar with the
// same open time as the tail replaces it (live kline updates re-send the
// current bar until it closes).
type CandleCache struct {
	mu      sync.RWMutex
	maxBars int
	series  map[string][]Candle
}

func NewCandleCache(maxBars int) *CandleCache {
	if maxBars < 1 {
		maxBars = 100
	}
	return &CandleCache{maxBars: maxBars, series: make(map[string][]Candle)}
}

// Seed replaces the whole series for symbol, keeping the newest maxBars.
func (c *CandleCache) Seed(symbol string, candles []Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(candles) > c.maxBars {
		candles = candles[len(candles)-c.maxBars:]
	}
	c.series[symbol] = append([]Candle(nil), candles...)
}

// Append adds or updates the live bar.
func (c *CandleCache) Append(symbol string, bar Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.series[symbol]
	if n := len(s); n > 0 && s[n-1].Time == bar.Time {
		s[n-1] = bar
	} else {
		s = append(s, bar)
		if len(s) > c.maxBars {
			s = s[1:]
		}
	}
	c.series[symbol] = s
}

// Candles returns a copy of the series for symbol.
func (c *CandleCache) Candles(symbol string) []Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Candle(nil), c.series[symbol]...)
}

// Closes returns just the close prices, oldest first.
func (c *CandleCache) Closes(symbol string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.series[symbol]
	out := make([]float64, len(s))
	for i, bar := range s {
		out[i] = bar.Close
	}
	return out
}
