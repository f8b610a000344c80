package market

import (
	"context"
	"log"
	"time"

	"perptrader/internal/events"
)

// MockFeed generates a full synthetic market for offline development:
// random-walk ticks, aggregated candles, and fabricated books. It writes
// into the same Data caches as the live feed.
type MockFeed struct {
	Bus      *events.Bus
	Data     *Data
	Symbols  []string
	Interval time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Bus == nil || m.Data == nil {
		log.Println("[MOCK] feed not wired, refusing to start")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	bars := make(map[string]Candle, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = basePrice(sym)
	}
	log.Printf("[MOCK] feed started for %d symbols", len(m.Symbols))

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n++
				for _, sym := range m.Symbols {
					p := walk(prices[sym])
					prices[sym] = p
					m.Data.Prices.Set(sym, p)
					m.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: sym, Price: p})
					m.Bus.Publish(events.EventMarkPrice, events.PriceTick{Symbol: sym, Price: p})
					m.updateBar(sym, p, bars)

					// Books churn slower than ticks.
					if n%5 == 0 {
						book := syntheticBook(sym, p)
						m.Data.Books.Set(book)
						m.Bus.Publish(events.EventDepthUpdate, book)
					}
				}
			}
		}
	}()
}

// updateBar folds a tick into the current one-minute bar.
func (m *MockFeed) updateBar(sym string, p float64, bars map[string]Candle) {
	bucket := time.Now().Truncate(time.Minute).UnixMilli()
	bar, ok := bars[sym]
	if !ok || bar.Time != bucket {
		bar = Candle{Time: bucket, Open: p, High: p, Low: p, Close: p}
	}
	if p > bar.High {
		bar.High = p
	}
	if p < bar.Low {
		bar.Low = p
	}
	bar.Close = p
	bar.Volume += 1
	bars[sym] = bar

	m.Data.CandleStore.Append(sym, bar)
	m.Bus.Publish(events.EventCandleUpdate, bar)
}
