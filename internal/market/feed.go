package market

import (
	"context"
	"log"
	"sync"
	"time"

	"perptrader/internal/events"
	"perptrader/pkg/market/binance"
)

const (
	klineInterval  = "1m"
	backfillBars   = 100
	depthLimit     = 20
	reconnectDelay = 5 * time.Second
	depthPollEvery = 3 * time.Second
	livenessWindow = 3 * time.Second
	watchdogEvery  = time.Second
)

// Feed supervises the live Binance streams for every symbol in the
// universe. A liveness watchdog substitutes synthetic ticks after 3s of
// stream silence so mark-to-market never stalls; real ticks take over again
// as soon as the stream resumes.
type Feed struct {
	bus     *events.Bus
	streams *binance.StreamClient
	rest    *binance.RestClient
	data    *Data
	symbols []string

	mu        sync.Mutex
	synthetic map[string]float64 // symbols currently on synthetic ticks
}

func NewFeed(bus *events.Bus, streams *binance.StreamClient, rest *binance.RestClient, data *Data, symbols []string) *Feed {
	return &Feed{
		bus:       bus,
		streams:   streams,
		rest:      rest,
		data:      data,
		symbols:   symbols,
		synthetic: make(map[string]float64),
	}
}

// Start backfills candles and launches the stream, depth and watchdog
// goroutines. All failures degrade; none are fatal.
func (f *Feed) Start(ctx context.Context) {
	f.backfill(ctx)
	for _, sym := range f.symbols {
		go f.runSymbol(ctx, sym)
	}
	go f.pollDepth(ctx)
	go f.watchdog(ctx)
	log.Printf("[FEED] live feed started for %d symbols", len(f.symbols))
}

func (f *Feed) backfill(ctx context.Context) {
	for _, sym := range f.symbols {
		klines, err := f.rest.Klines(ctx, sym, klineInterval, backfillBars)
		if err != nil {
			log.Printf("[FEED] backfill %s failed: %v", sym, err)
			continue
		}
		candles := make([]Candle, 0, len(klines))
		for _, k := range klines {
			candles = append(candles, Candle{
				Time: k.OpenTime, Open: k.Open, High: k.High,
				Low: k.Low, Close: k.Close, Volume: k.Volume,
			})
		}
		f.data.CandleStore.Seed(sym, candles)
		if n := len(candles); n > 0 {
			f.data.Prices.Set(sym, candles[n-1].Close)
		}
	}
}

// runSymbol keeps the three streams for one symbol alive, reconnecting
// after any failure.
func (f *Feed) runSymbol(ctx context.Context, sym string) {
	for {
		if ctx.Err() != nil {
			return
		}
		f.streamOnce(ctx, sym)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) streamOnce(ctx context.Context, sym string) {
	trades, stopTrades, err := f.streams.SubscribeAggTrades(ctx, sym)
	if err != nil {
		log.Printf("[FEED] %s aggTrade subscribe failed: %v", sym, err)
		return
	}
	defer stopTrades()

	marks, stopMarks, err := f.streams.SubscribeMarkPrice(ctx, sym)
	if err != nil {
		log.Printf("[FEED] %s markPrice subscribe failed: %v", sym, err)
		return
	}
	defer stopMarks()

	klines, stopKlines, err := f.streams.SubscribeKlines(ctx, sym, klineInterval)
	if err != nil {
		log.Printf("[FEED] %s kline subscribe failed: %v", sym, err)
		return
	}
	defer stopKlines()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			f.onTrade(t)
		case mp, ok := <-marks:
			if !ok {
				return
			}
			f.bus.Publish(events.EventMarkPrice, events.PriceTick{Symbol: mp.Symbol, Price: mp.Price})
		case k, ok := <-klines:
			if !ok {
				return
			}
			bar := Candle{
				Time: k.OpenTime, Open: k.Open, High: k.High,
				Low: k.Low, Close: k.Close, Volume: k.Volume,
			}
			f.data.CandleStore.Append(sym, bar)
			f.bus.Publish(events.EventCandleUpdate, bar)
		}
	}
}

func (f *Feed) onTrade(t binance.AggTrade) {
	f.mu.Lock()
	if _, wasSynthetic := f.synthetic[t.Symbol]; wasSynthetic {
		delete(f.synthetic, t.Symbol)
		log.Printf("[FEED] %s stream resumed, dropping synthetic ticks", t.Symbol)
	}
	f.mu.Unlock()

	f.data.Prices.Set(t.Symbol, t.Price)
	f.bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: t.Symbol, Price: t.Price})
}

// watchdog substitutes synthetic ticks for symbols whose stream has gone
// quiet past the liveness window.
func (f *Feed) watchdog(ctx context.Context) {
	t := time.NewTicker(watchdogEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, sym := range f.symbols {
				price, age, ok := f.data.Prices.GetWithAge(sym)
				if !ok || age < livenessWindow {
					continue
				}
				f.mu.Lock()
				last, active := f.synthetic[sym]
				if !active {
					last = price
					log.Printf("[FEED] %s silent for %v, switching to synthetic ticks", sym, age.Round(time.Second))
				}
				next := walk(last)
				f.synthetic[sym] = next
				f.mu.Unlock()

				f.bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: sym, Price: next})
				f.bus.Publish(events.EventMarkPrice, events.PriceTick{Symbol: sym, Price: next})
			}
		}
	}
}

// pollDepth refreshes book snapshots, fabricating one when the endpoint
// is unreachable so sentiment never errors out.
func (f *Feed) pollDepth(ctx context.Context) {
	t := time.NewTicker(depthPollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, sym := range f.symbols {
				book := f.fetchBook(ctx, sym)
				if book == nil {
					continue
				}
				f.data.Books.Set(book)
				f.bus.Publish(events.EventDepthUpdate, book)
			}
		}
	}
}

func (f *Feed) fetchBook(ctx context.Context, sym string) *Book {
	snap, err := f.rest.Depth(ctx, sym, depthLimit)
	if err != nil {
		price, ok := f.data.Prices.Get(sym)
		if !ok {
			return nil
		}
		return syntheticBook(sym, price)
	}
	book := &Book{Symbol: sym, UpdatedAt: time.Now()}
	for _, b := range snap.Bids {
		book.Bids = append(book.Bids, BookLevel{Price: b[0], Amount: b[1]})
	}
	for _, a := range snap.Asks {
		book.Asks = append(book.Asks, BookLevel{Price: a[0], Amount: a[1]})
	}
	return book
}
