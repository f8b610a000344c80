package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perptrader/internal/advisor"
	"perptrader/internal/api"
	"perptrader/internal/engine"
	"perptrader/internal/events"
	"perptrader/internal/governor"
	"perptrader/internal/market"
	"perptrader/internal/monitor"
	"perptrader/internal/notify"
	"perptrader/pkg/config"
	"perptrader/pkg/db"
	marketbinance "perptrader/pkg/market/binance"
)

const version = "1.0.0"

// tradeJournal adapts the sqlite queries to the engine's journal hook. The
// journal is append-only audit; nothing reads it back into live state.
type tradeJournal struct {
	q *db.Queries
}

func (j *tradeJournal) RecordClose(t engine.ClosedTrade) error {
	return j.q.InsertTrade(context.Background(), db.TradeRow{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		Size:       t.Size,
		Leverage:   t.Leverage,
		PnL:        t.PnL,
		PnLPercent: t.PnLPercent,
		Reason:     string(t.Reason),
		ClosedAt:   t.ClosedAt,
	})
}

// timedAnalyzer records analysis latency around the composed advisor.
type timedAnalyzer struct {
	inner advisor.Analyzer
	hist  *monitor.LatencyHistogram
}

func (a *timedAnalyzer) Analyze(ctx context.Context, req advisor.Request) (advisor.Signal, error) {
	timer := monitor.NewTimer(a.hist)
	defer timer.Stop()
	return a.inner.Analyze(ctx, req)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg := config.Load()
	log.Printf("🚀 perptrader %s starting on port %s", version, cfg.ServerPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ database init failed: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ database migration failed: %v", err)
	}
	queries := db.NewQueries(database.DB)

	universe, err := config.LoadTokens(cfg.TokensFile)
	if err != nil {
		log.Fatalf("❌ token universe load failed: %v", err)
	}
	symbols := universe.SymbolList()
	log.Printf("📋 trading universe: %d symbols", len(symbols))

	// Risk engine
	engCfg := engine.DefaultConfig()
	engCfg.StartBalance = cfg.StartBalance
	eng := engine.New(engCfg, bus, &tradeJournal{q: queries})

	// Market layer
	data := market.NewData()
	if cfg.UseMockFeed {
		mock := &market.MockFeed{Bus: bus, Data: data, Symbols: symbols}
		mock.Start(ctx)
	} else {
		feed := market.NewFeed(bus,
			marketbinance.NewStreamClient(cfg.BinanceWSURL),
			marketbinance.NewRestClient(),
			data, symbols)
		feed.Start(ctx)
	}

	// Advisory stack
	var remote advisor.Analyzer
	if cfg.AdvisorEndpoint != "" {
		remote = advisor.NewRemoteAnalyzer(cfg.AdvisorEndpoint, cfg.AdvisorAPIKey, cfg.AdvisorModel, cfg.AdvisorRPM)
		log.Printf("🧠 remote advisor enabled: %s", cfg.AdvisorModel)
	} else {
		log.Println("🧠 no advisor endpoint, running local heuristic only")
	}
	govCfg := governor.DefaultConfig()
	govCfg.ScanInterval = cfg.ScanInterval
	analyzer := &timedAnalyzer{inner: advisor.NewService(remote), hist: metrics.AdvisorLatency}
	gov := governor.New(govCfg, eng, analyzer, data, bus, symbols)
	go gov.Run(ctx)

	// Mark-to-market pump: both trade ticks and mark-price ticks drive the
	// risk sweep.
	go func() {
		ticks, unsubTicks := bus.Subscribe(events.EventPriceTick, 256)
		defer unsubTicks()
		marks, unsubMarks := bus.Subscribe(events.EventMarkPrice, 256)
		defer unsubMarks()

		sweep := func(raw any) {
			tick, ok := raw.(events.PriceTick)
			if !ok {
				return
			}
			metrics.IncrementTicks()
			timer := monitor.NewTimer(metrics.MarkLatency)
			eng.MarkToMarket(tick.Symbol, tick.Price)
			timer.Stop()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ticks:
				if !ok {
					return
				}
				sweep(raw)
			case raw, ok := <-marks:
				if !ok {
					return
				}
				sweep(raw)
			}
		}
	}()

	// Advisory log stream: API ring buffer plus the journal.
	logBuf := api.NewLogBuffer(200)
	go logBuf.Collect(ctx, bus)
	go func() {
		ch, unsub := bus.Subscribe(events.EventAdvisorLog, 128)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				entry, valid := raw.(events.LogEntry)
				if !valid {
					continue
				}
				if err := queries.InsertLog(ctx, db.LogRow{Time: entry.Time, Message: entry.Message}); err != nil {
					log.Printf("[MAIN] advisor log journal failed: %v", err)
				}
			}
		}
	}()

	// Notifications
	notifier := notify.New(bus, gov, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	go notifier.Run(ctx)

	// HTTP boundary
	server := api.NewServer(bus, eng, gov, data, metrics, logBuf, cfg.JWTSecret, api.SystemMeta{
		Symbols:     symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     version,
	})
	go func() {
		if err := server.Start(":" + cfg.ServerPort); err != nil {
			log.Fatalf("❌ server failed: %v", err)
		}
	}()
	log.Printf("✅ perptrader ready (mock feed: %v)", cfg.UseMockFeed)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 shutting down")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
