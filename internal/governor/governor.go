package governor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"perptrader/internal/advisor"
	"perptrader/internal/engine"
	"perptrader/internal/events"
	"perptrader/internal/market"
)

// Config tunes the governor's thresholds and windows.
type Config struct {
	HighConfidence  float64       // always notify above this
	FlipThreshold   float64       // reversal confidence needed to flip
	GracePeriod     time.Duration // leave young positions alone
	FlipSettleDelay time.Duration // pause between flip close and re-open
	Cooldown        time.Duration // scan suppression after an execution
	ScanInterval    time.Duration
}

// DefaultConfig returns the governor defaults.
func DefaultConfig() Config {
	return Config{
		HighConfidence:  0.8,
		FlipThreshold:   0.80,
		GracePeriod:     60 * time.Second,
		FlipSettleDelay: 800 * time.Millisecond,
		Cooldown:        5 * time.Second,
		ScanInterval:    30 * time.Second,
	}
}

// Settings is the user-tunable auto-trade policy.
type Settings struct {
	AutoTrade     bool     `json:"auto_trade"`
	MinConfidence float64  `json:"min_confidence"`
	Channels      Channels `json:"channels"`
}

// Channels selects which notification sinks are active.
type Channels struct {
	Signals  bool `json:"signals"`
	Trades   bool `json:"trades"`
	Telegram bool `json:"telegram"`
}

// DefaultSettings starts with auto-trade off and every channel on.
func DefaultSettings() Settings {
	return Settings{
		AutoTrade:     false,
		MinConfidence: 0.65,
		Channels:      Channels{Signals: true, Trades: true, Telegram: true},
	}
}

// Trader is the slice of the risk engine the governor acts on.
type Trader interface {
	PositionBySymbol(symbol string) (engine.Position, bool)
	Open(req engine.OpenRequest) *engine.Position
	Close(id string, reason engine.CloseReason) (*engine.ClosedTrade, bool)
}

// MarketData is the read-only market context for advisory scans.
type MarketData interface {
	Price(symbol string) (float64, bool)
	Candles(symbol string) []market.Candle
	Sentiment(symbol string) float64
}

// Governor turns advisory output into action: it deduplicates signals per
// symbol, raises high-confidence alerts, and, with auto-trade on, manages
// existing positions (hold or flip). It never opens a position on its own;
// entries stay a manual decision.
type Governor struct {
	cfg      Config
	trader   Trader
	analyzer advisor.Analyzer
	data     MarketData
	bus      *events.Bus
	symbols  []string

	mu       sync.RWMutex
	settings Settings
	signals  map[string]advisor.Signal
	lastExec time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

func New(cfg Config, trader Trader, analyzer advisor.Analyzer, data MarketData, bus *events.Bus, symbols []string) *Governor {
	return &Governor{
		cfg:      cfg,
		trader:   trader,
		analyzer: analyzer,
		data:     data,
		bus:      bus,
		symbols:  symbols,
		settings: DefaultSettings(),
		signals:  make(map[string]advisor.Signal),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Settings returns the current policy.
func (g *Governor) Settings() Settings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.settings
}

// UpdateSettings replaces the policy.
func (g *Governor) UpdateSettings(s Settings) {
	g.mu.Lock()
	g.settings = s
	g.mu.Unlock()
	log.Printf("[GOVERNOR] settings updated: autoTrade=%v minConfidence=%.2f", s.AutoTrade, s.MinConfidence)
}

// ActiveSignals returns the retained signal per symbol.
func (g *Governor) ActiveSignals() []advisor.Signal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]advisor.Signal, 0, len(g.signals))
	for _, s := range g.signals {
		out = append(out, s)
	}
	return out
}

// Run drives the periodic advisory scan until the context ends.
func (g *Governor) Run(ctx context.Context) {
	interval := g.cfg.ScanInterval
	if interval <= 0 {
		interval = DefaultConfig().ScanInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	log.Printf("[GOVERNOR] scan loop started, interval=%v", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Scan(ctx)
		}
	}
}

// Scan runs one advisory pass over the symbol universe. It is also the
// entry point for the manual scan intent. Scans inside the post-execution
// cooldown are skipped so ledger state settles before the next read.
func (g *Governor) Scan(ctx context.Context) {
	g.mu.RLock()
	sinceExec := g.now().Sub(g.lastExec)
	g.mu.RUnlock()
	if sinceExec < g.cfg.Cooldown {
		log.Printf("[GOVERNOR] scan skipped, cooling down (%v since last execution)", sinceExec.Round(time.Millisecond))
		return
	}

	for _, sym := range g.symbols {
		if ctx.Err() != nil {
			return
		}
		price, ok := g.data.Price(sym)
		if !ok {
			continue
		}
		sig, err := g.analyzer.Analyze(ctx, advisor.Request{
			Symbol:    sym,
			Price:     price,
			Candles:   g.data.Candles(sym),
			Sentiment: g.data.Sentiment(sym),
		})
		if err != nil {
			// Composed analyzers never error, but tolerate bare ones.
			g.logf("Analysis for %s failed: %v", sym, err)
			continue
		}
		g.logf("%s %s conf=%.2f: %s", sym, sig.Action, sig.Confidence, sig.Reasoning)
		g.Ingest(sig)
	}
}

// Ingest applies one signal: dedupe, notification policy, then the
// auto-trade decision tree.
func (g *Governor) Ingest(sig advisor.Signal) {
	side, directional := sig.Action.Side()

	g.mu.Lock()
	if directional {
		g.signals[sig.Symbol] = sig
	} else {
		delete(g.signals, sig.Symbol)
	}
	settings := g.settings
	g.mu.Unlock()

	if directional && g.bus != nil {
		g.bus.Publish(events.EventTradeSignal, sig)
	}
	if directional && sig.Confidence > g.cfg.HighConfidence {
		g.notify("info", "signal", "High-Confidence Signal",
			fmt.Sprintf("%s %s at %.0f%% confidence", sig.Action, sig.Symbol, sig.Confidence*100))
	}

	if !settings.AutoTrade || !directional {
		return
	}

	pos, exists := g.trader.PositionBySymbol(sig.Symbol)
	if !exists {
		// Entries stay manual. Surfacing above the minimum confidence is
		// all a bare signal gets.
		if sig.Confidence >= settings.MinConfidence {
			g.logf("Signal %s %s surfaced for manual execution (conf %.2f)", sig.Action, sig.Symbol, sig.Confidence)
		}
		return
	}

	age := g.now().Sub(pos.OpenedAt)
	if age < g.cfg.GracePeriod {
		g.logf("Holding %s, position only %v old", sig.Symbol, age.Round(time.Second))
		return
	}

	if side != pos.Side {
		if sig.Confidence >= g.cfg.FlipThreshold {
			g.flip(pos, side, sig)
			return
		}
		g.logf("Weak reversal on %s (conf %.2f < %.2f), holding", sig.Symbol, sig.Confidence, g.cfg.FlipThreshold)
		return
	}
	// Agreement: let the position run.
}

// flip closes the position and re-opens on the other side with the same
// size and leverage, pausing briefly so the close settles first.
func (g *Governor) flip(pos engine.Position, side engine.Side, sig advisor.Signal) {
	if _, ok := g.trader.Close(pos.ID, engine.ReasonFlip); !ok {
		g.logf("Flip on %s aborted, position already closing", pos.Symbol)
		return
	}
	g.markExecuted()
	g.logf("Flipping %s %s -> %s (conf %.2f)", pos.Symbol, pos.Side, side, sig.Confidence)

	g.sleep(g.cfg.FlipSettleDelay)

	price, ok := g.data.Price(pos.Symbol)
	if !ok {
		price = pos.MarkPrice
	}
	opened := g.trader.Open(engine.OpenRequest{
		Symbol:     pos.Symbol,
		Side:       side,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
		EntryPrice: price,
		TakeProfit: sig.TakeProfit,
		StopLoss:   sig.StopLoss,
	})
	if opened == nil {
		g.logf("Flip re-open on %s was dropped", pos.Symbol)
		return
	}
	g.markExecuted()
}

func (g *Governor) markExecuted() {
	g.mu.Lock()
	g.lastExec = g.now()
	g.mu.Unlock()
}

func (g *Governor) notify(kind, category, title, msg string) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(events.EventNotification, events.Notification{
		Type: kind, Category: category, Title: title, Message: msg,
	})
}

// logf feeds the advisory activity stream and the process log.
func (g *Governor) logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[GOVERNOR] %s", msg)
	if g.bus != nil {
		g.bus.Publish(events.EventAdvisorLog, events.LogEntry{
			Time:    g.now().UnixMilli(),
			Message: msg,
		})
	}
}
