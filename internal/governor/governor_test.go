package governor

import (
	"context"
	"testing"
	"time"

	"perptrader/internal/advisor"
	"perptrader/internal/engine"
	"perptrader/internal/events"
	"perptrader/internal/market"
)

type fakeTrader struct {
	pos    *engine.Position
	closed []engine.CloseReason
	opened []engine.OpenRequest
}

func (f *fakeTrader) PositionBySymbol(symbol string) (engine.Position, bool) {
	if f.pos != nil && f.pos.Symbol == symbol {
		return *f.pos, true
	}
	return engine.Position{}, false
}

func (f *fakeTrader) Close(id string, reason engine.CloseReason) (*engine.ClosedTrade, bool) {
	if f.pos == nil || f.pos.ID != id {
		return nil, false
	}
	f.closed = append(f.closed, reason)
	trade := &engine.ClosedTrade{ID: id, Symbol: f.pos.Symbol, Reason: reason}
	f.pos = nil
	return trade, true
}

func (f *fakeTrader) Open(req engine.OpenRequest) *engine.Position {
	f.opened = append(f.opened, req)
	return &engine.Position{ID: "new", Symbol: req.Symbol, Side: req.Side}
}

type fixedData struct {
	price float64
}

func (d fixedData) Price(string) (float64, bool)   { return d.price, d.price > 0 }
func (d fixedData) Candles(string) []market.Candle { return nil }
func (d fixedData) Sentiment(string) float64       { return 50 }

type scriptedAnalyzer struct {
	sig   advisor.Signal
	calls int
}

func (a *scriptedAnalyzer) Analyze(context.Context, advisor.Request) (advisor.Signal, error) {
	a.calls++
	return a.sig, nil
}

func newTestGovernor(trader Trader, data MarketData) (*Governor, *time.Time) {
	g := New(DefaultConfig(), trader, &scriptedAnalyzer{}, data, nil, []string{"BTCUSDT"})
	now := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return now }
	g.sleep = func(time.Duration) {}
	return g, &now
}

func signal(action advisor.Action, conf float64) advisor.Signal {
	return advisor.Signal{ID: "s", Symbol: "BTCUSDT", Action: action, Confidence: conf}
}

func TestIngestDeduplicatesPerSymbol(t *testing.T) {
	g, _ := newTestGovernor(&fakeTrader{}, fixedData{price: 60000})

	g.Ingest(signal(advisor.ActionLong, 0.6))
	g.Ingest(signal(advisor.ActionShort, 0.7))

	got := g.ActiveSignals()
	if len(got) != 1 {
		t.Fatalf("retained %d signals, expected 1", len(got))
	}
	if got[0].Action != advisor.ActionShort {
		t.Fatalf("retained action=%s, expected newest (SHORT)", got[0].Action)
	}

	g.Ingest(signal(advisor.ActionHold, 0))
	if got := g.ActiveSignals(); len(got) != 0 {
		t.Fatalf("HOLD should clear the retained signal, have %d", len(got))
	}
}

func TestHighConfidenceAlwaysNotifies(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventNotification, 4)
	defer unsub()

	g, _ := newTestGovernor(&fakeTrader{}, fixedData{price: 60000})
	g.bus = bus

	// Auto-trade is off by default; the alert must fire regardless.
	g.Ingest(signal(advisor.ActionLong, 0.85))

	select {
	case raw := <-ch:
		n := raw.(events.Notification)
		if n.Title != "High-Confidence Signal" {
			t.Fatalf("notification title=%q", n.Title)
		}
	default:
		t.Fatal("no notification for high-confidence signal")
	}

	g.Ingest(signal(advisor.ActionLong, 0.7))
	select {
	case <-ch:
		t.Fatal("notified below the high-confidence threshold")
	default:
	}
}

func TestNeverAutoOpensWithoutPosition(t *testing.T) {
	trader := &fakeTrader{}
	g, _ := newTestGovernor(trader, fixedData{price: 60000})
	g.UpdateSettings(Settings{AutoTrade: true, MinConfidence: 0.6})

	g.Ingest(signal(advisor.ActionLong, 0.95))

	if len(trader.opened) != 0 {
		t.Fatalf("governor auto-opened %d positions from a bare signal", len(trader.opened))
	}
}

func TestGracePeriodProtectsYoungPositions(t *testing.T) {
	g, now := newTestGovernor(nil, fixedData{price: 60000})
	trader := &fakeTrader{pos: &engine.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: engine.SideLong,
		Size: 1000, Leverage: 10, OpenedAt: now.Add(-30 * time.Second),
	}}
	g.trader = trader
	g.UpdateSettings(Settings{AutoTrade: true, MinConfidence: 0.6})

	g.Ingest(signal(advisor.ActionShort, 0.95))

	if trader.pos == nil || len(trader.closed) != 0 {
		t.Fatal("position closed inside grace period")
	}
}

func TestWeakReversalHolds(t *testing.T) {
	g, now := newTestGovernor(nil, fixedData{price: 60000})
	trader := &fakeTrader{pos: &engine.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: engine.SideLong,
		Size: 1000, Leverage: 10, OpenedAt: now.Add(-90 * time.Second),
	}}
	g.trader = trader
	g.UpdateSettings(Settings{AutoTrade: true, MinConfidence: 0.6})

	// 0.72 sits above the surface minimum but below the flip threshold.
	g.Ingest(signal(advisor.ActionShort, 0.72))

	if trader.pos == nil || len(trader.closed) != 0 || len(trader.opened) != 0 {
		t.Fatal("weak reversal must hold the position unchanged")
	}
}

func TestStrongReversalFlipsPreservingSizing(t *testing.T) {
	g, now := newTestGovernor(nil, fixedData{price: 61000})
	trader := &fakeTrader{pos: &engine.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: engine.SideLong,
		Size: 1000, Leverage: 10, MarkPrice: 61000,
		OpenedAt: now.Add(-90 * time.Second),
	}}
	g.trader = trader
	g.UpdateSettings(Settings{AutoTrade: true, MinConfidence: 0.6})

	var slept time.Duration
	g.sleep = func(d time.Duration) { slept += d }

	g.Ingest(signal(advisor.ActionShort, 0.85))

	if len(trader.closed) != 1 || trader.closed[0] != engine.ReasonFlip {
		t.Fatalf("closed=%v, expected one AI-flip close", trader.closed)
	}
	if len(trader.opened) != 1 {
		t.Fatalf("opened=%d, expected one re-open", len(trader.opened))
	}
	req := trader.opened[0]
	if req.Side != engine.SideShort || req.Size != 1000 || req.Leverage != 10 {
		t.Fatalf("flip lost sizing: %+v", req)
	}
	if req.EntryPrice != 61000 {
		t.Fatalf("flip entry=%v, expected current price", req.EntryPrice)
	}
	if slept != DefaultConfig().FlipSettleDelay {
		t.Fatalf("flip settle delay=%v, expected %v", slept, DefaultConfig().FlipSettleDelay)
	}
}

func TestAgreementTakesNoAction(t *testing.T) {
	g, now := newTestGovernor(nil, fixedData{price: 60000})
	trader := &fakeTrader{pos: &engine.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: engine.SideLong,
		Size: 1000, Leverage: 10, OpenedAt: now.Add(-90 * time.Second),
	}}
	g.trader = trader
	g.UpdateSettings(Settings{AutoTrade: true, MinConfidence: 0.6})

	g.Ingest(signal(advisor.ActionLong, 0.95))

	if len(trader.closed) != 0 || len(trader.opened) != 0 {
		t.Fatal("agreeing signal must not touch the position")
	}
}

func TestCooldownSuppressesScans(t *testing.T) {
	analyzer := &scriptedAnalyzer{sig: signal(advisor.ActionLong, 0.5)}
	g, now := newTestGovernor(&fakeTrader{}, fixedData{price: 60000})
	g.analyzer = analyzer

	g.markExecuted()
	g.Scan(context.Background())
	if analyzer.calls != 0 {
		t.Fatalf("scan ran inside the cooldown window, %d analyzer calls", analyzer.calls)
	}

	*now = now.Add(6 * time.Second)
	g.Scan(context.Background())
	if analyzer.calls != 1 {
		t.Fatalf("scan after cooldown made %d analyzer calls, expected 1", analyzer.calls)
	}
}
