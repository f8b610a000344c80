package engine

import (
	"math"
	"sync"
	"testing"
	"time"
)

// testEngine returns an engine with a controllable clock that starts beyond
// the settlement buffer so trigger tests fire immediately unless a test
// rewinds it.
func testEngine(cfg Config) (*Engine, *fakeClock) {
	e := New(cfg, nil, nil)
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	e.now = clk.Now
	return e, clk
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestOpenPricesLiquidationAndReservesMargin(t *testing.T) {
	e, _ := testEngine(DefaultConfig())

	pos := e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000,
	})
	if pos == nil {
		t.Fatal("Open returned nil for valid request")
	}

	// 60000 * (1 - 0.1 + 0.005) = 54300
	if !almostEqual(pos.LiquidationPrice, 54300) {
		t.Fatalf("LiquidationPrice=%v, expected 54300", pos.LiquidationPrice)
	}
	if !almostEqual(pos.Margin, 100) {
		t.Fatalf("Margin=%v, expected 100", pos.Margin)
	}

	acct := e.Account()
	if !almostEqual(acct.MarginUsed, 100) {
		t.Fatalf("MarginUsed=%v, expected 100", acct.MarginUsed)
	}
	if !almostEqual(acct.FreeMargin, acct.Balance-100) {
		t.Fatalf("FreeMargin=%v, expected balance-100=%v", acct.FreeMargin, acct.Balance-100)
	}
}

func TestLiquidationPriceStrictlyOnLosingSide(t *testing.T) {
	tests := []struct {
		name     string
		side     Side
		leverage float64
	}{
		{"long 2x", SideLong, 2},
		{"long 10x", SideLong, 10},
		{"long 100x", SideLong, 100},
		{"short 2x", SideShort, 2},
		{"short 10x", SideShort, 10},
		{"short 100x", SideShort, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			liq := liquidationPrice(tt.side, 60000, tt.leverage, 0.005)
			if tt.side == SideLong && liq >= 60000 {
				t.Fatalf("long liq=%v, expected strictly below entry", liq)
			}
			if tt.side == SideShort && liq <= 60000 {
				t.Fatalf("short liq=%v, expected strictly above entry", liq)
			}
		})
	}
}

func TestDefaultBracketsAndStopClamp(t *testing.T) {
	tests := []struct {
		name   string
		side   Side
		tp, sl float64
		wantTP float64
		wantSL float64
	}{
		{"long defaults", SideLong, 0, 0, 62400, 58800},
		{"short defaults", SideShort, 0, 0, 57600, 61200},
		{"long breached stop clamped", SideLong, 0, 61000, 62400, 58800},
		{"short breached stop clamped", SideShort, 0, 59000, 57600, 61200},
		{"explicit kept", SideLong, 65000, 59000, 65000, 59000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := testEngine(DefaultConfig())
			pos := e.Open(OpenRequest{
				Symbol: "BTCUSDT", Side: tt.side, Size: 1000, Leverage: 10,
				EntryPrice: 60000, TakeProfit: tt.tp, StopLoss: tt.sl,
			})
			if !almostEqual(pos.TakeProfit, tt.wantTP) {
				t.Fatalf("TakeProfit=%v, expected %v", pos.TakeProfit, tt.wantTP)
			}
			if !almostEqual(pos.StopLoss, tt.wantSL) {
				t.Fatalf("StopLoss=%v, expected %v", pos.StopLoss, tt.wantSL)
			}
		})
	}
}

func TestOpenWithoutSideIsDropped(t *testing.T) {
	e, _ := testEngine(DefaultConfig())
	if pos := e.Open(OpenRequest{Symbol: "BTCUSDT", Size: 1000, Leverage: 10, EntryPrice: 60000}); pos != nil {
		t.Fatalf("expected nil position, got %+v", pos)
	}
	if acct := e.Account(); !almostEqual(acct.MarginUsed, 0) {
		t.Fatalf("MarginUsed=%v after dropped request, expected 0", acct.MarginUsed)
	}
}

func TestMarkToMarketRecomputesPnL(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	pos := e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10,
		EntryPrice: 60000, TakeProfit: 70000, StopLoss: 50000,
	})
	clk.Advance(10 * time.Second)

	e.MarkToMarket("BTCUSDT", 61500)
	got, _ := e.PositionBySymbol("BTCUSDT")
	// 1000 * 10 * 1500/60000 = 250
	if !almostEqual(got.UnrealizedPnL, 250) {
		t.Fatalf("UnrealizedPnL=%v, expected 250", got.UnrealizedPnL)
	}
	if !almostEqual(got.MarkPrice, 61500) {
		t.Fatalf("MarkPrice=%v, expected 61500", got.MarkPrice)
	}

	acct := e.Account()
	if !almostEqual(acct.Equity, acct.Balance+250) {
		t.Fatalf("Equity=%v, expected balance+250", acct.Equity)
	}
	if !almostEqual(acct.DayPnL, acct.Equity-acct.StartBalance) {
		t.Fatalf("DayPnL=%v, expected equity-startBalance", acct.DayPnL)
	}
	_ = pos
}

func TestTakeProfitFiresOnceAndRealizes(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000,
	})
	clk.Advance(10 * time.Second)

	// Default TP 62400 was passed; close fires with the PnL snapshot at 63000.
	e.MarkToMarket("BTCUSDT", 63000)

	if got := len(e.Positions()); got != 0 {
		t.Fatalf("open positions=%d after take profit, expected 0", got)
	}
	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("history len=%d, expected 1", len(hist))
	}
	if hist[0].Reason != ReasonTakeProfit {
		t.Fatalf("reason=%q, expected take profit", hist[0].Reason)
	}
	if !almostEqual(hist[0].PnL, 500) {
		t.Fatalf("PnL=%v, expected 500", hist[0].PnL)
	}
	acct := e.Account()
	if !almostEqual(acct.Balance, 10500) {
		t.Fatalf("Balance=%v, expected 10500", acct.Balance)
	}
	if !almostEqual(acct.MarginUsed, 0) {
		t.Fatalf("MarginUsed=%v, expected 0", acct.MarginUsed)
	}

	// A duplicate tick past the trigger must not realize again.
	e.MarkToMarket("BTCUSDT", 63500)
	if len(e.History()) != 1 {
		t.Fatalf("history grew on duplicate trigger")
	}
}

func TestTriggerPrecedenceLiquidationWins(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	pos := e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10,
		EntryPrice: 60000, StopLoss: 55000,
	})
	clk.Advance(10 * time.Second)

	// 54000 breaches both the stop (55000) and the liquidation floor (54300).
	e.MarkToMarket("BTCUSDT", 54000)

	hist := e.History()
	if len(hist) != 1 {
		t.Fatalf("history len=%d, expected 1", len(hist))
	}
	if hist[0].Reason != ReasonLiquidation {
		t.Fatalf("reason=%q, expected liquidation", hist[0].Reason)
	}
	if !almostEqual(hist[0].ExitPrice, pos.LiquidationPrice) {
		t.Fatalf("ExitPrice=%v, expected liquidation price %v", hist[0].ExitPrice, pos.LiquidationPrice)
	}
	if !almostEqual(hist[0].PnL, -pos.Margin) {
		t.Fatalf("PnL=%v, expected full margin loss %v", hist[0].PnL, -pos.Margin)
	}
	if !almostEqual(hist[0].PnLPercent, -100) {
		t.Fatalf("PnLPercent=%v, expected -100", hist[0].PnLPercent)
	}
}

func TestSettlementBufferSuppressesTriggers(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000,
	})

	// Inside the buffer: stop, take profit and even liquidation stay quiet.
	clk.Advance(2 * time.Second)
	e.MarkToMarket("BTCUSDT", 50000)
	if got := len(e.Positions()); got != 1 {
		t.Fatalf("position closed inside settlement buffer")
	}

	clk.Advance(4 * time.Second)
	e.MarkToMarket("BTCUSDT", 50000)
	if got := len(e.Positions()); got != 0 {
		t.Fatalf("position survived trigger after settlement buffer")
	}
}

func TestSymbolIsolation(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	e.Open(OpenRequest{Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000})
	e.Open(OpenRequest{Symbol: "ETHUSDT", Side: SideShort, Size: 500, Leverage: 5, EntryPrice: 3000})
	clk.Advance(10 * time.Second)

	e.MarkToMarket("BTCUSDT", 61000)

	eth, ok := e.PositionBySymbol("ETHUSDT")
	if !ok {
		t.Fatal("ETH position missing")
	}
	if !almostEqual(eth.UnrealizedPnL, 0) || !almostEqual(eth.MarkPrice, 3000) {
		t.Fatalf("ETH position mutated by BTC update: pnl=%v mark=%v", eth.UnrealizedPnL, eth.MarkPrice)
	}

	// Even a price that would liquidate ETH must not close it via a BTC tick.
	e.MarkToMarket("BTCUSDT", 1)
	if _, ok := e.PositionBySymbol("ETHUSDT"); !ok {
		t.Fatal("ETH position closed by BTC update")
	}
}

func TestConcurrentCloseRealizesExactlyOnce(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	pos := e.Open(OpenRequest{
		Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000,
	})
	clk.Advance(10 * time.Second)
	e.MarkToMarket("BTCUSDT", 60600) // below TP, keeps it open with pnl=100

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := e.Close(pos.ID, ReasonManual); ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("close succeeded %d times, expected exactly once", successes)
	}
	if len(e.History()) != 1 {
		t.Fatalf("history len=%d, expected 1", len(e.History()))
	}
	acct := e.Account()
	if !almostEqual(acct.Balance, 10100) {
		t.Fatalf("Balance=%v, expected single realization 10100", acct.Balance)
	}
}

func TestMarginConservationAcrossSequence(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	a := e.Open(OpenRequest{Symbol: "BTCUSDT", Side: SideLong, Size: 1000, Leverage: 10, EntryPrice: 60000})
	b := e.Open(OpenRequest{Symbol: "ETHUSDT", Side: SideShort, Size: 600, Leverage: 3, EntryPrice: 3000})
	c := e.Open(OpenRequest{Symbol: "SOLUSDT", Side: SideLong, Size: 200, Leverage: 4, EntryPrice: 150})
	clk.Advance(10 * time.Second)

	e.Close(a.ID, ReasonManual)
	e.MarkToMarket("ETHUSDT", 2950)
	e.Close(c.ID, ReasonManual)

	var want float64
	for _, p := range e.Positions() {
		want += p.Margin
	}
	acct := e.Account()
	if !almostEqual(acct.MarginUsed, want) {
		t.Fatalf("MarginUsed=%v, expected sum of open margins %v", acct.MarginUsed, want)
	}
	if !almostEqual(want, b.Margin) {
		t.Fatalf("open margin sum=%v, expected only ETH margin %v", want, b.Margin)
	}
}

func TestShortSidePnLAndTriggers(t *testing.T) {
	e, clk := testEngine(DefaultConfig())
	e.Open(OpenRequest{
		Symbol: "ETHUSDT", Side: SideShort, Size: 1000, Leverage: 10, EntryPrice: 3000,
	})
	clk.Advance(10 * time.Second)

	e.MarkToMarket("ETHUSDT", 2910)
	pos, ok := e.PositionBySymbol("ETHUSDT")
	if !ok {
		t.Fatal("short closed unexpectedly at 3% favorable move")
	}
	// 1000 * 10 * (2910-3000)/3000 * -1 = 300
	if !almostEqual(pos.UnrealizedPnL, 300) {
		t.Fatalf("UnrealizedPnL=%v, expected 300", pos.UnrealizedPnL)
	}

	// Default short TP is 2880 (entry * 0.96).
	e.MarkToMarket("ETHUSDT", 2870)
	hist := e.History()
	if len(hist) != 1 || hist[0].Reason != ReasonTakeProfit {
		t.Fatalf("expected one take-profit close, got %+v", hist)
	}
}
