package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"perptrader/internal/events"
)

// Config tunes the risk engine.
type Config struct {
	StartBalance     float64
	MaintenanceRate  float64       // maintenance margin rate, fraction of notional
	DefaultTakePct   float64       // default take-profit distance from entry
	DefaultStopPct   float64       // default stop-loss distance from entry
	SettlementBuffer time.Duration // trigger evaluation suppressed this long after open
	LockReleaseDelay time.Duration // closing lock held this long after a close settles
}

// DefaultConfig returns the simulator defaults.
func DefaultConfig() Config {
	return Config{
		StartBalance:     10000,
		MaintenanceRate:  0.005,
		DefaultTakePct:   0.04,
		DefaultStopPct:   0.02,
		SettlementBuffer: 5 * time.Second,
		LockReleaseDelay: time.Second,
	}
}

// TradeJournal receives closed trades for audit persistence. Implementations
// must tolerate being called from the engine's goroutines.
type TradeJournal interface {
	RecordClose(trade ClosedTrade) error
}

// Engine owns the open-position set and the account ledger. All mutation
// funnels through Open, Close, Liquidate and MarkToMarket under one mutex;
// snapshot accessors return copies.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	ledger    ledger
	positions []*Position // most-recent first
	byID      map[string]*Position
	history   []ClosedTrade // most-recent first
	closing   map[string]struct{}

	bus     *events.Bus
	journal TradeJournal
	now     func() time.Time
}

// New creates an engine with the given config. Bus and journal may be nil.
func New(cfg Config, bus *events.Bus, journal TradeJournal) *Engine {
	if cfg.StartBalance <= 0 {
		cfg.StartBalance = DefaultConfig().StartBalance
	}
	if cfg.MaintenanceRate <= 0 {
		cfg.MaintenanceRate = DefaultConfig().MaintenanceRate
	}
	if cfg.DefaultTakePct <= 0 {
		cfg.DefaultTakePct = DefaultConfig().DefaultTakePct
	}
	if cfg.DefaultStopPct <= 0 {
		cfg.DefaultStopPct = DefaultConfig().DefaultStopPct
	}
	return &Engine{
		cfg:     cfg,
		ledger:  newLedger(cfg.StartBalance),
		byID:    make(map[string]*Position),
		closing: make(map[string]struct{}),
		bus:     bus,
		journal: journal,
		now:     time.Now,
	}
}

// Open creates a position from the request, prices its liquidation threshold
// and reserves margin. A request without a recognizable side is silently
// dropped and nil is returned.
func (e *Engine) Open(req OpenRequest) *Position {
	if req.Side != SideLong && req.Side != SideShort {
		log.Printf("[ENGINE] open request without side dropped (symbol=%s)", req.Symbol)
		return nil
	}

	entry := req.EntryPrice
	tp, sl := e.brackets(req.Side, entry, req.TakeProfit, req.StopLoss)

	pos := &Position{
		ID:               uuid.NewString(),
		Symbol:           req.Symbol,
		Side:             req.Side,
		Size:             req.Size,
		Margin:           req.Size / req.Leverage,
		EntryPrice:       entry,
		MarkPrice:        entry,
		Leverage:         req.Leverage,
		LiquidationPrice: liquidationPrice(req.Side, entry, req.Leverage, e.cfg.MaintenanceRate),
		TakeProfit:       tp,
		StopLoss:         sl,
		OpenedAt:         e.now(),
	}

	e.mu.Lock()
	e.positions = append([]*Position{pos}, e.positions...)
	e.byID[pos.ID] = pos
	e.ledger.reserve(pos.Margin)
	e.mu.Unlock()

	log.Printf("[ENGINE] opened %s %s size=%.2f lev=%.0fx entry=%.4f liq=%.4f",
		pos.Side, pos.Symbol, pos.Size, pos.Leverage, pos.EntryPrice, pos.LiquidationPrice)
	e.publishOpened(*pos)
	return pos
}

// brackets resolves take-profit and stop-loss, applying the defaults and
// clamping a stop that would already be breached at entry.
func (e *Engine) brackets(side Side, entry, tp, sl float64) (float64, float64) {
	if tp == 0 {
		tp = entry * (1 + side.direction()*e.cfg.DefaultTakePct)
	}
	if sl == 0 {
		sl = entry * (1 - side.direction()*e.cfg.DefaultStopPct)
	}
	if side == SideLong && sl >= entry {
		sl = entry * (1 - e.cfg.DefaultStopPct)
	}
	if side == SideShort && sl <= entry {
		sl = entry * (1 + e.cfg.DefaultStopPct)
	}
	return tp, sl
}

// liquidationPrice is strictly on the losing side of entry for leverage >= 1
// and maintenance rate < 1/leverage.
func liquidationPrice(side Side, entry, leverage, mmr float64) float64 {
	if side == SideLong {
		return entry * (1 - 1/leverage + mmr)
	}
	return entry * (1 + 1/leverage - mmr)
}

type trigger struct {
	id     string
	reason CloseReason
}

// MarkToMarket applies a mark-price update to every open position on the
// symbol. Positions on other symbols are never touched. Trigger precedence
// is liquidation, then take-profit, then stop-loss; only the first match
// fires. The settlement buffer suppresses all three triggers, liquidation
// included, for freshly opened positions.
func (e *Engine) MarkToMarket(symbol string, price float64) {
	now := e.now()
	var fired []trigger

	e.mu.Lock()
	for _, pos := range e.positions {
		if pos.Symbol != symbol {
			continue
		}
		pos.UnrealizedPnL = pos.Size * pos.Leverage *
			(price - pos.EntryPrice) / pos.EntryPrice * pos.Side.direction()
		pos.MarkPrice = price

		if now.Sub(pos.OpenedAt) < e.cfg.SettlementBuffer {
			continue
		}
		if _, busy := e.closing[pos.ID]; busy {
			continue
		}
		if reason, ok := evalTriggers(pos, price); ok {
			fired = append(fired, trigger{id: pos.ID, reason: reason})
		}
	}
	e.mu.Unlock()

	for _, t := range fired {
		if t.reason == ReasonLiquidation {
			e.Liquidate(t.id)
		} else {
			e.Close(t.id, t.reason)
		}
	}
}

func evalTriggers(pos *Position, price float64) (CloseReason, bool) {
	if pos.Side == SideLong {
		switch {
		case price <= pos.LiquidationPrice:
			return ReasonLiquidation, true
		case pos.TakeProfit > 0 && price >= pos.TakeProfit:
			return ReasonTakeProfit, true
		case pos.StopLoss > 0 && price <= pos.StopLoss:
			return ReasonStopLoss, true
		}
		return "", false
	}
	switch {
	case price >= pos.LiquidationPrice:
		return ReasonLiquidation, true
	case pos.TakeProfit > 0 && price <= pos.TakeProfit:
		return ReasonTakeProfit, true
	case pos.StopLoss > 0 && price >= pos.StopLoss:
		return ReasonStopLoss, true
	}
	return "", false
}

// Close settles the position at its current mark price with the unrealized
// PnL snapshot. A contested or unknown id is an idempotent no-op: the
// closing lock absorbs duplicate triggers racing a manual close.
func (e *Engine) Close(id string, reason CloseReason) (*ClosedTrade, bool) {
	e.mu.Lock()
	pos, ok := e.acquireLocked(id)
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	trade := e.finishLocked(pos, reason, pos.MarkPrice, pos.UnrealizedPnL,
		pos.UnrealizedPnL/pos.Margin*100)
	e.mu.Unlock()

	e.afterClose(trade)
	return &trade, true
}

// Liquidate is the forced-close path: exit at the liquidation price with the
// full margin lost, independent of the live PnL snapshot.
func (e *Engine) Liquidate(id string) (*ClosedTrade, bool) {
	e.mu.Lock()
	pos, ok := e.acquireLocked(id)
	if !ok {
		e.mu.Unlock()
		return nil, false
	}
	trade := e.finishLocked(pos, ReasonLiquidation, pos.LiquidationPrice, -pos.Margin, -100)
	e.mu.Unlock()

	e.afterClose(trade)
	return &trade, true
}

// acquireLocked takes the closing lock for id and resolves the position.
// Caller holds e.mu.
func (e *Engine) acquireLocked(id string) (*Position, bool) {
	if _, busy := e.closing[id]; busy {
		return nil, false
	}
	pos, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	e.closing[id] = struct{}{}
	return pos, true
}

// finishLocked applies all close side effects under e.mu and schedules the
// delayed lock release. The delay absorbs duplicate trigger evaluations that
// were already past the lock check when the close began.
func (e *Engine) finishLocked(pos *Position, reason CloseReason, exit, pnl, pnlPct float64) ClosedTrade {
	trade := ClosedTrade{
		ID:         pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Reason:     reason,
		ClosedAt:   e.now(),
	}

	e.history = append([]ClosedTrade{trade}, e.history...)
	e.ledger.settle(pos.Margin, pnl)
	delete(e.byID, pos.ID)
	for i, p := range e.positions {
		if p.ID == pos.ID {
			e.positions = append(e.positions[:i], e.positions[i+1:]...)
			break
		}
	}

	id := pos.ID
	time.AfterFunc(e.cfg.LockReleaseDelay, func() {
		e.mu.Lock()
		delete(e.closing, id)
		e.mu.Unlock()
	})
	return trade
}

func (e *Engine) afterClose(trade ClosedTrade) {
	log.Printf("[ENGINE] closed %s %s pnl=%.2f (%.2f%%) reason=%q",
		trade.Side, trade.Symbol, trade.PnL, trade.PnLPercent, trade.Reason)
	if e.journal != nil {
		if err := e.journal.RecordClose(trade); err != nil {
			log.Printf("[ENGINE] journal write failed: %v", err)
		}
	}
	e.publishClosed(trade)
}

func (e *Engine) publishOpened(pos Position) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventPositionOpened, pos)
	e.bus.Publish(events.EventNotification, events.Notification{
		Type:     "success",
		Category: "trade",
		Title:    "Order Filled",
		Message: fmt.Sprintf("%s %s x%.0f @ $%.2f",
			pos.Side, pos.Symbol, pos.Leverage, pos.EntryPrice),
	})
}

func (e *Engine) publishClosed(trade ClosedTrade) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.EventPositionClosed, trade)

	kind, title := "info", "Position Closed"
	switch trade.Reason {
	case ReasonTakeProfit:
		kind, title = "success", "Take Profit Hit"
	case ReasonStopLoss:
		kind, title = "warning", "Stop Loss Hit"
	case ReasonLiquidation:
		kind, title = "error", "Position Liquidated"
	case ReasonFlip:
		kind, title = "warning", "Auto-Pilot Flip"
	}
	e.bus.Publish(events.EventNotification, events.Notification{
		Type:     kind,
		Category: "trade",
		Title:    title,
		Message: fmt.Sprintf("Closed %s %s at $%.2f, PnL $%.2f",
			trade.Side, trade.Symbol, trade.ExitPrice, trade.PnL),
	})
}

// Positions returns a copy of the open set, most-recent first.
func (e *Engine) Positions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// PositionBySymbol returns the most recently opened position on symbol.
func (e *Engine) PositionBySymbol(symbol string) (Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.positions {
		if p.Symbol == symbol {
			return *p, true
		}
	}
	return Position{}, false
}

// History returns a copy of the closed-trade list, most-recent first.
func (e *Engine) History() []ClosedTrade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ClosedTrade, len(e.history))
	copy(out, e.history)
	return out
}

// Account derives the ledger snapshot from the live open set. Equity and day
// PnL are always recomputed here, never cached.
func (e *Engine) Account() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	var unrealized float64
	for _, p := range e.positions {
		unrealized += p.UnrealizedPnL
	}
	return e.ledger.account(unrealized)
}
