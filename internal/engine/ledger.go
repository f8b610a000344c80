package engine

// ledger holds the realized funds state. Balance moves only on close,
// marginUsed only on open (+) and close (-). Equity, free margin and day
// PnL are derived on read from the live unrealized PnL sum and are never
// stored. The ledger is not self-locking; the Engine mutex serializes all
// access.
type ledger struct {
	balance      float64
	marginUsed   float64
	startBalance float64
}

func newLedger(startBalance float64) ledger {
	return ledger{
		balance:      startBalance,
		startBalance: startBalance,
	}
}

// reserve locks margin for a freshly opened position.
func (l *ledger) reserve(margin float64) {
	l.marginUsed += margin
}

// settle releases a closed position's margin and realizes its PnL.
func (l *ledger) settle(margin, pnl float64) {
	l.balance += pnl
	l.marginUsed -= margin
}

// account derives the full snapshot given the summed unrealized PnL of the
// open set.
func (l *ledger) account(unrealized float64) Account {
	equity := l.balance + unrealized
	return Account{
		Balance:      l.balance,
		Equity:       equity,
		MarginUsed:   l.marginUsed,
		FreeMargin:   l.balance + unrealized - l.marginUsed,
		DayPnL:       equity - l.startBalance,
		StartBalance: l.startBalance,
	}
}
