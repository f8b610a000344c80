package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS closed_trades (
    id TEXT PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    entry_price REAL NOT NULL,
    exit_price REAL NOT NULL,
    size REAL NOT NULL,
    leverage REAL NOT NULL,
    pnl REAL NOT NULL,
    pnl_percent REAL NOT NULL,
    reason TEXT NOT NULL,
    closed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol);

CREATE TABLE IF NOT EXISTS advisor_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ts INTEGER NOT NULL,
    message TEXT NOT NULL
);
`

// Migrate applies the schema. Safe to call on every boot.
func (d *Database) Migrate() error {
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
