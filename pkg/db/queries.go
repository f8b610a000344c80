package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TradeRow is a journaled closed trade. The journal is an append-only audit
// trail; live state is never rebuilt from it.
type TradeRow struct {
	ID         string
	Symbol     string
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	Leverage   float64
	PnL        float64
	PnLPercent float64
	Reason     string
	ClosedAt   time.Time
}

// LogRow is one journaled advisory log line.
type LogRow struct {
	Time    int64
	Message string
}

// Queries bundles the journal statements.
type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// InsertTrade appends one closed trade.
func (q *Queries) InsertTrade(ctx context.Context, row TradeRow) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO closed_trades
			(id, symbol, side, entry_price, exit_price, size, leverage, pnl, pnl_percent, reason, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Symbol, row.Side, row.EntryPrice, row.ExitPrice,
		row.Size, row.Leverage, row.PnL, row.PnLPercent, row.Reason, row.ClosedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// RecentTrades returns up to limit trades, newest first.
func (q *Queries) RecentTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, symbol, side, entry_price, exit_price, size, leverage, pnl, pnl_percent, reason, closed_at
		FROM closed_trades
		ORDER BY closed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var r TradeRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Side, &r.EntryPrice, &r.ExitPrice,
			&r.Size, &r.Leverage, &r.PnL, &r.PnLPercent, &r.Reason, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertLog appends one advisory log line.
func (q *Queries) InsertLog(ctx context.Context, row LogRow) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO advisor_logs (ts, message) VALUES (?, ?)`, row.Time, row.Message)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// RecentLogs returns up to limit log lines, newest first.
func (q *Queries) RecentLogs(ctx context.Context, limit int) ([]LogRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT ts, message FROM advisor_logs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var out []LogRow
	for rows.Next() {
		var r LogRow
		if err := rows.Scan(&r.Time, &r.Message); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
