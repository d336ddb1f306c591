package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// TradeLedger implements domain.TradeLedger on PostgreSQL. Rows are
// inserted once at close and never updated.
type TradeLedger struct {
	pool      *pgxpool.Pool
	portfolio string
}

// NewTradeLedger creates a TradeLedger scoped to the given portfolio.
func NewTradeLedger(pool *pgxpool.Pool, portfolio string) *TradeLedger {
	return &TradeLedger{pool: pool, portfolio: portfolio}
}

// Append inserts one closed trade.
func (l *TradeLedger) Append(ctx context.Context, rec domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_records (
			id, portfolio, symbol, strategy, side, quantity,
			entry_date, entry_price, exit_date, exit_price,
			return_pct, exit_reason, holding_days
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13
		)`
	_, err := l.pool.Exec(ctx, query,
		rec.ID, l.portfolio, rec.Symbol, rec.Strategy, string(rec.Side), rec.Quantity,
		rec.EntryDate, rec.EntryPrice, rec.ExitDate, rec.ExitPrice,
		rec.ReturnPct, rec.ExitReason, rec.HoldingDays,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListRecent returns up to limit most recent closed trades, newest last.
func (l *TradeLedger) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, symbol, strategy, side, quantity,
		       entry_date, entry_price, exit_date, exit_price,
		       return_pct, exit_reason, holding_days
		FROM trade_records
		WHERE portfolio = $1
		ORDER BY exit_date DESC
		LIMIT $2`, l.portfolio, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var side string
		if err := rows.Scan(
			&rec.ID, &rec.Symbol, &rec.Strategy, &side, &rec.Quantity,
			&rec.EntryDate, &rec.EntryPrice, &rec.ExitDate, &rec.ExitPrice,
			&rec.ReturnPct, &rec.ExitReason, &rec.HoldingDays,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		rec.Side = domain.Side(side)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}

	// Newest last, matching the file ledger's ordering.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.TradeLedger = (*TradeLedger)(nil)
