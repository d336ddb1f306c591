package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// PositionStore implements domain.PositionStore for one portfolio on
// PostgreSQL. Save replaces the portfolio's full position set inside a
// single transaction, so a failed save leaves the previous snapshot
// intact.
type PositionStore struct {
	pool      *pgxpool.Pool
	portfolio string
	logger    *slog.Logger
}

// NewPositionStore creates a PositionStore scoped to the given portfolio.
func NewPositionStore(pool *pgxpool.Pool, portfolio string, logger *slog.Logger) *PositionStore {
	return &PositionStore{
		pool:      pool,
		portfolio: portfolio,
		logger:    logger.With(slog.String("component", "pg_position_store")),
	}
}

const positionSelectCols = `symbol, strategy, side, quantity, entry_price, entry_date,
	current_price, stop_loss, exit_rule, max_holding_days,
	trailing_pct, trailing_stop, high_water_mark, trailing_created, last_updated`

// Load returns the portfolio's open positions. Rows that fail to decode
// (for example an exit rule written by a newer version) are skipped with
// a warning rather than failing the load.
func (s *PositionStore) Load(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE portfolio = $1
		 ORDER BY symbol, strategy, side`, s.portfolio)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			s.logger.Warn("skipping malformed position row",
				slog.String("portfolio", s.portfolio),
				slog.String("error", err.Error()),
			)
			continue
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// Save replaces the portfolio's position set transactionally.
func (s *PositionStore) Save(ctx context.Context, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM positions WHERE portfolio = $1`, s.portfolio); err != nil {
		return fmt.Errorf("postgres: clear positions: %w", err)
	}

	const insert = `
		INSERT INTO positions (
			portfolio, symbol, strategy, side, quantity, entry_price, entry_date,
			current_price, stop_loss, exit_rule, max_holding_days,
			trailing_pct, trailing_stop, high_water_mark, trailing_created, last_updated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)`

	for i := range positions {
		p := &positions[i]
		var exitRule *string
		if p.Exit != nil {
			s := p.Exit.String()
			exitRule = &s
		}
		var trailingPct, trailingStop, hwm *float64
		var trailingCreated *time.Time
		if p.Trailing != nil {
			trailingPct = &p.Trailing.TrailingPct
			trailingStop = &p.Trailing.StopPrice
			hwm = &p.Trailing.HighWaterMark
			trailingCreated = &p.Trailing.CreatedDate
		}
		if _, err := tx.Exec(ctx, insert,
			s.portfolio, p.Symbol, p.Strategy, string(p.Side), p.Quantity, p.EntryPrice, p.EntryDate,
			p.CurrentPrice, p.StopLoss, exitRule, p.MaxHoldingDays,
			trailingPct, trailingStop, hwm, trailingCreated, p.LastUpdated,
		); err != nil {
			return fmt.Errorf("postgres: insert position %s: %w", p.Key(), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save: %w", err)
	}
	return nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side string
	var stopLoss, trailingPct, trailingStop, hwm *float64
	var exitRule *string
	var trailingCreated *time.Time

	if err := row.Scan(
		&p.Symbol, &p.Strategy, &side, &p.Quantity, &p.EntryPrice, &p.EntryDate,
		&p.CurrentPrice, &stopLoss, &exitRule, &p.MaxHoldingDays,
		&trailingPct, &trailingStop, &hwm, &trailingCreated, &p.LastUpdated,
	); err != nil {
		return domain.Position{}, err
	}

	parsedSide, err := domain.ParseSide(side)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = parsedSide
	p.StopLoss = stopLoss

	if exitRule != nil && *exitRule != "" {
		ec, err := domain.ParseExitCondition(*exitRule)
		if err != nil {
			return domain.Position{}, fmt.Errorf("exit_rule: %w", err)
		}
		p.Exit = &ec
	}
	if trailingPct != nil {
		ts := domain.TrailingStop{TrailingPct: *trailingPct}
		if trailingStop != nil {
			ts.StopPrice = *trailingStop
		}
		if hwm != nil {
			ts.HighWaterMark = *hwm
		}
		if trailingCreated != nil {
			ts.CreatedDate = *trailingCreated
		}
		p.Trailing = &ts
	}
	if p.CurrentPrice > 0 {
		p.Revalue(p.CurrentPrice, p.LastUpdated)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
