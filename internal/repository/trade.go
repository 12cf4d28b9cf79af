package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/microtrend-backend/internal/models"
)

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// Record inserts a closed trade. Trade ids are ULIDs, so a replayed insert
// is ignored rather than duplicated.
func (r *TradeRepo) Record(ctx context.Context, t models.ClosedTrade) error {
	td := t.TradingDay
	if td == "" {
		td = models.TradingDay(t.ClosedAt)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trade_history
		 (id, run_id, symbol, side, source, entry_price, exit_price, quantity,
		  pnl, reason, is_paper, opened_at, closed_at, trading_day)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		 ON CONFLICT (id) DO NOTHING`,
		t.ID, t.RunID, t.Symbol, t.Side, t.Source, t.EntryPrice, t.ExitPrice, t.Quantity,
		t.PnL, t.Reason, t.IsPaper, t.OpenedAt, t.ClosedAt, td,
	)
	return err
}

// GetRecent returns the most recent trades, newest first.
// If paperMode is non-nil, filters by is_paper.
func (r *TradeRepo) GetRecent(ctx context.Context, limit int, paperMode *bool) ([]models.ClosedTrade, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_history WHERE 1=1`,
		nil,
		paperMode,
	)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY closed_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetByDay returns trades for a given trading day in close order.
func (r *TradeRepo) GetByDay(ctx context.Context, tradingDay string, paperMode *bool) ([]models.ClosedTrade, error) {
	query, args := buildFilteredQuery(
		`SELECT `+tradeColumns+` FROM trade_history WHERE trading_day = $1`,
		[]any{tradingDay},
		paperMode,
	)
	query += " ORDER BY closed_at ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// GetStats returns win/loss aggregates.
// If paperMode is non-nil, filters by is_paper.
func (r *TradeRepo) GetStats(ctx context.Context, paperMode *bool) (*models.TradeStats, error) {
	query, args := buildFilteredQuery(
		`SELECT
			COUNT(*),
			COUNT(CASE WHEN pnl > 0 THEN 1 END),
			COUNT(CASE WHEN pnl < 0 THEN 1 END),
			COALESCE(SUM(pnl), 0)
		 FROM trade_history WHERE 1=1`,
		nil,
		paperMode,
	)

	var s models.TradeStats
	err := r.pool.QueryRow(ctx, query, args...).Scan(&s.TotalTrades, &s.Wins, &s.Losses, &s.TotalPnL)
	if err != nil {
		return nil, err
	}
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return &s, nil
}

func (r *TradeRepo) CountToday(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trade_history WHERE trading_day = $1`,
		models.TradingDay(time.Now()),
	).Scan(&count)
	return count, err
}

// buildFilteredQuery appends an is_paper clause when paperMode is non-nil.
func buildFilteredQuery(baseQuery string, baseArgs []any, paperMode *bool) (string, []any) {
	if paperMode == nil {
		return baseQuery, baseArgs
	}
	args := append(baseArgs, *paperMode)
	return baseQuery + fmt.Sprintf(" AND is_paper = $%d", len(args)), args
}

// --- scan helpers ---

const tradeColumns = `id, run_id, symbol, side, source, entry_price, exit_price, quantity,
	pnl, reason, is_paper, opened_at, closed_at, trading_day`

func scanTrade(row scannable) (models.ClosedTrade, error) {
	var t models.ClosedTrade
	var td time.Time
	err := row.Scan(
		&t.ID, &t.RunID, &t.Symbol, &t.Side, &t.Source, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
		&t.PnL, &t.Reason, &t.IsPaper, &t.OpenedAt, &t.ClosedAt, &td,
	)
	if err != nil {
		return models.ClosedTrade{}, err
	}
	t.TradingDay = td.Format(models.DayLayout)
	return t, nil
}

func collectTrades(rows rowsIter) ([]models.ClosedTrade, error) {
	out := []models.ClosedTrade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
