package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/microtrend-backend/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

func (r *PriceRepo) Record(ctx context.Context, p models.PricePoint) (*models.PricePoint, error) {
	if p.TradingDay == "" {
		p.TradingDay = models.TradingDay(p.Timestamp)
	}
	if p.Source == "" {
		p.Source = "binance"
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO price_history (symbol, timestamp, price, trading_day, source)
		 VALUES ($1, $2, $3, $4, $5) RETURNING `+priceColumns,
		p.Symbol, p.Timestamp, p.Price, p.TradingDay, p.Source,
	)
	return scanPrice(row)
}

func (r *PriceRepo) GetByDay(ctx context.Context, symbol, tradingDay string) ([]models.PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+priceColumns+` FROM price_history
		 WHERE symbol = $1 AND trading_day = $2 ORDER BY timestamp ASC`,
		symbol, tradingDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

func (r *PriceRepo) GetAvailableDays(ctx context.Context, symbol string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT trading_day FROM price_history
		 WHERE symbol = $1 ORDER BY trading_day DESC LIMIT 30`,
		symbol,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		days = append(days, d.Format(models.DayLayout))
	}
	return days, rows.Err()
}

// GetLatest returns nil, nil when nothing has been recorded for symbol.
func (r *PriceRepo) GetLatest(ctx context.Context, symbol string) (*models.PricePoint, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+priceColumns+` FROM price_history
		 WHERE symbol = $1 ORDER BY timestamp DESC LIMIT 1`,
		symbol,
	)
	p, err := scanPrice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

const priceColumns = `id, symbol, timestamp, price, trading_day, source`

func scanPrice(row scannable) (*models.PricePoint, error) {
	var p models.PricePoint
	var td time.Time
	err := row.Scan(&p.ID, &p.Symbol, &p.Timestamp, &p.Price, &td, &p.Source)
	if err != nil {
		return nil, err
	}
	p.TradingDay = td.Format(models.DayLayout)
	return &p, nil
}

func collectPrices(rows rowsIter) ([]models.PricePoint, error) {
	var out []models.PricePoint
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
