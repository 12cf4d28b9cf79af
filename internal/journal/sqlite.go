// Package journal is the single-file SQLite store for paper runs and
// deployments without Postgres.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kjannette/microtrend-backend/internal/models"
)

type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (j *SQLite) RecordTrade(ctx context.Context, t models.ClosedTrade) error {
	if t.TradingDay == "" {
		t.TradingDay = models.TradingDay(t.ClosedAt)
	}
	_, err := j.db.NamedExecContext(ctx, `
		INSERT OR IGNORE INTO trades
		(id, run_id, symbol, side, source, entry_price, exit_price, quantity,
		 pnl, reason, is_paper, opened_at, closed_at, trading_day)
		VALUES (:id, :run_id, :symbol, :side, :source, :entry_price, :exit_price, :quantity,
		 :pnl, :reason, :is_paper, :opened_at, :closed_at, :trading_day)`,
		t,
	)
	return err
}

// RecentTrades returns up to limit trades, newest first.
func (j *SQLite) RecentTrades(ctx context.Context, limit int) ([]models.ClosedTrade, error) {
	out := []models.ClosedTrade{}
	err := j.db.SelectContext(ctx, &out, `
		SELECT id, run_id, symbol, side, source, entry_price, exit_price, quantity,
		       pnl, reason, is_paper, opened_at, closed_at, trading_day
		FROM trades ORDER BY closed_at DESC, id DESC LIMIT ?`,
		limit,
	)
	return out, err
}

// TradesByDay returns one trading day's trades in close order.
func (j *SQLite) TradesByDay(ctx context.Context, day string) ([]models.ClosedTrade, error) {
	out := []models.ClosedTrade{}
	err := j.db.SelectContext(ctx, &out, `
		SELECT id, run_id, symbol, side, source, entry_price, exit_price, quantity,
		       pnl, reason, is_paper, opened_at, closed_at, trading_day
		FROM trades WHERE trading_day = ? ORDER BY closed_at ASC`,
		day,
	)
	return out, err
}

func (j *SQLite) SaveSnapshot(ctx context.Context, data []byte) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO state (id, snapshot, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		string(data), j.now().UTC(),
	)
	return err
}

// LoadSnapshot returns nil when nothing was saved yet.
func (j *SQLite) LoadSnapshot(ctx context.Context) ([]byte, error) {
	var data string
	err := j.db.GetContext(ctx, &data, `SELECT snapshot FROM state WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func (j *SQLite) RecordPrice(ctx context.Context, p models.PricePoint) error {
	if p.TradingDay == "" {
		p.TradingDay = models.TradingDay(p.Timestamp)
	}
	if p.Source == "" {
		p.Source = "binance"
	}
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO prices (symbol, timestamp, price, trading_day, source)
		VALUES (:symbol, :timestamp, :price, :trading_day, :source)`,
		p,
	)
	return err
}

// Prices returns the most recent points for symbol, oldest first.
func (j *SQLite) Prices(ctx context.Context, symbol string, limit int) ([]models.PricePoint, error) {
	out := []models.PricePoint{}
	err := j.db.SelectContext(ctx, &out, `
		SELECT id, symbol, timestamp, price, trading_day, source FROM (
			SELECT * FROM prices WHERE symbol = ? ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp ASC, id ASC`,
		symbol, limit,
	)
	return out, err
}

func (j *SQLite) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
