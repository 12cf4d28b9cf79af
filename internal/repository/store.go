package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/microtrend-backend/internal/models"
)

// Store bundles the repositories behind the engine's persistence interface.
type Store struct {
	pool   *pgxpool.Pool
	Trades *TradeRepo
	State  *StateRepo
	Prices *PriceRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		Trades: NewTradeRepo(pool),
		State:  NewStateRepo(pool),
		Prices: NewPriceRepo(pool),
	}
}

func (s *Store) RecordTrade(ctx context.Context, t models.ClosedTrade) error {
	return s.Trades.Record(ctx, t)
}

func (s *Store) RecentTrades(ctx context.Context, limit int) ([]models.ClosedTrade, error) {
	return s.Trades.GetRecent(ctx, limit, nil)
}

func (s *Store) SaveSnapshot(ctx context.Context, data []byte) error {
	return s.State.Save(ctx, data)
}

func (s *Store) LoadSnapshot(ctx context.Context) ([]byte, error) {
	return s.State.GetActive(ctx)
}

func (s *Store) RecordPrice(ctx context.Context, p models.PricePoint) error {
	_, err := s.Prices.Record(ctx, p)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
