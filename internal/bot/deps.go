package bot

import (
	"context"

	"github.com/kjannette/microtrend-backend/internal/external"
	"github.com/kjannette/microtrend-backend/internal/models"
)

// MarketData supplies candles and futures prices. Implemented by
// external.BinanceClient and cache.CandleCache.
type MarketData interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	MarkPrice(ctx context.Context, symbol string) (float64, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

// LiveTrader places real orders. Implemented by external.BinanceClient.
type LiveTrader interface {
	Balance(ctx context.Context) (float64, error)
	PositionAmount(ctx context.Context, symbol string) (float64, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty float64, reduceOnly bool) (external.OrderAck, error)
	PlaceExitOrder(ctx context.Context, symbol string, side models.Side, orderType string, stopPrice float64) (external.OrderAck, error)
	CancelAllOrders(ctx context.Context, symbol string) error
}

type Sentiment interface {
	Index(ctx context.Context) (external.FearGreedReading, error)
}

type Notifier interface {
	Send(msg string)
}

// Store persists closed trades, engine snapshots and mark prices.
// Implemented by repository.Store (postgres) and journal.SQLite.
type Store interface {
	RecordTrade(ctx context.Context, t models.ClosedTrade) error
	RecentTrades(ctx context.Context, limit int) ([]models.ClosedTrade, error)
	SaveSnapshot(ctx context.Context, data []byte) error
	LoadSnapshot(ctx context.Context) ([]byte, error)
	RecordPrice(ctx context.Context, p models.PricePoint) error
	Ping(ctx context.Context) error
	Close() error
}

type nopNotifier struct{}

func (nopNotifier) Send(string) {}
