package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/id"
	"github.com/kjannette/microtrend-backend/internal/models"
)

const (
	VenuePaper = "paper"
	VenueLive  = "live"
)

var ErrNoTrader = errors.New("live trading is not configured")

// Executor turns orders into positions, either on the paper ledger or on
// the exchange.
type Executor interface {
	Venue() string
	Position(symbol string) (models.Position, bool)
	Positions() []models.Position
	// Open places a bracketed entry. A second open on a symbol fails with
	// ErrPositionExists.
	Open(ctx context.Context, o models.Order) (models.Position, error)
	// Fill places an unbracketed market order that nets against any
	// existing position.
	Fill(ctx context.Context, o models.Order) (*models.ClosedTrade, error)
	Close(ctx context.Context, symbol string, price float64, reason string) (*models.ClosedTrade, error)
	// Check reports a position that closed on its own since the last call.
	Check(ctx context.Context, symbol string, price float64) (*models.ClosedTrade, error)
}

// --- paper ---

type paperExecutor struct {
	ledger *PaperLedger
}

func (p *paperExecutor) Venue() string { return VenuePaper }

func (p *paperExecutor) Position(symbol string) (models.Position, bool) {
	return p.ledger.Position(symbol)
}

func (p *paperExecutor) Positions() []models.Position { return p.ledger.Positions() }

func (p *paperExecutor) Open(_ context.Context, o models.Order) (models.Position, error) {
	return p.ledger.OpenPosition(o.Symbol, o.Side, o.Quantity, o.Price, o.StopLoss, o.TakeProfit, o.Source)
}

func (p *paperExecutor) Fill(_ context.Context, o models.Order) (*models.ClosedTrade, error) {
	return p.ledger.Fill(o.Symbol, o.Side, o.Quantity, o.Price, o.Source)
}

func (p *paperExecutor) Close(_ context.Context, symbol string, price float64, reason string) (*models.ClosedTrade, error) {
	t, err := p.ledger.ClosePosition(symbol, price, reason)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *paperExecutor) Check(_ context.Context, symbol string, price float64) (*models.ClosedTrade, error) {
	return p.ledger.CheckPosition(symbol, price), nil
}

// --- live ---

// liveExecutor sends market orders with exchange-side STOP_MARKET and
// TAKE_PROFIT_MARKET exits. Positions it opened are tracked locally so a
// close done by the exchange can be detected and accounted.
type liveExecutor struct {
	trader    LiveTrader
	leverage  int
	runID     string
	positions map[string]models.Position
	log       *zap.Logger
	now       func() time.Time
}

func newLiveExecutor(trader LiveTrader, leverage int, runID string, log *zap.Logger, now func() time.Time) *liveExecutor {
	return &liveExecutor{
		trader:    trader,
		leverage:  leverage,
		runID:     runID,
		positions: make(map[string]models.Position),
		log:       log,
		now:       now,
	}
}

func (l *liveExecutor) Venue() string { return VenueLive }

func (l *liveExecutor) Position(symbol string) (models.Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

func (l *liveExecutor) Positions() []models.Position {
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (l *liveExecutor) Open(ctx context.Context, o models.Order) (models.Position, error) {
	if l.trader == nil {
		return models.Position{}, ErrNoTrader
	}
	if _, ok := l.positions[o.Symbol]; ok {
		return models.Position{}, fmt.Errorf("%s: %w", o.Symbol, ErrPositionExists)
	}

	if err := l.trader.SetLeverage(ctx, o.Symbol, l.leverage); err != nil {
		return models.Position{}, fmt.Errorf("set leverage: %w", err)
	}
	ack, err := l.trader.PlaceMarketOrder(ctx, o.Symbol, o.Side, o.Quantity, false)
	if err != nil {
		return models.Position{}, fmt.Errorf("entry order: %w", err)
	}
	l.log.Info("entry order accepted",
		zap.String("symbol", o.Symbol), zap.String("side", string(o.Side)),
		zap.Float64("qty", o.Quantity), zap.Int64("orderId", ack.OrderID))

	exitSide := o.Side.Opposite()
	if o.StopLoss > 0 {
		if _, err := l.trader.PlaceExitOrder(ctx, o.Symbol, exitSide, "STOP_MARKET", o.StopLoss); err != nil {
			l.flatten(ctx, o.Symbol, exitSide, o.Quantity)
			return models.Position{}, fmt.Errorf("stop-loss order: %w", err)
		}
	}
	if o.TakeProfit > 0 {
		if _, err := l.trader.PlaceExitOrder(ctx, o.Symbol, exitSide, "TAKE_PROFIT_MARKET", o.TakeProfit); err != nil {
			l.flatten(ctx, o.Symbol, exitSide, o.Quantity)
			return models.Position{}, fmt.Errorf("take-profit order: %w", err)
		}
	}

	p := models.Position{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		EntryPrice: o.Price,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Source:     o.Source,
		OpenedAt:   l.now().UTC(),
	}
	l.positions[o.Symbol] = p
	return p, nil
}

// flatten undoes an entry whose protective orders could not be placed.
func (l *liveExecutor) flatten(ctx context.Context, symbol string, side models.Side, qty float64) {
	if _, err := l.trader.PlaceMarketOrder(ctx, symbol, side, qty, true); err != nil {
		l.log.Error("failed to flatten unprotected position",
			zap.String("symbol", symbol), zap.Float64("qty", qty), zap.Error(err))
		return
	}
	_ = l.trader.CancelAllOrders(ctx, symbol)
}

func (l *liveExecutor) Fill(ctx context.Context, o models.Order) (*models.ClosedTrade, error) {
	if l.trader == nil {
		return nil, ErrNoTrader
	}
	if _, err := l.trader.PlaceMarketOrder(ctx, o.Symbol, o.Side, o.Quantity, false); err != nil {
		return nil, fmt.Errorf("market order: %w", err)
	}
	return nil, nil
}

func (l *liveExecutor) Close(ctx context.Context, symbol string, price float64, reason string) (*models.ClosedTrade, error) {
	if l.trader == nil {
		return nil, ErrNoTrader
	}
	p, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	if _, err := l.trader.PlaceMarketOrder(ctx, symbol, p.Side.Opposite(), p.Quantity, true); err != nil {
		return nil, fmt.Errorf("close order: %w", err)
	}
	if err := l.trader.CancelAllOrders(ctx, symbol); err != nil {
		l.log.Warn("cancel exit orders failed", zap.String("symbol", symbol), zap.Error(err))
	}
	t := l.closed(p, price, reason)
	return &t, nil
}

// Check asks the exchange whether the tracked position is still open. A
// flat account means a bracket order fired; the exit is estimated from
// price and whichever bracket is nearer.
func (l *liveExecutor) Check(ctx context.Context, symbol string, price float64) (*models.ClosedTrade, error) {
	p, ok := l.positions[symbol]
	if !ok || l.trader == nil {
		return nil, nil
	}
	amt, err := l.trader.PositionAmount(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("position amount: %w", err)
	}
	if math.Abs(amt) > qtyEpsilon {
		return nil, nil
	}

	reason := "Closed on exchange"
	exit := price
	if p.StopLoss > 0 && p.TakeProfit > 0 {
		if math.Abs(price-p.StopLoss) < math.Abs(price-p.TakeProfit) {
			reason, exit = "SL Hit", p.StopLoss
		} else {
			reason, exit = "TP Hit", p.TakeProfit
		}
	}
	_ = l.trader.CancelAllOrders(ctx, symbol)
	t := l.closed(p, exit, reason)
	return &t, nil
}

func (l *liveExecutor) closed(p models.Position, exit float64, reason string) models.ClosedTrade {
	delete(l.positions, p.Symbol)
	now := l.now().UTC()
	return models.ClosedTrade{
		ID:         id.NewAt(now),
		RunID:      l.runID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Source:     p.Source,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exit,
		Quantity:   p.Quantity,
		PnL:        models.PnL(p.Side, p.EntryPrice, exit, p.Quantity),
		Reason:     reason,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   now,
		TradingDay: models.TradingDay(now),
	}
}

func (l *liveExecutor) restore(positions []models.Position) {
	l.positions = make(map[string]models.Position, len(positions))
	for _, p := range positions {
		l.positions[p.Symbol] = p
	}
}
