package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kjannette/microtrend-backend/internal/config"
	"github.com/kjannette/microtrend-backend/internal/external"
	"github.com/kjannette/microtrend-backend/internal/models"
)

// --- candle fixtures ---

func candles(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{OpenTime: int64(i) * 300000, Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return out
}

func flat(n int, price float64) []models.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return candles(closes...)
}

// pullback rises for 50 bars and then chops so EMA20 > EMA50 with RSI14
// at 45. Last close 147.6, ATR14 2.05.
func pullback() []models.Candle {
	closes := make([]float64, 0, 64)
	for i := 0; i < 50; i++ {
		closes = append(closes, 100+float64(i))
	}
	for i := 0; i < 7; i++ {
		last := closes[len(closes)-1]
		closes = append(closes, last+0.9, last-0.2)
	}
	return candles(closes...)
}

// --- market ---

type fakeMarket struct {
	mu          sync.Mutex
	candles     map[string][]models.Candle
	mark        float64
	funding     float64
	err         error
	panicMsg    string
	candleCalls int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{candles: make(map[string][]models.Candle)}
}

func (m *fakeMarket) set(symbol string, c []models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = c
	if len(c) > 0 {
		m.mark = c[len(c)-1].Close
	}
}

func (m *fakeMarket) Candles(_ context.Context, symbol, _ string, _ int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candleCalls++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.candles[symbol], nil
}

func (m *fakeMarket) MarkPrice(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.mark, nil
}

func (m *fakeMarket) FundingRate(context.Context, string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.funding, nil
}

func (m *fakeMarket) setMark(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mark = p
}

// --- live trader ---

type fakeOrder struct {
	Side       models.Side
	Type       string
	Qty        float64
	Stop       float64
	ReduceOnly bool
}

type fakeTrader struct {
	mu        sync.Mutex
	balance   float64
	amount    float64
	orderErr  error
	orders    []fakeOrder
	cancelled int
}

func (f *fakeTrader) Balance(context.Context) (float64, error) { return f.balance, nil }

func (f *fakeTrader) PositionAmount(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.amount, nil
}

func (f *fakeTrader) SetLeverage(context.Context, string, int) error { return nil }

func (f *fakeTrader) PlaceMarketOrder(_ context.Context, _ string, side models.Side, qty float64, reduceOnly bool) (external.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return external.OrderAck{}, f.orderErr
	}
	f.orders = append(f.orders, fakeOrder{Side: side, Type: "MARKET", Qty: qty, ReduceOnly: reduceOnly})
	if reduceOnly {
		f.amount = 0
	} else if side == models.Buy {
		f.amount += qty
	} else {
		f.amount -= qty
	}
	return external.OrderAck{OrderID: int64(len(f.orders))}, nil
}

func (f *fakeTrader) PlaceExitOrder(_ context.Context, _ string, side models.Side, orderType string, stop float64) (external.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, fakeOrder{Side: side, Type: orderType, Stop: stop})
	return external.OrderAck{OrderID: int64(len(f.orders))}, nil
}

func (f *fakeTrader) CancelAllOrders(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

// --- notifier ---

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Send(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *fakeNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

// --- store ---

type fakeStore struct {
	mu       sync.Mutex
	trades   []models.ClosedTrade
	prices   []models.PricePoint
	snapshot []byte
	saves    int
}

func (s *fakeStore) RecordTrade(_ context.Context, t models.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return nil
}

func (s *fakeStore) RecentTrades(_ context.Context, limit int) ([]models.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ClosedTrade, 0, len(s.trades))
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}

func (s *fakeStore) SaveSnapshot(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *fakeStore) LoadSnapshot(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

func (s *fakeStore) RecordPrice(_ context.Context, p models.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = append(s.prices, p)
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

// --- engine harness ---

var errFeedDown = errors.New("feed down")

type harness struct {
	engine *Engine
	market *fakeMarket
	notify *fakeNotifier
	store  *fakeStore
	trader *fakeTrader
	clock  *time.Time
}

func testConfig() config.Config {
	cfg := *config.Defaults()
	cfg.Symbol = "BTCUSDT"
	cfg.ScanSymbols = []string{"BTCUSDT", "ETHUSDT"}
	cfg.PaperTrading = true
	cfg.PaperBalance = 100
	cfg.TrailingEnabled = false
	cfg.FearGreedEnabled = false
	cfg.MaxTradesPerDay = 3
	cfg.MaxConsecutiveLosses = 1
	cfg.MaxDailyDrawdownPct = 1
	return cfg
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &harness{
		market: newFakeMarket(),
		notify: &fakeNotifier{},
		store:  &fakeStore{},
		trader: &fakeTrader{balance: 100},
		clock:  &now,
	}
	var trader LiveTrader
	if !cfg.PaperTrading {
		trader = h.trader
	}
	h.engine = NewEngine(cfg, Deps{
		Market:   h.market,
		Trader:   trader,
		Notifier: h.notify,
		Store:    h.store,
		Logger:   zaptest.NewLogger(t),
		Now:      func() time.Time { return *h.clock },
	})
	return h
}

func (h *harness) advance(d time.Duration) {
	*h.clock = h.clock.Add(d)
}
