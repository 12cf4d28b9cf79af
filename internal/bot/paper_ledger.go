package bot

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kjannette/microtrend-backend/internal/id"
	"github.com/kjannette/microtrend-backend/internal/models"
)

var (
	ErrPositionExists = errors.New("position already open")
	ErrNoPosition     = errors.New("no open position")
)

const (
	// qtyEpsilon absorbs float noise when netting fills down to flat.
	qtyEpsilon = 1e-9
	// maxLedgerTrades bounds the in-memory history; stats keep counting.
	maxLedgerTrades = 1000
)

// PaperLedger simulates futures positions. The balance moves only on
// realized P&L; closed trades are append-only. Not safe for concurrent
// use; the engine serializes access.
type PaperLedger struct {
	startingBalance float64
	balance         float64
	totalPnL        float64
	positions       map[string]*models.Position
	trades          []models.ClosedTrade
	stats           models.TradeStats
	runID           string
	now             func() time.Time
}

// LedgerState is the persisted form of a PaperLedger.
type LedgerState struct {
	StartingBalance float64              `json:"startingBalance"`
	Balance         float64              `json:"balance"`
	TotalPnL        float64              `json:"totalPnl"`
	Positions       []models.Position    `json:"positions"`
	Trades          []models.ClosedTrade `json:"trades"`
	Stats           models.TradeStats    `json:"stats"`
}

func NewPaperLedger(balance float64, runID string, now func() time.Time) *PaperLedger {
	if now == nil {
		now = time.Now
	}
	return &PaperLedger{
		startingBalance: balance,
		balance:         balance,
		positions:       make(map[string]*models.Position),
		runID:           runID,
		now:             now,
	}
}

func (l *PaperLedger) Balance() float64  { return l.balance }
func (l *PaperLedger) TotalPnL() float64 { return l.totalPnL }

func (l *PaperLedger) Position(symbol string) (models.Position, bool) {
	p, ok := l.positions[symbol]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// Positions returns open positions ordered by symbol.
func (l *PaperLedger) Positions() []models.Position {
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// OpenPosition records a bracketed position. A second open on the same
// symbol is refused.
func (l *PaperLedger) OpenPosition(symbol string, side models.Side, qty, entry, sl, tp float64, source models.Mode) (models.Position, error) {
	if _, ok := l.positions[symbol]; ok {
		return models.Position{}, fmt.Errorf("%s: %w", symbol, ErrPositionExists)
	}
	if qty <= 0 || entry <= 0 {
		return models.Position{}, fmt.Errorf("invalid position: qty %g, entry %g", qty, entry)
	}
	p := &models.Position{
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Source:     source,
		IsPaper:    true,
		OpenedAt:   l.now().UTC(),
	}
	l.positions[symbol] = p
	return *p, nil
}

// CheckPosition closes the position on symbol when price has reached its
// stop-loss or take-profit, and returns the closed trade. A zero level is
// treated as unset.
func (l *PaperLedger) CheckPosition(symbol string, price float64) *models.ClosedTrade {
	p, ok := l.positions[symbol]
	if !ok || price <= 0 {
		return nil
	}

	reason := ""
	switch p.Side {
	case models.Buy:
		if p.StopLoss > 0 && price <= p.StopLoss {
			reason = "SL Hit"
		} else if p.TakeProfit > 0 && price >= p.TakeProfit {
			reason = "TP Hit"
		}
	case models.Sell:
		if p.StopLoss > 0 && price >= p.StopLoss {
			reason = "SL Hit"
		} else if p.TakeProfit > 0 && price <= p.TakeProfit {
			reason = "TP Hit"
		}
	}
	if reason == "" {
		return nil
	}

	t, err := l.ClosePosition(symbol, price, reason)
	if err != nil {
		return nil
	}
	return &t
}

// ClosePosition realizes the whole position at exit.
func (l *PaperLedger) ClosePosition(symbol string, exit float64, reason string) (models.ClosedTrade, error) {
	p, ok := l.positions[symbol]
	if !ok {
		return models.ClosedTrade{}, fmt.Errorf("%s: %w", symbol, ErrNoPosition)
	}
	t := l.realize(p, p.Quantity, exit, reason)
	delete(l.positions, symbol)
	return t, nil
}

// Fill applies an unbracketed market fill. Same-side fills average into the
// position; opposite-side fills realize P&L on the overlapping quantity and
// any excess opens a position the other way.
func (l *PaperLedger) Fill(symbol string, side models.Side, qty, price float64, source models.Mode) (*models.ClosedTrade, error) {
	if qty <= 0 || price <= 0 {
		return nil, fmt.Errorf("invalid fill: qty %g, price %g", qty, price)
	}

	p, ok := l.positions[symbol]
	if !ok {
		_, err := l.OpenPosition(symbol, side, qty, price, 0, 0, source)
		return nil, err
	}

	if p.Side == side {
		total := p.Quantity + qty
		p.EntryPrice = (p.EntryPrice*p.Quantity + price*qty) / total
		p.Quantity = total
		return nil, nil
	}

	closeQty := math.Min(qty, p.Quantity)
	t := l.realize(p, closeQty, price, fmt.Sprintf("%s fill", source))
	p.Quantity -= closeQty
	remaining := qty - closeQty

	if p.Quantity <= qtyEpsilon {
		delete(l.positions, symbol)
		if remaining > qtyEpsilon {
			if _, err := l.OpenPosition(symbol, side, remaining, price, 0, 0, source); err != nil {
				return &t, err
			}
		}
	}
	return &t, nil
}

func (l *PaperLedger) realize(p *models.Position, qty, exit float64, reason string) models.ClosedTrade {
	now := l.now().UTC()
	pnl := models.PnL(p.Side, p.EntryPrice, exit, qty)
	t := models.ClosedTrade{
		ID:         id.NewAt(now),
		RunID:      l.runID,
		Symbol:     p.Symbol,
		Side:       p.Side,
		Source:     p.Source,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exit,
		Quantity:   qty,
		PnL:        pnl,
		Reason:     reason,
		IsPaper:    true,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   now,
		TradingDay: models.TradingDay(now),
	}
	l.balance += pnl
	l.totalPnL += pnl
	l.trades = append(l.trades, t)
	if len(l.trades) > maxLedgerTrades {
		l.trades = append([]models.ClosedTrade(nil), l.trades[len(l.trades)-maxLedgerTrades:]...)
	}

	l.stats.TotalTrades++
	switch {
	case pnl > 0:
		l.stats.Wins++
	case pnl < 0:
		l.stats.Losses++
	}
	return t
}

// Trades returns up to limit closed trades, newest first. limit <= 0
// returns all of them.
func (l *PaperLedger) Trades(limit int) []models.ClosedTrade {
	n := len(l.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ClosedTrade, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.trades[i])
	}
	return out
}

// Stats counts wins (P&L > 0) and losses (P&L < 0); break-even trades
// count toward the total only.
func (l *PaperLedger) Stats() models.TradeStats {
	s := l.stats
	s.TotalPnL = l.totalPnL
	s.WinRate = 0
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	}
	return s
}

// Reset discards positions and history and starts again from balance.
func (l *PaperLedger) Reset(balance float64) {
	l.startingBalance = balance
	l.balance = balance
	l.totalPnL = 0
	l.positions = make(map[string]*models.Position)
	l.trades = nil
	l.stats = models.TradeStats{}
}

func (l *PaperLedger) State() LedgerState {
	return LedgerState{
		StartingBalance: l.startingBalance,
		Balance:         l.balance,
		TotalPnL:        l.totalPnL,
		Positions:       l.Positions(),
		Trades:          append([]models.ClosedTrade(nil), l.trades...),
		Stats:           l.stats,
	}
}

func (l *PaperLedger) Restore(s LedgerState) {
	l.startingBalance = s.StartingBalance
	l.balance = s.Balance
	l.totalPnL = s.TotalPnL
	l.positions = make(map[string]*models.Position, len(s.Positions))
	for i := range s.Positions {
		p := s.Positions[i]
		l.positions[p.Symbol] = &p
	}
	l.trades = append([]models.ClosedTrade(nil), s.Trades...)
	l.stats = s.Stats
	if l.stats.TotalTrades == 0 && len(l.trades) > 0 {
		for _, t := range l.trades {
			l.stats.TotalTrades++
			switch {
			case t.PnL > 0:
				l.stats.Wins++
			case t.PnL < 0:
				l.stats.Losses++
			}
		}
	}
}
