package models

import "time"

type Order struct {
	Symbol     string
	Side       Side
	Quantity   float64
	Price      float64 // reference price the order was sized against
	StopLoss   float64
	TakeProfit float64
	Source     Mode
	Reason     string
}

// HasBracket reports whether the order carries its own exit levels.
func (o Order) HasBracket() bool {
	return o.StopLoss > 0 || o.TakeProfit > 0
}

type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entryPrice"`
	StopLoss   float64   `json:"stopLoss"`
	TakeProfit float64   `json:"takeProfit"`
	Source     Mode      `json:"source"`
	IsPaper    bool      `json:"isPaper"`
	OpenedAt   time.Time `json:"openedAt"`
}

// UnrealizedPnL values the position at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return PnL(p.Side, p.EntryPrice, price, p.Quantity)
}

// ClosedTrade is immutable once recorded.
type ClosedTrade struct {
	ID         string    `json:"id" db:"id"`
	RunID      string    `json:"runId" db:"run_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       Side      `json:"side" db:"side"`
	Source     Mode      `json:"source" db:"source"`
	EntryPrice float64   `json:"entryPrice" db:"entry_price"`
	ExitPrice  float64   `json:"exitPrice" db:"exit_price"`
	Quantity   float64   `json:"quantity" db:"quantity"`
	PnL        float64   `json:"pnl" db:"pnl"`
	Reason     string    `json:"reason" db:"reason"`
	IsPaper    bool      `json:"isPaper" db:"is_paper"`
	OpenedAt   time.Time `json:"openedAt" db:"opened_at"`
	ClosedAt   time.Time `json:"closedAt" db:"closed_at"`
	TradingDay string    `json:"tradingDay" db:"trading_day"`
}

type TradeStats struct {
	TotalTrades int64   `json:"totalTrades"`
	Wins        int64   `json:"wins"`
	Losses      int64   `json:"losses"`
	WinRate     float64 `json:"winRate"`
	TotalPnL    float64 `json:"totalPnl"`
}

// PnL is the signed profit of moving qty from entry to exit on side.
func PnL(side Side, entry, exit, qty float64) float64 {
	if side == Sell {
		return (entry - exit) * qty
	}
	return (exit - entry) * qty
}
