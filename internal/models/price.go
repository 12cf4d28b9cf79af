package models

import "time"

type PricePoint struct {
	ID         int64     `json:"id" db:"id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
	Price      float64   `json:"price" db:"price"`
	TradingDay string    `json:"tradingDay" db:"trading_day"`
	Source     string    `json:"source" db:"source"`
}
