package models

// Candle is one OHLCV bar. Sequences are ordered oldest to newest.
type Candle struct {
	OpenTime int64   `json:"openTime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Side is an order side as the exchange spells it.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Trend is the directional bias derived from the EMA crossover.
type Trend string

const (
	TrendLong    Trend = "LONG"
	TrendShort   Trend = "SHORT"
	TrendNeutral Trend = "NEUTRAL"
)

// Side maps a trend to the entry side; NEUTRAL has none.
func (t Trend) Side() (Side, bool) {
	switch t {
	case TrendLong:
		return Buy, true
	case TrendShort:
		return Sell, true
	}
	return "", false
}

type Mode string

const (
	ModeScalping  Mode = "scalping"
	ModeGrid      Mode = "grid"
	ModeDCA       Mode = "dca"
	ModeArbitrage Mode = "arbitrage"
)

// ParseMode falls back to scalping for unknown or empty values.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeGrid, ModeDCA, ModeArbitrage:
		return Mode(s)
	}
	return ModeScalping
}

// ValidMode reports whether s names a mode exactly.
func ValidMode(s string) bool {
	switch Mode(s) {
	case ModeScalping, ModeGrid, ModeDCA, ModeArbitrage:
		return true
	}
	return false
}
