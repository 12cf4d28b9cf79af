// Package indicators computes the technical readings the strategies trade on.
//
// Every function degrades to a sentinel on insufficient data instead of
// returning an error: EMA and ATR return 0, RSI returns 50. Callers must
// treat a sentinel as "no signal", never as a market reading.
package indicators

import (
	"math"

	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/precision"
)

const (
	DefaultRSIPeriod = 14
	DefaultATRPeriod = 14

	// MaintenanceMargin is the fixed maintenance margin rate used for the
	// liquidation estimate.
	MaintenanceMargin = 0.004

	neutralRSI = 50
)

// EMA returns the exponential moving average of prices, seeded with the
// simple average of the first period values.
func EMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	var sum float64
	for _, p := range prices[:period] {
		sum += p
	}
	ema := sum / float64(period)

	k := 2 / float64(period+1)
	for _, p := range prices[period:] {
		ema += (p - ema) * k
	}
	return ema
}

// RSI returns the relative strength index over the trailing period deltas.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return neutralRSI
	}

	var gains, losses float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR returns the average true range over the trailing period bars.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	var sum float64
	for i := len(candles) - period; i < len(candles); i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	return sum / float64(period)
}

func TrueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// LiquidationPrice estimates where an isolated position opened at entry
// with the given leverage gets liquidated, and how far away that is in
// percent of entry. Both values are rounded to cents.
func LiquidationPrice(entry float64, leverage int, side models.Side) (price, distancePct float64) {
	if entry <= 0 || leverage <= 0 {
		return 0, 0
	}

	lev := float64(leverage)
	if side == models.Sell {
		price = entry * (1 + 1/lev - MaintenanceMargin)
	} else {
		price = entry * (1 - 1/lev + MaintenanceMargin)
	}
	distancePct = math.Abs(entry-price) / entry * 100
	return precision.Round(price, 2), precision.Round(distancePct, 2)
}

func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
