package strategy

import (
	"math"

	"github.com/kjannette/microtrend-backend/internal/indicators"
	"github.com/kjannette/microtrend-backend/internal/models"
)

const (
	FastEMAPeriod = 20
	SlowEMAPeriod = 50
)

// Bands are the inclusive RSI ranges that count as a pullback inside a trend.
type Bands struct {
	LongMin  float64 `json:"longMin"`
	LongMax  float64 `json:"longMax"`
	ShortMin float64 `json:"shortMin"`
	ShortMax float64 `json:"shortMax"`
}

var DefaultBands = Bands{LongMin: 40, LongMax: 50, ShortMin: 50, ShortMax: 60}

// ClassifyTrend compares EMA20 against EMA50 of the closes. When either
// average is still the 0 sentinel the result is NEUTRAL. That includes
// 20 to 49 candles, where EMA20 is real and EMA50 is not: a bare
// fast > slow comparison would read that as LONG on every history too
// short for the slow average.
func ClassifyTrend(candles []models.Candle) models.Trend {
	closes := indicators.Closes(candles)
	fast := indicators.EMA(closes, FastEMAPeriod)
	slow := indicators.EMA(closes, SlowEMAPeriod)

	switch {
	case fast == 0 || slow == 0:
		return models.TrendNeutral
	case fast > slow:
		return models.TrendLong
	case fast < slow:
		return models.TrendShort
	}
	return models.TrendNeutral
}

func ConfirmsPullback(candles []models.Candle, trend models.Trend, b Bands) bool {
	rsi := indicators.RSI(indicators.Closes(candles), indicators.DefaultRSIPeriod)
	return InBand(rsi, trend, b)
}

func InBand(rsi float64, trend models.Trend, b Bands) bool {
	switch trend {
	case models.TrendLong:
		return rsi >= b.LongMin && rsi <= b.LongMax
	case models.TrendShort:
		return rsi >= b.ShortMin && rsi <= b.ShortMax
	}
	return false
}

// SignalScore ranks how cleanly rsi sits in the trend's band: 100 at the
// band center, falling off by 2 points per RSI point, 0 outside the band.
func SignalScore(trend models.Trend, rsi float64, b Bands) float64 {
	if !InBand(rsi, trend, b) {
		return 0
	}
	center := (b.LongMin + b.LongMax) / 2
	if trend == models.TrendShort {
		center = (b.ShortMin + b.ShortMax) / 2
	}
	return math.Max(0, 100-math.Abs(rsi-center)*2)
}
