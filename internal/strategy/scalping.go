package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/precision"
)

var (
	ErrNoDirection    = errors.New("no trade direction")
	ErrNoStopDistance = errors.New("stop distance is zero")
)

type ScalpParams struct {
	Balance           float64
	RiskPerTrade      float64 // fraction of balance risked, e.g. 0.003
	StopATRMultiple   float64
	TargetATRMultiple float64
	PricePrecision    int32
	QtyPrecision      int32
}

type ScalpPlan struct {
	Side       models.Side `json:"side"`
	Entry      float64     `json:"entry"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit float64     `json:"takeProfit"`
	Quantity   float64     `json:"quantity"`
	ATR        float64     `json:"atr"`
	RiskUSD    float64     `json:"riskUsd"`
}

// PlanScalp places the stop and target around entry in ATR multiples and
// sizes the position so that hitting the stop loses Balance*RiskPerTrade,
// whatever the stop width.
func PlanScalp(trend models.Trend, entry, atr float64, p ScalpParams) (ScalpPlan, error) {
	side, ok := trend.Side()
	if !ok {
		return ScalpPlan{}, ErrNoDirection
	}
	if entry <= 0 {
		return ScalpPlan{}, fmt.Errorf("invalid entry price %.2f", entry)
	}

	plan := ScalpPlan{Side: side, Entry: entry, ATR: atr}
	if side == models.Buy {
		plan.StopLoss = precision.Round(entry-atr*p.StopATRMultiple, p.PricePrecision)
		plan.TakeProfit = precision.Round(entry+atr*p.TargetATRMultiple, p.PricePrecision)
	} else {
		plan.StopLoss = precision.Round(entry+atr*p.StopATRMultiple, p.PricePrecision)
		plan.TakeProfit = precision.Round(entry-atr*p.TargetATRMultiple, p.PricePrecision)
	}

	stopDist := math.Abs(entry-plan.StopLoss) / entry
	if stopDist == 0 {
		return ScalpPlan{}, ErrNoStopDistance
	}

	plan.RiskUSD = p.Balance * p.RiskPerTrade
	plan.Quantity = precision.Round(plan.RiskUSD/stopDist/entry, p.QtyPrecision)
	if plan.Quantity <= 0 {
		return ScalpPlan{}, fmt.Errorf("position size rounds to zero (risk $%.2f, stop %.4f%%)",
			plan.RiskUSD, stopDist*100)
	}
	return plan, nil
}
