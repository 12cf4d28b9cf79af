package strategy

import (
	"sort"

	"github.com/kjannette/microtrend-backend/internal/models"
)

type TrailingStop struct {
	Symbol        string      `json:"symbol"`
	Side          models.Side `json:"side"`
	Entry         float64     `json:"entry"`
	ActivationPct float64     `json:"activationPct"`
	CallbackPct   float64     `json:"callbackPct"`
	High          float64     `json:"high"`
	Low           float64     `json:"low"`
	Armed         bool        `json:"armed"`
	StopPrice     float64     `json:"stopPrice"`
}

// ProfitPct is the unrealized move from entry in the position's favor.
func (t TrailingStop) ProfitPct(price float64) float64 {
	if t.Entry <= 0 {
		return 0
	}
	if t.Side == models.Sell {
		return (t.Entry - price) / t.Entry * 100
	}
	return (price - t.Entry) / t.Entry * 100
}

// TrailingStops tracks one trailing stop per symbol. Not safe for
// concurrent use; the engine serializes access.
type TrailingStops struct {
	stops map[string]*TrailingStop
}

func NewTrailingStops() *TrailingStops {
	return &TrailingStops{stops: make(map[string]*TrailingStop)}
}

func (ts *TrailingStops) Activate(symbol string, entry float64, side models.Side, activationPct, callbackPct float64) {
	ts.stops[symbol] = &TrailingStop{
		Symbol:        symbol,
		Side:          side,
		Entry:         entry,
		ActivationPct: activationPct,
		CallbackPct:   callbackPct,
		High:          entry,
		Low:           entry,
	}
}

// Update feeds a new price and reports whether the position should close.
// The stop arms once profit reaches the activation threshold and then only
// ratchets in the position's favor.
func (ts *TrailingStops) Update(symbol string, price float64) (bool, float64) {
	t, ok := ts.stops[symbol]
	if !ok || price <= 0 {
		return false, 0
	}

	if !t.Armed && t.ProfitPct(price) >= t.ActivationPct {
		t.Armed = true
	}
	if !t.Armed {
		return false, 0
	}

	if t.Side == models.Sell {
		if price < t.Low || t.StopPrice == 0 {
			if price < t.Low {
				t.Low = price
			}
			t.StopPrice = t.Low * (1 + t.CallbackPct/100)
		}
		return price >= t.StopPrice, t.StopPrice
	}

	if price > t.High || t.StopPrice == 0 {
		if price > t.High {
			t.High = price
		}
		t.StopPrice = t.High * (1 - t.CallbackPct/100)
	}
	return price <= t.StopPrice, t.StopPrice
}

func (ts *TrailingStops) Remove(symbol string) {
	delete(ts.stops, symbol)
}

func (ts *TrailingStops) Get(symbol string) (TrailingStop, bool) {
	t, ok := ts.stops[symbol]
	if !ok {
		return TrailingStop{}, false
	}
	return *t, true
}

// All returns the tracked stops ordered by symbol.
func (ts *TrailingStops) All() []TrailingStop {
	out := make([]TrailingStop, 0, len(ts.stops))
	for _, t := range ts.stops {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (ts *TrailingStops) Restore(stops []TrailingStop) {
	ts.stops = make(map[string]*TrailingStop, len(stops))
	for i := range stops {
		t := stops[i]
		ts.stops[t.Symbol] = &t
	}
}
