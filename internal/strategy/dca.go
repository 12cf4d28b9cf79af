package strategy

import (
	"fmt"
	"time"

	"github.com/kjannette/microtrend-backend/internal/precision"
)

type DCAParams struct {
	Interval     time.Duration
	AmountUSD    float64
	DropPct      float64
	QtyPrecision int32
}

type DCAPurchase struct {
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	AmountUSD float64   `json:"amountUsd"`
	Time      time.Time `json:"time"`
}

type DCAState struct {
	Purchases     []DCAPurchase `json:"purchases"`
	TotalInvested float64       `json:"totalInvested"`
	TotalQuantity float64       `json:"totalQuantity"`
	AveragePrice  float64       `json:"averagePrice"`
	LastBuy       *time.Time    `json:"lastBuy,omitempty"`
}

// DCA accumulates a position in fixed USD amounts.
type DCA struct {
	params DCAParams
	state  DCAState
}

func NewDCA(p DCAParams) *DCA {
	return &DCA{params: p}
}

func (d *DCA) SetParams(p DCAParams) { d.params = p }

// ShouldBuy reports whether a purchase is due and why: nothing bought yet,
// the interval elapsed, or price fell DropPct below the average cost.
func (d *DCA) ShouldBuy(price float64, now time.Time) (bool, string) {
	if price <= 0 {
		return false, "no price"
	}
	if d.state.LastBuy == nil {
		return true, "first buy"
	}
	if elapsed := now.Sub(*d.state.LastBuy); elapsed >= d.params.Interval {
		return true, fmt.Sprintf("interval elapsed (%s)", elapsed.Round(time.Second))
	}
	if d.state.AveragePrice > 0 {
		drop := (d.state.AveragePrice - price) / d.state.AveragePrice * 100
		if drop >= d.params.DropPct {
			return true, fmt.Sprintf("price %.2f%% below average", drop)
		}
	}
	return false, "waiting"
}

// Quantity is the exact size AmountUSD buys at price.
func (d *DCA) Quantity(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return d.params.AmountUSD / price
}

// LotQuantity is Quantity rounded to the exchange lot precision. It is 0
// when AmountUSD is worth less than half a lot at price.
func (d *DCA) LotQuantity(price float64) float64 {
	return precision.Round(d.Quantity(price), d.params.QtyPrecision)
}

// Record books a purchase and updates the running average cost.
func (d *DCA) Record(price, qty float64, now time.Time) DCAPurchase {
	p := DCAPurchase{Price: price, Quantity: qty, AmountUSD: price * qty, Time: now}
	d.state.Purchases = append(d.state.Purchases, p)
	d.state.TotalInvested += p.AmountUSD
	d.state.TotalQuantity += qty
	if d.state.TotalQuantity > 0 {
		d.state.AveragePrice = d.state.TotalInvested / d.state.TotalQuantity
	}
	ts := now
	d.state.LastBuy = &ts
	return p
}

func (d *DCA) State() DCAState {
	s := d.state
	s.Purchases = append([]DCAPurchase(nil), d.state.Purchases...)
	return s
}

func (d *DCA) Restore(s DCAState) { d.state = s }

// UnrealizedPnL values the accumulated quantity at price.
func (d *DCA) UnrealizedPnL(price float64) float64 {
	return d.state.TotalQuantity*price - d.state.TotalInvested
}
