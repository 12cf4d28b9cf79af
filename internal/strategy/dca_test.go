package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDCA(t *testing.T) {
	d := NewDCA(DCAParams{Interval: time.Hour, AmountUSD: 10, DropPct: 2, QtyPrecision: 6})
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	ok, reason := d.ShouldBuy(100, t0)
	assert.True(t, ok)
	assert.Equal(t, "first buy", reason)

	qty := d.Quantity(100)
	assert.Equal(t, 0.1, qty)
	d.Record(100, qty, t0)
	assert.InDelta(t, 100, d.State().AveragePrice, 1e-9)

	ok, _ = d.ShouldBuy(99, t0.Add(10*time.Minute))
	assert.False(t, ok, "1% drop is under the threshold")

	ok, reason = d.ShouldBuy(97, t0.Add(10*time.Minute))
	assert.True(t, ok)
	assert.Contains(t, reason, "below average")

	ok, reason = d.ShouldBuy(100, t0.Add(time.Hour))
	assert.True(t, ok)
	assert.Contains(t, reason, "interval")

	d.Record(80, d.Quantity(80), t0.Add(time.Hour))
	s := d.State()
	assert.Len(t, s.Purchases, 2)
	assert.InDelta(t, 20, s.TotalInvested, 1e-9)
	assert.InDelta(t, 0.225, s.TotalQuantity, 1e-9)
	assert.InDelta(t, 20/0.225, s.AveragePrice, 1e-9)
	assert.InDelta(t, 0.225*90-20, d.UnrealizedPnL(90), 1e-9)
}

func TestDCA_NoPrice(t *testing.T) {
	d := NewDCA(DCAParams{Interval: time.Hour, AmountUSD: 10, DropPct: 2})
	ok, _ := d.ShouldBuy(0, time.Now())
	assert.False(t, ok)
	assert.Zero(t, d.Quantity(0))
}

func TestDCA_StateIsACopy(t *testing.T) {
	d := NewDCA(DCAParams{Interval: time.Hour, AmountUSD: 10, DropPct: 2, QtyPrecision: 6})
	d.Record(100, 0.1, time.Now())
	s := d.State()
	s.Purchases[0].Price = 1
	assert.Equal(t, 100.0, d.State().Purchases[0].Price)

	other := NewDCA(DCAParams{})
	other.Restore(d.State())
	assert.Equal(t, d.State().TotalQuantity, other.State().TotalQuantity)
}

func TestDCA_LotQuantity(t *testing.T) {
	d := NewDCA(DCAParams{Interval: time.Hour, AmountUSD: 10, DropPct: 2, QtyPrecision: 3})

	// $10 of BTC is a third of the 0.001 lot.
	assert.InDelta(t, 10.0/30000, d.Quantity(30000), 1e-15)
	assert.Zero(t, d.LotQuantity(30000))

	assert.Equal(t, 0.1, d.LotQuantity(100))
}
