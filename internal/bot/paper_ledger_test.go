package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/microtrend-backend/internal/models"
)

func newLedger() *PaperLedger {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewPaperLedger(100, "run-1", func() time.Time { return now })
}

func TestLedger_LongTakeProfit(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Buy, 0.004, 30000, 29925, 30040, models.ModeScalping)
	require.NoError(t, err)

	assert.Nil(t, l.CheckPosition("BTCUSDT", 30000))
	assert.Nil(t, l.CheckPosition("BTCUSDT", 29926))

	tr := l.CheckPosition("BTCUSDT", 30040)
	require.NotNil(t, tr)
	assert.Equal(t, "TP Hit", tr.Reason)
	assert.InDelta(t, 0.16, tr.PnL, 1e-9)
	assert.InDelta(t, 100.16, l.Balance(), 1e-9)
	assert.Equal(t, "2026-03-01", tr.TradingDay)
	assert.Equal(t, "run-1", tr.RunID)
	assert.NotEmpty(t, tr.ID)

	_, open := l.Position("BTCUSDT")
	assert.False(t, open)
}

func TestLedger_ShortStopLoss(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Sell, 0.004, 30000, 30075, 29960, models.ModeScalping)
	require.NoError(t, err)

	tr := l.CheckPosition("BTCUSDT", 30080)
	require.NotNil(t, tr)
	assert.Equal(t, "SL Hit", tr.Reason)
	assert.InDelta(t, -0.32, tr.PnL, 1e-9)
	assert.InDelta(t, 99.68, l.Balance(), 1e-9)
}

func TestLedger_ShortTakeProfit(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Sell, 1, 100, 110, 90, models.ModeScalping)
	require.NoError(t, err)

	tr := l.CheckPosition("BTCUSDT", 90)
	require.NotNil(t, tr)
	assert.Equal(t, "TP Hit", tr.Reason)
	assert.InDelta(t, 10, tr.PnL, 1e-9)
}

func TestLedger_SecondOpenRejected(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Buy, 1, 100, 90, 110, models.ModeScalping)
	require.NoError(t, err)

	_, err = l.OpenPosition("BTCUSDT", models.Sell, 2, 105, 110, 95, models.ModeScalping)
	assert.ErrorIs(t, err, ErrPositionExists)

	p, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, models.Buy, p.Side)
	assert.Equal(t, 1.0, p.Quantity)
}

func TestLedger_ZeroLevelsNeverFire(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Buy, 1, 100, 0, 0, models.ModeDCA)
	require.NoError(t, err)

	assert.Nil(t, l.CheckPosition("BTCUSDT", 1))
	assert.Nil(t, l.CheckPosition("BTCUSDT", 1000))
}

func TestLedger_CloseWithoutPosition(t *testing.T) {
	l := newLedger()
	_, err := l.ClosePosition("ETHUSDT", 100, "manual")
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestLedger_FillNetting(t *testing.T) {
	l := newLedger()

	tr, err := l.Fill("BTCUSDT", models.Buy, 1, 100, models.ModeGrid)
	require.NoError(t, err)
	assert.Nil(t, tr)

	tr, err = l.Fill("BTCUSDT", models.Buy, 1, 110, models.ModeGrid)
	require.NoError(t, err)
	assert.Nil(t, tr)

	p, _ := l.Position("BTCUSDT")
	assert.Equal(t, 2.0, p.Quantity)
	assert.InDelta(t, 105, p.EntryPrice, 1e-9)

	// Sell 3: closes the 2 long at 120 and flips 1 short.
	tr, err = l.Fill("BTCUSDT", models.Sell, 3, 120, models.ModeGrid)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.InDelta(t, 30, tr.PnL, 1e-9)
	assert.Equal(t, 2.0, tr.Quantity)
	assert.Equal(t, "grid fill", tr.Reason)

	p, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, models.Sell, p.Side)
	assert.InDelta(t, 1, p.Quantity, 1e-9)
	assert.Equal(t, 120.0, p.EntryPrice)
	assert.InDelta(t, 130, l.Balance(), 1e-9)
}

func TestLedger_PartialReduce(t *testing.T) {
	l := newLedger()
	_, err := l.Fill("BTCUSDT", models.Buy, 2, 100, models.ModeGrid)
	require.NoError(t, err)

	tr, err := l.Fill("BTCUSDT", models.Sell, 0.5, 90, models.ModeGrid)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.InDelta(t, -5, tr.PnL, 1e-9)

	p, ok := l.Position("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, models.Buy, p.Side)
	assert.InDelta(t, 1.5, p.Quantity, 1e-9)
	assert.Equal(t, 100.0, p.EntryPrice)
}

func TestLedger_StatsAndTrades(t *testing.T) {
	l := newLedger()
	for _, exit := range []float64{110, 95, 120, 100} {
		_, err := l.OpenPosition("BTCUSDT", models.Buy, 1, 100, 0, 0, models.ModeScalping)
		require.NoError(t, err)
		_, err = l.ClosePosition("BTCUSDT", exit, "manual")
		require.NoError(t, err)
	}

	s := l.Stats()
	assert.Equal(t, int64(4), s.TotalTrades)
	assert.Equal(t, int64(2), s.Wins)
	assert.Equal(t, int64(1), s.Losses)
	assert.InDelta(t, 50, s.WinRate, 1e-9)
	assert.InDelta(t, 25, s.TotalPnL, 1e-9)

	recent := l.Trades(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 100.0, recent[0].ExitPrice)
	assert.Equal(t, 120.0, recent[1].ExitPrice)
	assert.Len(t, l.Trades(0), 4)
}

func TestLedger_ResetAndRestore(t *testing.T) {
	l := newLedger()
	_, err := l.OpenPosition("BTCUSDT", models.Buy, 1, 100, 90, 110, models.ModeScalping)
	require.NoError(t, err)
	_, err = l.ClosePosition("BTCUSDT", 105, "manual")
	require.NoError(t, err)
	_, err = l.OpenPosition("ETHUSDT", models.Sell, 2, 50, 55, 45, models.ModeScalping)
	require.NoError(t, err)

	saved := l.State()

	other := newLedger()
	other.Restore(saved)
	assert.InDelta(t, 105, other.Balance(), 1e-9)
	assert.Equal(t, int64(1), other.Stats().Wins)
	p, ok := other.Position("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, models.Sell, p.Side)

	other.Reset(250)
	assert.Equal(t, 250.0, other.Balance())
	assert.Empty(t, other.Positions())
	assert.Zero(t, other.Stats().TotalTrades)
}
