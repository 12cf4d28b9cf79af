package risk

import (
	"fmt"
	"time"

	"github.com/kjannette/microtrend-backend/internal/models"
)

const dateLayout = "2006-01-02"

// Limits holds the daily risk ceilings from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MaxTradesPerDay      int
	MaxConsecutiveLosses int
	MaxDailyDrawdownPct  float64
}

// State is the persisted daily trading record.
type State struct {
	TradesToday       int     `json:"tradesToday"`
	LossesToday       int     `json:"lossesToday"`
	ConsecutiveLosses int     `json:"consecutiveLosses"`
	DailyPnL          float64 `json:"dailyPnl"`
	StartingBalance   float64 `json:"startingBalance"`
	LastResetDate     string  `json:"lastResetDate"`
}

// DrawdownPct is today's loss as a percentage of the starting balance.
func (s State) DrawdownPct() float64 {
	if s.StartingBalance <= 0 {
		return 0
	}
	return -s.DailyPnL / s.StartingBalance * 100
}

// Gate names reported when a trade is denied.
const (
	GateDailyTrades       = "daily_trades"
	GateConsecutiveLosses = "consecutive_losses"
	GateDrawdown          = "daily_drawdown"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Gate    string `json:"gate,omitempty"`
}

// Tracker gates new trades on daily counters. Not safe for concurrent use;
// the engine serializes access.
type Tracker struct {
	limits Limits
	state  State
	now    func() time.Time
}

func NewTracker(limits Limits, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{limits: limits, now: now}
	t.state.LastResetDate = t.today()
	return t
}

func (t *Tracker) SetLimits(l Limits) { t.limits = l }

func (t *Tracker) Limits() Limits { return t.limits }

func (t *Tracker) today() string {
	return t.now().UTC().Format(dateLayout)
}

// ResetIfNewDay clears the daily counters once the UTC date moves past the
// stored reset date. Consecutive losses carry over.
func (t *Tracker) ResetIfNewDay() bool {
	today := t.today()
	if today <= t.state.LastResetDate {
		return false
	}
	t.state.TradesToday = 0
	t.state.LossesToday = 0
	t.state.DailyPnL = 0
	t.state.LastResetDate = today
	return true
}

// CanTrade reports whether a new position may be opened in mode. Grid mode
// rebalances continuously and is never gated.
func (t *Tracker) CanTrade(mode models.Mode) Decision {
	t.ResetIfNewDay()

	if mode == models.ModeGrid {
		return Decision{Allowed: true, Reason: "grid mode"}
	}

	s := t.state
	if t.limits.MaxTradesPerDay > 0 && s.TradesToday >= t.limits.MaxTradesPerDay {
		return Decision{
			Reason: fmt.Sprintf("daily trade limit reached (%d/%d)", s.TradesToday, t.limits.MaxTradesPerDay),
			Gate:   GateDailyTrades,
		}
	}
	if t.limits.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= t.limits.MaxConsecutiveLosses {
		return Decision{
			Reason: fmt.Sprintf("consecutive loss limit reached (%d in a row, max %d)",
				s.ConsecutiveLosses, t.limits.MaxConsecutiveLosses),
			Gate: GateConsecutiveLosses,
		}
	}
	if t.limits.MaxDailyDrawdownPct > 0 && s.StartingBalance > 0 {
		if dd := s.DrawdownPct(); dd >= t.limits.MaxDailyDrawdownPct {
			return Decision{
				Reason: fmt.Sprintf("daily drawdown limit reached (%.2f%%, max %.2f%%)", dd, t.limits.MaxDailyDrawdownPct),
				Gate:   GateDrawdown,
			}
		}
	}
	return Decision{Allowed: true, Reason: "OK"}
}

// RecordTrade books a completed trade in one step.
func (t *Tracker) RecordTrade(pnl float64) {
	t.RecordOpen()
	t.RecordClose(pnl)
}

// RecordOpen counts a new entry against the daily limit.
func (t *Tracker) RecordOpen() {
	t.ResetIfNewDay()
	t.state.TradesToday++
}

// RecordClose books the realized outcome of a position.
func (t *Tracker) RecordClose(pnl float64) {
	t.ResetIfNewDay()
	t.state.DailyPnL += pnl
	if pnl < 0 {
		t.state.LossesToday++
		t.state.ConsecutiveLosses++
	} else {
		t.state.ConsecutiveLosses = 0
	}
}

func (t *Tracker) SetStartingBalance(balance float64) {
	t.state.StartingBalance = balance
}

func (t *Tracker) State() State { return t.state }

func (t *Tracker) Restore(s State) {
	if s.LastResetDate == "" {
		s.LastResetDate = t.today()
	}
	t.state = s
}
