package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/kjannette/microtrend-backend/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func newTestTracker(limits Limits) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)}
	return NewTracker(limits, clock.Now), clock
}

var defaultLimits = Limits{MaxTradesPerDay: 3, MaxConsecutiveLosses: 1, MaxDailyDrawdownPct: 1.0}

func TestCanTrade_FreshState(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	d := tr.CanTrade(models.ModeScalping)
	if !d.Allowed || d.Reason != "OK" {
		t.Fatalf("expected allowed OK, got %+v", d)
	}
}

func TestCanTrade_DailyLimit(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	for i := 0; i < 3; i++ {
		tr.RecordTrade(1)
	}
	d := tr.CanTrade(models.ModeScalping)
	if d.Allowed {
		t.Fatal("expected daily limit to block")
	}
	if d.Gate != GateDailyTrades || !strings.Contains(d.Reason, "3/3") {
		t.Fatalf("unexpected decision: %+v", d)
	}
	t.Logf("Correctly blocked: %s", d.Reason)
}

func TestCanTrade_ConsecutiveLosses(t *testing.T) {
	tr, _ := newTestTracker(Limits{MaxTradesPerDay: 3, MaxConsecutiveLosses: 1})
	tr.RecordTrade(-5)

	if got := tr.State().ConsecutiveLosses; got != 1 {
		t.Fatalf("expected 1 consecutive loss, got %d", got)
	}
	d := tr.CanTrade(models.ModeScalping)
	if d.Allowed {
		t.Fatal("expected consecutive loss gate to block")
	}
	if d.Gate != GateConsecutiveLosses || !strings.Contains(d.Reason, "1 in a row") {
		t.Fatalf("reason should mention the loss count: %+v", d)
	}
	t.Logf("Correctly blocked: %s", d.Reason)
}

func TestCanTrade_Drawdown(t *testing.T) {
	tr, _ := newTestTracker(Limits{MaxDailyDrawdownPct: 1.0})
	tr.SetStartingBalance(100)
	tr.RecordClose(-0.5)
	if d := tr.CanTrade(models.ModeScalping); !d.Allowed {
		t.Fatalf("0.5%% drawdown should pass: %+v", d)
	}

	tr.RecordClose(-0.5)
	d := tr.CanTrade(models.ModeScalping)
	if d.Allowed || d.Gate != GateDrawdown {
		t.Fatalf("1%% drawdown should block: %+v", d)
	}
	t.Logf("Correctly blocked: %s", d.Reason)
}

func TestCanTrade_DrawdownSkippedWithoutStartingBalance(t *testing.T) {
	tr, _ := newTestTracker(Limits{MaxDailyDrawdownPct: 1.0})
	tr.RecordClose(-50)
	if d := tr.CanTrade(models.ModeScalping); !d.Allowed {
		t.Fatalf("no starting balance means no drawdown gate: %+v", d)
	}
}

func TestCanTrade_GridBypassesGates(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	tr.SetStartingBalance(100)
	for i := 0; i < 5; i++ {
		tr.RecordTrade(-10)
	}
	d := tr.CanTrade(models.ModeGrid)
	if !d.Allowed || d.Reason != "grid mode" {
		t.Fatalf("grid should bypass all gates, got %+v", d)
	}
}

func TestCanTrade_Idempotent(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	tr.RecordTrade(-1)
	first := tr.CanTrade(models.ModeScalping)
	second := tr.CanTrade(models.ModeScalping)
	if first != second {
		t.Fatalf("expected identical decisions, got %+v then %+v", first, second)
	}
}

func TestCanTrade_ZeroLimitsDisableChecks(t *testing.T) {
	tr, _ := newTestTracker(Limits{})
	tr.SetStartingBalance(10)
	for i := 0; i < 10; i++ {
		tr.RecordTrade(-5)
	}
	if d := tr.CanTrade(models.ModeScalping); !d.Allowed {
		t.Fatalf("zero limits should allow, got %+v", d)
	}
}

func TestRecordTrade_WinResetsConsecutiveLosses(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	tr.RecordTrade(-1)
	tr.RecordTrade(-1)
	tr.RecordTrade(0)

	s := tr.State()
	if s.ConsecutiveLosses != 0 {
		t.Fatalf("break-even trade should reset consecutive losses, got %d", s.ConsecutiveLosses)
	}
	if s.LossesToday != 2 || s.TradesToday != 3 {
		t.Fatalf("counters: %+v", s)
	}
	if s.DailyPnL != -2 {
		t.Fatalf("daily pnl: got %v", s.DailyPnL)
	}
}

func TestResetIfNewDay(t *testing.T) {
	tr, clock := newTestTracker(defaultLimits)
	tr.RecordTrade(-3)
	tr.RecordTrade(-2)

	if tr.ResetIfNewDay() {
		t.Fatal("same day should not reset")
	}

	clock.t = clock.t.Add(24 * time.Hour)
	if !tr.ResetIfNewDay() {
		t.Fatal("expected reset on new day")
	}

	s := tr.State()
	if s.TradesToday != 0 || s.LossesToday != 0 || s.DailyPnL != 0 {
		t.Fatalf("daily counters not cleared: %+v", s)
	}
	if s.LastResetDate != "2026-04-11" {
		t.Fatalf("reset date not advanced: %s", s.LastResetDate)
	}
	if s.ConsecutiveLosses != 2 {
		t.Fatalf("consecutive losses must survive the reset, got %d", s.ConsecutiveLosses)
	}
}

func TestRestore_StaleStateResetsOnNextCheck(t *testing.T) {
	tr, _ := newTestTracker(defaultLimits)
	tr.Restore(State{TradesToday: 3, LossesToday: 1, DailyPnL: -4, LastResetDate: "2026-04-09"})

	d := tr.CanTrade(models.ModeScalping)
	if !d.Allowed {
		t.Fatalf("yesterday's counters should not block today: %+v", d)
	}
	if tr.State().TradesToday != 0 {
		t.Fatal("expected restored counters to reset")
	}
}
