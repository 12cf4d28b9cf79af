package repository_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kjannette/microtrend-backend/internal/id"
	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/repository"
	"github.com/kjannette/microtrend-backend/internal/testutil"
)

// ---------- PriceRepo ----------

func TestPriceRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewPriceRepo(pool)
	ctx := context.Background()

	// Record
	ts := time.Now().UTC()
	p, err := repo.Record(ctx, models.PricePoint{Symbol: "BTCUSDT", Timestamp: ts, Price: 30150.5})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if p.Price != 30150.5 {
		t.Fatalf("price mismatch: got %f", p.Price)
	}
	if p.Source != "binance" {
		t.Fatalf("expected default source, got %s", p.Source)
	}
	t.Logf("Recorded price: id=%d price=%.2f day=%s", p.ID, p.Price, p.TradingDay)

	// GetLatest
	latest, err := repo.GetLatest(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest == nil {
		t.Fatal("expected latest price")
	}

	// GetLatest on an unknown symbol
	none, err := repo.GetLatest(ctx, "NOPEUSDT")
	if err != nil {
		t.Fatalf("GetLatest(unknown): %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for unknown symbol, got %+v", none)
	}

	// GetByDay
	prices, err := repo.GetByDay(ctx, "BTCUSDT", p.TradingDay)
	if err != nil {
		t.Fatalf("GetByDay: %v", err)
	}
	if len(prices) == 0 {
		t.Fatal("expected prices for trading day")
	}

	// GetAvailableDays
	days, err := repo.GetAvailableDays(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("GetAvailableDays: %v", err)
	}
	if len(days) == 0 {
		t.Fatal("expected at least one day")
	}
	t.Logf("Available days: %v", days)
}

// ---------- TradeRepo ----------

func TestTradeRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewTradeRepo(pool)
	ctx := context.Background()

	closed := time.Now().UTC().Truncate(time.Microsecond)
	trade := models.ClosedTrade{
		ID:         id.NewAt(closed),
		RunID:      "test-run",
		Symbol:     "BTCUSDT",
		Side:       models.Buy,
		Source:     models.ModeScalping,
		EntryPrice: 30000,
		ExitPrice:  30150,
		Quantity:   0.002,
		PnL:        0.3,
		Reason:     "TP Hit",
		IsPaper:    true,
		OpenedAt:   closed.Add(-10 * time.Minute),
		ClosedAt:   closed,
	}

	if err := repo.Record(ctx, trade); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// Replays are ignored.
	if err := repo.Record(ctx, trade); err != nil {
		t.Fatalf("Record(replay): %v", err)
	}

	recent, err := repo.GetRecent(ctx, 10, nil)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	found := 0
	for _, r := range recent {
		if r.ID == trade.ID {
			found++
			if r.Side != models.Buy || r.Reason != "TP Hit" {
				t.Fatalf("round trip mismatch: %+v", r)
			}
		}
	}
	if found != 1 {
		t.Fatalf("expected trade once, found %d times", found)
	}

	// GetRecent (paper only)
	paperMode := true
	paperTrades, err := repo.GetRecent(ctx, 10, &paperMode)
	if err != nil {
		t.Fatalf("GetRecent(paper): %v", err)
	}
	for _, pt := range paperTrades {
		if !pt.IsPaper {
			t.Fatalf("expected paper trade, got live trade id=%s", pt.ID)
		}
	}

	day, err := repo.GetByDay(ctx, models.TradingDay(closed), nil)
	if err != nil {
		t.Fatalf("GetByDay: %v", err)
	}
	if len(day) == 0 {
		t.Fatal("expected trades for today")
	}

	stats, err := repo.GetStats(ctx, &paperMode)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalTrades == 0 || stats.Wins == 0 {
		t.Fatalf("expected at least one win, got %+v", stats)
	}
	t.Logf("Stats(paper): total=%d wins=%d losses=%d pnl=%.4f", stats.TotalTrades, stats.Wins, stats.Losses, stats.TotalPnL)
}

// ---------- StateRepo ----------

func TestStateRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	repo := repository.NewStateRepo(pool)
	ctx := context.Background()

	if err := repo.Archive(ctx); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	got, err := repo.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive(empty): %v", err)
	}
	if got != nil {
		t.Fatalf("expected no active snapshot, got %s", got)
	}

	if err := repo.Save(ctx, []byte(`{"version":1,"runId":"a"}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, []byte(`{"version":1,"runId":"b"}`)); err != nil {
		t.Fatalf("Save(update): %v", err)
	}

	got, err = repo.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	var snap struct {
		RunID string `json:"runId"`
	}
	if err := json.Unmarshal(got, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.RunID != "b" {
		t.Fatalf("expected latest snapshot, got run %q", snap.RunID)
	}

	if err := repo.Save(ctx, []byte("not json")); err == nil {
		t.Fatal("expected error for invalid snapshot")
	}
}

// ---------- Store ----------

func TestStoreRoundTrip(t *testing.T) {
	pool := testutil.SetupPool(t)
	store := repository.NewStore(pool)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := store.RecordPrice(ctx, models.PricePoint{Symbol: "ETHUSDT", Timestamp: time.Now(), Price: 1800}); err != nil {
		t.Fatalf("RecordPrice: %v", err)
	}
	if _, err := store.RecentTrades(ctx, 5); err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
}
