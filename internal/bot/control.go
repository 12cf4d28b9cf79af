package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/indicators"
	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/risk"
	"github.com/kjannette/microtrend-backend/internal/strategy"
)

var ErrOpenPositions = errors.New("close open positions before switching venue")

// --- snapshot ---

const snapshotVersion = 1

// Snapshot is the persisted engine state. Runtime settings are not part
// of it; configuration wins on restart.
type Snapshot struct {
	Version       int                     `json:"version"`
	RunID         string                  `json:"runId"`
	SavedAt       time.Time               `json:"savedAt"`
	Tracker       risk.State              `json:"tracker"`
	Ledger        LedgerState             `json:"ledger"`
	LivePositions []models.Position       `json:"livePositions"`
	Grid          []strategy.GridLevel    `json:"grid"`
	GridSymbol    string                  `json:"gridSymbol"`
	DCA           strategy.DCAState       `json:"dca"`
	Trailing      []strategy.TrailingStop `json:"trailing"`
	Rejections    []Rejection             `json:"rejections"`
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Version:       snapshotVersion,
		RunID:         e.runID,
		SavedAt:       e.now().UTC(),
		Tracker:       e.tracker.State(),
		Ledger:        e.ledger.State(),
		LivePositions: e.live.Positions(),
		Grid:          append([]strategy.GridLevel(nil), e.grid...),
		GridSymbol:    e.cfg.Symbol,
		DCA:           e.dca.State(),
		Trailing:      e.trailing.All(),
		Rejections:    append([]Rejection(nil), e.rejections...),
	}
}

func (e *Engine) Restore(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoreLocked(s)
}

func (e *Engine) restoreLocked(s Snapshot) {
	e.tracker.Restore(s.Tracker)
	e.ledger.Restore(s.Ledger)
	e.live.restore(s.LivePositions)
	if s.GridSymbol == "" || s.GridSymbol == e.cfg.Symbol {
		e.grid = append([]strategy.GridLevel(nil), s.Grid...)
		e.dca.Restore(s.DCA)
	}
	e.trailing.Restore(s.Trailing)
	e.rejections = append([]Rejection(nil), s.Rejections...)
}

// Load restores the last snapshot from the store, if any.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	data, err := e.store.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if len(data) == 0 {
		e.log.Info("no saved state, starting fresh")
		return nil
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	e.Restore(s)

	e.log.Info("state restored",
		zap.String("fromRun", s.RunID),
		zap.Time("savedAt", s.SavedAt),
		zap.Float64("paperBalance", s.Ledger.Balance),
		zap.Int("gridLevels", len(s.Grid)),
		zap.Int("tradesToday", s.Tracker.TradesToday),
	)
	return nil
}

// --- status ---

type PaperStatus struct {
	StartingBalance float64           `json:"startingBalance"`
	Balance         float64           `json:"balance"`
	TotalPnL        float64           `json:"totalPnl"`
	Stats           models.TradeStats `json:"stats"`
}

type Status struct {
	RunID           string                  `json:"runId"`
	Mode            models.Mode             `json:"mode"`
	Symbol          string                  `json:"symbol"`
	Venue           string                  `json:"venue"`
	PaperTrading    bool                    `json:"paperTrading"`
	Leverage        int                     `json:"leverage"`
	RiskPerTrade    float64                 `json:"riskPerTrade"`
	TrailingEnabled bool                    `json:"trailingEnabled"`
	Risk            risk.State              `json:"risk"`
	Limits          risk.Limits             `json:"limits"`
	Paper           PaperStatus             `json:"paper"`
	Positions       []models.Position       `json:"positions"`
	Trailing        []strategy.TrailingStop `json:"trailing"`
	DCA             strategy.DCAState       `json:"dca"`
	LastPrice       float64                 `json:"lastPrice"`
	LastCycle       *CycleReport            `json:"lastCycle,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.ledger.State()
	return Status{
		RunID:           e.runID,
		Mode:            e.cfg.Mode,
		Symbol:          e.cfg.Symbol,
		Venue:           e.exec().Venue(),
		PaperTrading:    e.cfg.PaperTrading,
		Leverage:        e.cfg.Leverage,
		RiskPerTrade:    e.cfg.RiskPerTrade,
		TrailingEnabled: e.cfg.TrailingEnabled,
		Risk:            e.tracker.State(),
		Limits:          e.tracker.Limits(),
		Paper: PaperStatus{
			StartingBalance: st.StartingBalance,
			Balance:         st.Balance,
			TotalPnL:        st.TotalPnL,
			Stats:           e.ledger.Stats(),
		},
		Positions: e.exec().Positions(),
		Trailing:  e.trailing.All(),
		DCA:       e.dca.State(),
		LastPrice: e.lastPrice,
		LastCycle: e.last,
	}
}

// Rejections returns the most recent refusal reasons, oldest first.
func (e *Engine) Rejections() []Rejection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Rejection(nil), e.rejections...)
}

// RecentTrades reads closed trades from the store, falling back to the
// paper ledger when no store is configured.
func (e *Engine) RecentTrades(ctx context.Context, limit int) ([]models.ClosedTrade, error) {
	if e.store != nil {
		return e.store.RecentTrades(ctx, limit)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Trades(limit), nil
}

// Ping checks the store, if one is configured.
func (e *Engine) Ping(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	return e.store.Ping(ctx)
}

// --- grid view ---

type GridView struct {
	Symbol       string               `json:"symbol"`
	Price        float64              `json:"price"`
	Levels       []strategy.GridLevel `json:"levels"`
	Stats        strategy.GridStats   `json:"stats"`
	OutsideRange bool                 `json:"outsideRange"`
	Display      string               `json:"display"`
}

func (e *Engine) Grid() GridView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return GridView{
		Symbol:       e.cfg.Symbol,
		Price:        e.lastPrice,
		Levels:       append([]strategy.GridLevel(nil), e.grid...),
		Stats:        strategy.GetGridStats(e.grid),
		OutsideRange: len(e.grid) > 0 && strategy.IsPriceOutsideGrid(e.lastPrice, e.grid),
		Display:      strategy.FormatGridDisplay(e.grid, e.lastPrice, e.cfg.Symbol),
	}
}

// --- settings ---

// Settings is a partial update; nil fields are left unchanged.
type Settings struct {
	Symbol          *string  `json:"symbol,omitempty"`
	Mode            *string  `json:"mode,omitempty"`
	Leverage        *int     `json:"leverage,omitempty"`
	RiskPerTrade    *float64 `json:"riskPerTrade,omitempty"`
	PaperTrading    *bool    `json:"paperTrading,omitempty"`
	TrailingEnabled *bool    `json:"trailingEnabled,omitempty"`
}

func (e *Engine) UpdateSettings(s Settings) (Status, error) {
	e.mu.Lock()

	var errs []string
	if s.Symbol != nil && strings.TrimSpace(*s.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}
	if s.Mode != nil && !models.ValidMode(*s.Mode) {
		errs = append(errs, fmt.Sprintf("unknown mode %q", *s.Mode))
	}
	if s.Leverage != nil && (*s.Leverage < 1 || *s.Leverage > 125) {
		errs = append(errs, fmt.Sprintf("leverage must be 1..125, got %d", *s.Leverage))
	}
	if s.RiskPerTrade != nil && (*s.RiskPerTrade <= 0 || *s.RiskPerTrade > 0.1) {
		errs = append(errs, fmt.Sprintf("riskPerTrade must be in (0, 0.1], got %g", *s.RiskPerTrade))
	}
	if len(errs) > 0 {
		e.mu.Unlock()
		return Status{}, fmt.Errorf("invalid settings: %s", strings.Join(errs, "; "))
	}
	if s.PaperTrading != nil && *s.PaperTrading != e.cfg.PaperTrading {
		if !*s.PaperTrading && e.trader == nil {
			e.mu.Unlock()
			return Status{}, ErrNoTrader
		}
		if len(e.exec().Positions()) > 0 {
			e.mu.Unlock()
			return Status{}, ErrOpenPositions
		}
	}

	if s.Symbol != nil {
		sym := strings.ToUpper(strings.TrimSpace(*s.Symbol))
		if sym != e.cfg.Symbol {
			e.cfg.Symbol = sym
			e.grid = nil
			e.dca.Restore(strategy.DCAState{})
		}
	}
	if s.Mode != nil {
		e.setModeLocked(models.Mode(*s.Mode))
	}
	if s.Leverage != nil {
		e.cfg.Leverage = *s.Leverage
		e.live.leverage = *s.Leverage
	}
	if s.RiskPerTrade != nil {
		e.cfg.RiskPerTrade = *s.RiskPerTrade
	}
	if s.PaperTrading != nil && *s.PaperTrading != e.cfg.PaperTrading {
		e.cfg.PaperTrading = *s.PaperTrading
		e.tracker.SetStartingBalance(0)
	}
	if s.TrailingEnabled != nil {
		e.cfg.TrailingEnabled = *s.TrailingEnabled
		if !e.cfg.TrailingEnabled {
			e.trailing.Restore(nil)
		}
	}

	clear(e.sizeWarned)

	e.log.Info("settings updated",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("mode", string(e.cfg.Mode)),
		zap.Int("leverage", e.cfg.Leverage),
		zap.Bool("paper", e.cfg.PaperTrading),
		zap.Bool("trailing", e.cfg.TrailingEnabled),
	)
	e.emit("settings", s)
	fx := e.commit()
	e.mu.Unlock()

	e.apply(context.Background(), fx)
	return e.Status(), nil
}

// SetMode switches the strategy. Entering grid mode discards old levels so
// the next cycle builds a fresh grid around the current price.
func (e *Engine) SetMode(mode string) error {
	if !models.ValidMode(mode) {
		return fmt.Errorf("unknown mode %q", mode)
	}
	e.mu.Lock()
	e.setModeLocked(models.Mode(mode))
	fx := e.commit()
	e.mu.Unlock()

	e.apply(context.Background(), fx)
	return nil
}

func (e *Engine) setModeLocked(m models.Mode) {
	if m == models.ModeGrid {
		e.grid = nil
	}
	if m == e.cfg.Mode {
		return
	}
	prev := e.cfg.Mode
	e.cfg.Mode = m
	e.log.Info("mode changed", zap.String("from", string(prev)), zap.String("to", string(m)))
	e.note("Mode changed: %s -> %s", prev, m)
	e.emit("mode", m)
}

// ResetPaper empties the paper ledger back to the configured balance.
func (e *Engine) ResetPaper() PaperStatus {
	e.mu.Lock()
	bal := e.cfg.PaperBalance
	for _, p := range e.ledger.Positions() {
		e.trailing.Remove(p.Symbol)
	}
	e.ledger.Reset(bal)
	if e.cfg.PaperTrading {
		e.tracker.SetStartingBalance(bal)
	}
	e.updateGauges()
	e.log.Info("paper ledger reset", zap.Float64("balance", bal))
	e.note("Paper ledger reset to $%.2f", bal)
	e.emit("paper_reset", bal)
	out := PaperStatus{StartingBalance: bal, Balance: bal, Stats: e.ledger.Stats()}
	fx := e.commit()
	e.mu.Unlock()

	e.apply(context.Background(), fx)
	return out
}

// --- market analysis ---

type MarketAnalysis struct {
	Symbol     string       `json:"symbol"`
	Price      float64      `json:"price"`
	Trend      models.Trend `json:"trend"`
	EMAFast    float64      `json:"emaFast"`
	EMASlow    float64      `json:"emaSlow"`
	RSI        float64      `json:"rsi"`
	ATR        float64      `json:"atr"`
	ATRPct     float64      `json:"atrPct"`
	FundingPct float64      `json:"fundingPct"`
	Pullback   bool         `json:"pullback"`
	Score      float64      `json:"score"`
}

// Analyze reads the market for symbol without touching engine state.
func (e *Engine) Analyze(ctx context.Context, symbol string) (MarketAnalysis, error) {
	e.mu.Lock()
	interval, limit, bands := e.cfg.CandleInterval, e.cfg.CandleLimit, e.bands()
	e.mu.Unlock()
	return e.analyze(ctx, strings.ToUpper(symbol), interval, limit, bands)
}

func (e *Engine) analyze(ctx context.Context, symbol, interval string, limit int, bands strategy.Bands) (MarketAnalysis, error) {
	candles, err := e.market.Candles(ctx, symbol, interval, limit)
	if err != nil {
		return MarketAnalysis{}, fmt.Errorf("%w: candles %s: %w", ErrMarketData, symbol, err)
	}
	if len(candles) == 0 {
		return MarketAnalysis{}, fmt.Errorf("%w: no candles for %s", ErrMarketData, symbol)
	}

	closes := indicators.Closes(candles)
	a := MarketAnalysis{
		Symbol:  symbol,
		Price:   closes[len(closes)-1],
		Trend:   strategy.ClassifyTrend(candles),
		EMAFast: indicators.EMA(closes, strategy.FastEMAPeriod),
		EMASlow: indicators.EMA(closes, strategy.SlowEMAPeriod),
		RSI:     indicators.RSI(closes, indicators.DefaultRSIPeriod),
		ATR:     indicators.ATR(candles, indicators.DefaultATRPeriod),
	}
	if a.Price > 0 {
		a.ATRPct = a.ATR / a.Price * 100
	}
	a.Pullback = strategy.InBand(a.RSI, a.Trend, bands)
	a.Score = strategy.SignalScore(a.Trend, a.RSI, bands)

	if rate, err := e.market.FundingRate(ctx, symbol); err == nil {
		a.FundingPct = rate * 100
	} else {
		e.log.Debug("funding rate unavailable", zap.String("symbol", symbol), zap.Error(err))
	}
	return a, nil
}

// Scan analyzes the configured scan list, best signal first. Symbols that
// fail are logged and left out.
func (e *Engine) Scan(ctx context.Context) []MarketAnalysis {
	e.mu.Lock()
	symbols := append([]string(nil), e.cfg.ScanSymbols...)
	interval, limit, bands := e.cfg.CandleInterval, e.cfg.CandleLimit, e.bands()
	e.mu.Unlock()

	out := make([]MarketAnalysis, 0, len(symbols))
	for _, sym := range symbols {
		a, err := e.analyze(ctx, sym, interval, limit, bands)
		if err != nil {
			e.log.Warn("scan skipped symbol", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Subscribe returns a channel of engine events and a func to stop them.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.hub.subscribe()
}
