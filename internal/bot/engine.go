package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/config"
	"github.com/kjannette/microtrend-backend/internal/external"
	"github.com/kjannette/microtrend-backend/internal/metrics"
	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/risk"
	"github.com/kjannette/microtrend-backend/internal/strategy"
)

var ErrMarketData = errors.New("market data unavailable")

type Outcome string

const (
	OutcomeOrderPlaced     Outcome = "order_placed"
	OutcomeOrderFailed     Outcome = "order_failed"
	OutcomeRejected        Outcome = "rejected"
	OutcomeNoSignal        Outcome = "no_signal"
	OutcomeGridInitialized Outcome = "grid_initialized"
	OutcomeGridFilled      Outcome = "grid_filled"
	OutcomeIdle            Outcome = "idle"
	OutcomeObserved        Outcome = "observed"
)

const (
	maxRejections = 10
	gateSentiment = "sentiment"
)

type Liquidation struct {
	Price       float64 `json:"price"`
	DistancePct float64 `json:"distancePct"`
}

type GridFill struct {
	Index    int         `json:"index"`
	Side     models.Side `json:"side"`
	Level    float64     `json:"level"`
	Quantity float64     `json:"quantity"`
	Error    string      `json:"error,omitempty"`
}

// CycleReport describes what one RunCycle saw and did.
type CycleReport struct {
	CycleID     string                     `json:"cycleId"`
	Mode        models.Mode                `json:"mode"`
	Symbol      string                     `json:"symbol"`
	Venue       string                     `json:"venue"`
	Outcome     Outcome                    `json:"outcome"`
	Reason      string                     `json:"reason,omitempty"`
	Price       float64                    `json:"price,omitempty"`
	Trend       models.Trend               `json:"trend,omitempty"`
	RSI         float64                    `json:"rsi,omitempty"`
	ATR         float64                    `json:"atr,omitempty"`
	Plan        *strategy.ScalpPlan        `json:"plan,omitempty"`
	Liquidation *Liquidation               `json:"liquidation,omitempty"`
	FearGreed   *external.FearGreedReading `json:"fearGreed,omitempty"`
	FundingRate *float64                   `json:"fundingRate,omitempty"`
	GridFills   []GridFill                 `json:"gridFills,omitempty"`
	Closed      []models.ClosedTrade       `json:"closed,omitempty"`
	StartedAt   time.Time                  `json:"startedAt"`
	DurationMs  int64                      `json:"durationMs"`
}

type Rejection struct {
	Time   time.Time   `json:"time"`
	Mode   models.Mode `json:"mode"`
	Symbol string      `json:"symbol"`
	Reason string      `json:"reason"`
	Gate   string      `json:"gate,omitempty"`
}

type Deps struct {
	Market    MarketData
	Trader    LiveTrader // nil disables live trading
	Sentiment Sentiment  // nil disables the Fear & Greed filter
	Notifier  Notifier
	Store     Store // nil keeps state in memory only
	Logger    *zap.Logger
	Now       func() time.Time
}

// effects are side effects gathered under the lock and carried out after
// it is released, so slow notification or storage calls never block
// readers of engine state.
type effects struct {
	notes    []string
	events   []Event
	trades   []models.ClosedTrade
	prices   []models.PricePoint
	snapshot []byte
}

// Engine runs one strategy cycle at a time over explicitly owned state.
// All exported methods are safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	cfg       config.Config
	market    MarketData
	trader    LiveTrader
	sentiment Sentiment
	notify    Notifier
	store     Store
	log       *zap.Logger
	now       func() time.Time
	runID     string

	tracker  *risk.Tracker
	ledger   *PaperLedger
	paper    *paperExecutor
	live     *liveExecutor
	grid     []strategy.GridLevel
	dca      *strategy.DCA
	trailing *strategy.TrailingStops

	rejections []Rejection
	// modes whose lot-rounded order size already reported as zero
	sizeWarned map[models.Mode]bool
	last       *CycleReport
	lastPrice  float64
	fx         effects

	hub *hub
}

func NewEngine(cfg config.Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger.Named("engine")
	runID := uuid.NewString()

	e := &Engine{
		cfg:       cfg,
		market:    deps.Market,
		trader:    deps.Trader,
		sentiment: deps.Sentiment,
		notify:    deps.Notifier,
		store:     deps.Store,
		log:       log,
		now:       deps.Now,
		runID:     runID,
		tracker:   risk.NewTracker(limitsFrom(&cfg), deps.Now),
		ledger:    NewPaperLedger(cfg.PaperBalance, runID, deps.Now),
		dca:       strategy.NewDCA(dcaParamsFrom(&cfg)),
		trailing:  strategy.NewTrailingStops(),
		hub:       newHub(),

		sizeWarned: make(map[models.Mode]bool),
	}
	e.paper = &paperExecutor{ledger: e.ledger}
	e.live = newLiveExecutor(deps.Trader, cfg.Leverage, runID, log, deps.Now)
	if cfg.PaperTrading {
		e.tracker.SetStartingBalance(cfg.PaperBalance)
	}
	return e
}

func limitsFrom(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxTradesPerDay:      cfg.MaxTradesPerDay,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		MaxDailyDrawdownPct:  cfg.MaxDailyDrawdownPct,
	}
}

func dcaParamsFrom(cfg *config.Config) strategy.DCAParams {
	return strategy.DCAParams{
		Interval:     cfg.DCAInterval(),
		AmountUSD:    cfg.DCAAmount,
		DropPct:      cfg.DCADropPct,
		QtyPrecision: int32(cfg.QuantityPrecision),
	}
}

func (e *Engine) RunID() string { return e.runID }

func (e *Engine) exec() Executor {
	if e.cfg.PaperTrading {
		return e.paper
	}
	return e.live
}

func (e *Engine) bands() strategy.Bands {
	return strategy.Bands{
		LongMin:  e.cfg.RSILongMin,
		LongMax:  e.cfg.RSILongMax,
		ShortMin: e.cfg.RSIShortMin,
		ShortMax: e.cfg.RSIShortMax,
	}
}

// RunCycle executes exactly one strategy mode, then checks the open
// position on the configured symbol. Unavailable market data aborts the
// cycle with an error wrapping ErrMarketData.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	r, fx, err := e.cycle(ctx)
	e.apply(ctx, fx)
	return r, err
}

// cycle holds mu for the whole strategy pass. A panic in a mode still
// releases the lock and drops the half-built effects.
func (e *Engine) cycle(ctx context.Context) (*CycleReport, effects, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			e.fx = effects{}
			panic(rec)
		}
	}()

	start := e.now()
	r := &CycleReport{
		CycleID:   uuid.NewString(),
		Mode:      e.cfg.Mode,
		Symbol:    e.cfg.Symbol,
		Venue:     e.exec().Venue(),
		StartedAt: start.UTC(),
	}

	e.rollDay(ctx)

	var err error
	switch e.cfg.Mode {
	case models.ModeGrid:
		err = e.runGrid(ctx, r)
	case models.ModeDCA:
		err = e.runDCA(ctx, r)
	case models.ModeArbitrage:
		err = e.runArbitrage(ctx, r)
	default:
		err = e.runScalping(ctx, r)
	}
	if err == nil {
		err = e.checkPositions(ctx, r)
	}

	elapsed := e.now().Sub(start)
	r.DurationMs = elapsed.Milliseconds()
	outcome := string(r.Outcome)
	if err != nil {
		outcome = "data_unavailable"
		e.log.Warn("cycle aborted", zap.String("mode", string(r.Mode)), zap.String("symbol", r.Symbol), zap.Error(err))
	} else {
		e.log.Info("cycle complete",
			zap.String("mode", string(r.Mode)),
			zap.String("symbol", r.Symbol),
			zap.String("outcome", outcome),
			zap.String("reason", r.Reason),
			zap.Float64("price", r.Price),
			zap.Int64("ms", r.DurationMs),
		)
	}
	metrics.CyclesTotal.WithLabelValues(string(r.Mode), outcome).Inc()
	metrics.CycleDuration.WithLabelValues(string(r.Mode)).Observe(elapsed.Seconds())
	e.updateGauges()

	if err == nil {
		e.last = r
		e.emit("cycle", r)
	}
	return r, e.commit(), err
}

// rollDay resets the daily counters at the UTC date boundary and takes a
// fresh starting balance for the drawdown limit.
func (e *Engine) rollDay(ctx context.Context) {
	if !e.tracker.ResetIfNewDay() && e.tracker.State().StartingBalance > 0 {
		return
	}
	if bal, ok := e.balance(ctx); ok {
		e.tracker.SetStartingBalance(bal)
	}
}

func (e *Engine) balance(ctx context.Context) (float64, bool) {
	if e.cfg.PaperTrading {
		return e.ledger.Balance(), true
	}
	if e.trader == nil {
		return 0, false
	}
	bal, err := e.trader.Balance(ctx)
	if err != nil {
		e.log.Warn("balance fetch failed", zap.Error(err))
		return 0, false
	}
	return bal, true
}

func (e *Engine) reject(r *CycleReport, reason, gate string) {
	r.Outcome = OutcomeRejected
	r.Reason = reason
	e.rejections = append(e.rejections, Rejection{
		Time:   e.now().UTC(),
		Mode:   r.Mode,
		Symbol: r.Symbol,
		Reason: reason,
		Gate:   gate,
	})
	if len(e.rejections) > maxRejections {
		e.rejections = e.rejections[len(e.rejections)-maxRejections:]
	}
	if gate != "" {
		metrics.GateDenials.WithLabelValues(gate).Inc()
	}
}

// undersized handles an order that rounds to zero lots. The first cycle
// is rejected and notified; later cycles stay idle with the same reason
// until an order sizes again, so the rejection log is not flooded.
func (e *Engine) undersized(r *CycleReport, mode models.Mode, reason string) {
	if e.sizeWarned[mode] {
		r.Outcome = OutcomeIdle
		r.Reason = reason
		return
	}
	e.sizeWarned[mode] = true
	e.reject(r, reason, "")
	e.log.Warn("order size below one lot", zap.String("mode", string(mode)), zap.String("reason", reason))
	e.note("%s order paused on %s: %s", mode, r.Symbol, reason)
}

func (e *Engine) note(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if e.cfg.PaperTrading {
		msg = "[PAPER] " + msg
	}
	e.fx.notes = append(e.fx.notes, msg)
}

func (e *Engine) emit(kind string, data any) {
	e.fx.events = append(e.fx.events, Event{Type: kind, Time: e.now().UTC(), Data: data})
}

func (e *Engine) observePrice(symbol string, price float64) {
	e.lastPrice = price
	now := e.now().UTC()
	e.fx.prices = append(e.fx.prices, models.PricePoint{
		Symbol:     symbol,
		Timestamp:  now,
		Price:      price,
		TradingDay: models.TradingDay(now),
		Source:     "binance",
	})
}

func (e *Engine) updateGauges() {
	metrics.PositionsOpen.Set(float64(len(e.exec().Positions())))
	metrics.PaperBalance.Set(e.ledger.Balance())
	metrics.DailyPnL.Set(e.tracker.State().DailyPnL)
}

// commit snapshots state and hands back the queued effects. Caller holds mu.
func (e *Engine) commit() effects {
	if e.store != nil {
		data, err := json.Marshal(e.snapshotLocked())
		if err != nil {
			e.log.Error("marshal snapshot", zap.Error(err))
		} else {
			e.fx.snapshot = data
		}
	}
	fx := e.fx
	e.fx = effects{}
	return fx
}

func (e *Engine) apply(ctx context.Context, fx effects) {
	ctx = context.WithoutCancel(ctx)
	if e.store != nil {
		for _, t := range fx.trades {
			if err := e.store.RecordTrade(ctx, t); err != nil {
				e.log.Error("record trade", zap.String("id", t.ID), zap.Error(err))
			}
		}
		for _, p := range fx.prices {
			if err := e.store.RecordPrice(ctx, p); err != nil {
				e.log.Warn("record price", zap.Error(err))
			}
		}
		if fx.snapshot != nil {
			if err := e.store.SaveSnapshot(ctx, fx.snapshot); err != nil {
				e.log.Error("save snapshot", zap.Error(err))
			}
		}
	}
	for _, ev := range fx.events {
		e.hub.publish(ev)
	}
	for _, msg := range fx.notes {
		e.notify.Send(msg)
	}
}
