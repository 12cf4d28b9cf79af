package bot

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/indicators"
	"github.com/kjannette/microtrend-backend/internal/metrics"
	"github.com/kjannette/microtrend-backend/internal/models"
	"github.com/kjannette/microtrend-backend/internal/strategy"
)

// --- scalping ---

func (e *Engine) runScalping(ctx context.Context, r *CycleReport) error {
	sym := e.cfg.Symbol

	d := e.tracker.CanTrade(models.ModeScalping)
	if !d.Allowed {
		e.reject(r, d.Reason, d.Gate)
		return nil
	}

	if e.cfg.FearGreedEnabled && e.sentiment != nil {
		reading, err := e.sentiment.Index(ctx)
		if err != nil {
			e.log.Warn("fear & greed unavailable, filter skipped", zap.Error(err))
		} else {
			r.FearGreed = &reading
			if ok, reason := strategy.SentimentAllows(reading.Value); !ok {
				e.reject(r, reason, gateSentiment)
				return nil
			}
		}
	}

	candles, err := e.market.Candles(ctx, sym, e.cfg.CandleInterval, e.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("%w: candles %s: %w", ErrMarketData, sym, err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("%w: no candles for %s", ErrMarketData, sym)
	}

	closes := indicators.Closes(candles)
	price := closes[len(closes)-1]
	r.Price = price
	r.Trend = strategy.ClassifyTrend(candles)
	r.RSI = indicators.RSI(closes, indicators.DefaultRSIPeriod)
	r.ATR = indicators.ATR(candles, indicators.DefaultATRPeriod)
	e.observePrice(sym, price)
	metrics.Indicator.WithLabelValues(sym, "rsi").Set(r.RSI)
	metrics.Indicator.WithLabelValues(sym, "atr").Set(r.ATR)

	if r.Trend == models.TrendNeutral {
		r.Outcome = OutcomeNoSignal
		r.Reason = "no trend"
		return nil
	}
	if !strategy.ConfirmsPullback(candles, r.Trend, e.bands()) {
		e.reject(r, fmt.Sprintf("waiting for pullback (RSI %.1f)", r.RSI), "")
		return nil
	}

	balance, ok := e.balance(ctx)
	if !ok {
		return fmt.Errorf("%w: account balance unavailable", ErrMarketData)
	}

	plan, err := strategy.PlanScalp(r.Trend, price, r.ATR, strategy.ScalpParams{
		Balance:           balance,
		RiskPerTrade:      e.cfg.RiskPerTrade,
		StopATRMultiple:   e.cfg.StopATRMultiplier,
		TargetATRMultiple: e.cfg.TargetATRMultiplier,
		PricePrecision:    int32(e.cfg.PricePrecision),
		QtyPrecision:      int32(e.cfg.QuantityPrecision),
	})
	if err != nil {
		e.reject(r, err.Error(), "")
		return nil
	}
	r.Plan = &plan

	liq, dist := indicators.LiquidationPrice(price, e.cfg.Leverage, plan.Side)
	r.Liquidation = &Liquidation{Price: liq, DistancePct: dist}

	exec := e.exec()
	pos, err := exec.Open(ctx, models.Order{
		Symbol:     sym,
		Side:       plan.Side,
		Quantity:   plan.Quantity,
		Price:      price,
		StopLoss:   plan.StopLoss,
		TakeProfit: plan.TakeProfit,
		Source:     models.ModeScalping,
		Reason:     fmt.Sprintf("%s pullback, RSI %.1f", r.Trend, r.RSI),
	})
	if errors.Is(err, ErrPositionExists) {
		e.reject(r, "position already open", "")
		return nil
	}
	if err != nil {
		r.Outcome = OutcomeOrderFailed
		r.Reason = err.Error()
		metrics.OrdersFailed.WithLabelValues(string(models.ModeScalping), exec.Venue()).Inc()
		e.log.Error("order failed", zap.String("symbol", sym), zap.String("side", string(plan.Side)), zap.Error(err))
		e.note("Order failed: %s %s %.3f: %v", plan.Side, sym, plan.Quantity, err)
		return nil
	}

	metrics.OrdersSubmitted.WithLabelValues(string(models.ModeScalping), string(plan.Side), exec.Venue()).Inc()
	e.tracker.RecordOpen()
	if e.cfg.TrailingEnabled {
		e.trailing.Activate(sym, price, plan.Side, e.cfg.TrailingActivationPct, e.cfg.TrailingCallbackPct)
	}

	r.Outcome = OutcomeOrderPlaced
	r.Reason = fmt.Sprintf("%s %s", r.Trend, plan.Side)
	e.log.Info("position opened",
		zap.String("symbol", sym),
		zap.String("side", string(plan.Side)),
		zap.Float64("entry", price),
		zap.Float64("qty", plan.Quantity),
		zap.Float64("sl", plan.StopLoss),
		zap.Float64("tp", plan.TakeProfit),
		zap.Float64("liquidation", liq),
	)
	e.note("%s %s @ $%.2f | qty %g | SL $%.2f | TP $%.2f | liq $%.2f (%.1f%% away)",
		r.Trend, sym, price, plan.Quantity, plan.StopLoss, plan.TakeProfit, liq, dist)
	e.emit("trade_opened", pos)
	return nil
}

// --- grid ---

func (e *Engine) runGrid(ctx context.Context, r *CycleReport) error {
	sym := e.cfg.Symbol
	price, err := e.market.MarkPrice(ctx, sym)
	if err != nil {
		return fmt.Errorf("%w: mark price %s: %w", ErrMarketData, sym, err)
	}
	r.Price = price
	e.observePrice(sym, price)

	if len(e.grid) == 0 {
		grid, err := strategy.CalculateGridLevels(strategy.GridParams{
			CurrentPrice:   price,
			Upper:          e.cfg.GridUpper,
			Lower:          e.cfg.GridLower,
			Count:          e.cfg.GridCount,
			PricePrecision: int32(e.cfg.PricePrecision),
		})
		if err != nil {
			e.reject(r, fmt.Sprintf("grid setup: %v", err), "")
			return nil
		}
		e.grid = grid
		r.Outcome = OutcomeGridInitialized
		r.Reason = fmt.Sprintf("%d levels", len(grid))
		e.log.Info("grid initialized",
			zap.String("symbol", sym),
			zap.Int("levels", len(grid)),
			zap.Float64("lower", grid[0].Price),
			zap.Float64("upper", grid[len(grid)-1].Price),
		)
		e.log.Debug(strategy.FormatGridDisplay(grid, price, sym))
		e.note("Grid initialized: %d levels from $%.2f to $%.2f", len(grid), grid[0].Price, grid[len(grid)-1].Price)
		return nil
	}

	// Grid is never gated, but the call keeps the daily counters rolling.
	e.tracker.CanTrade(models.ModeGrid)

	hits := strategy.TriggerLevels(price, e.grid, e.now().UTC())
	if len(hits) == 0 {
		r.Outcome = OutcomeIdle
		r.Reason = "no level crossed"
		if strategy.IsPriceOutsideGrid(price, e.grid) {
			r.Reason = "price outside grid range"
		}
		return nil
	}

	// Paper fills take the exact allocation; live orders must be whole lots.
	qty := strategy.GridAllocation(e.cfg.GridInvestment, e.cfg.GridCount, e.cfg.Leverage, price)
	if !e.cfg.PaperTrading {
		qty = strategy.GridOrderQuantity(e.cfg.GridInvestment, e.cfg.GridCount, e.cfg.Leverage, price, int32(e.cfg.QuantityPrecision))
	}
	if qty <= 0 {
		for _, i := range hits {
			strategy.UnfillLevel(e.grid, i)
		}
		e.undersized(r, models.ModeGrid, fmt.Sprintf("grid order size rounds to zero at $%.2f (GRID_INVESTMENT %.2f over %d levels)",
			price, e.cfg.GridInvestment, e.cfg.GridCount))
		return nil
	}
	delete(e.sizeWarned, models.ModeGrid)

	exec := e.exec()
	placed := 0
	for _, i := range hits {
		lvl := e.grid[i]
		side := lvl.OrderSide()
		fill := GridFill{Index: i, Side: side, Level: lvl.Price, Quantity: qty}

		t, err := exec.Fill(ctx, models.Order{
			Symbol:   sym,
			Side:     side,
			Quantity: qty,
			Price:    price,
			Source:   models.ModeGrid,
			Reason:   fmt.Sprintf("grid level %d", i),
		})
		if err != nil {
			strategy.UnfillLevel(e.grid, i)
			fill.Error = err.Error()
			metrics.OrdersFailed.WithLabelValues(string(models.ModeGrid), exec.Venue()).Inc()
			e.log.Error("grid order failed", zap.Int("level", i), zap.Error(err))
			r.GridFills = append(r.GridFills, fill)
			continue
		}

		strategy.FlipLevel(e.grid, i)
		placed++
		metrics.OrdersSubmitted.WithLabelValues(string(models.ModeGrid), string(side), exec.Venue()).Inc()
		r.GridFills = append(r.GridFills, fill)
		e.note("Grid %s level %d @ $%.2f | qty %g", side, i, lvl.Price, qty)
		if t != nil {
			e.closed(r, *t)
		}
	}

	if placed == 0 {
		r.Outcome = OutcomeOrderFailed
		r.Reason = fmt.Sprintf("%d grid orders failed", len(hits))
		e.note("Grid orders failed on %s (%d levels)", sym, len(hits))
		return nil
	}
	r.Outcome = OutcomeGridFilled
	r.Reason = fmt.Sprintf("%d of %d levels filled", placed, len(hits))
	return nil
}

// --- dca ---

func (e *Engine) runDCA(ctx context.Context, r *CycleReport) error {
	sym := e.cfg.Symbol
	price, err := e.market.MarkPrice(ctx, sym)
	if err != nil {
		return fmt.Errorf("%w: mark price %s: %w", ErrMarketData, sym, err)
	}
	r.Price = price
	e.observePrice(sym, price)

	now := e.now().UTC()
	due, reason := e.dca.ShouldBuy(price, now)
	if !due {
		r.Outcome = OutcomeIdle
		r.Reason = reason
		return nil
	}

	qty := e.dca.Quantity(price)
	if !e.cfg.PaperTrading {
		qty = e.dca.LotQuantity(price)
	}
	if qty <= 0 {
		e.undersized(r, models.ModeDCA, fmt.Sprintf("DCA amount $%.2f is below one lot at $%.2f", e.cfg.DCAAmount, price))
		return nil
	}
	delete(e.sizeWarned, models.ModeDCA)

	exec := e.exec()
	t, err := exec.Fill(ctx, models.Order{
		Symbol:   sym,
		Side:     models.Buy,
		Quantity: qty,
		Price:    price,
		Source:   models.ModeDCA,
		Reason:   reason,
	})
	if err != nil {
		r.Outcome = OutcomeOrderFailed
		r.Reason = err.Error()
		metrics.OrdersFailed.WithLabelValues(string(models.ModeDCA), exec.Venue()).Inc()
		e.log.Error("dca order failed", zap.String("symbol", sym), zap.Error(err))
		e.note("DCA buy failed on %s: %v", sym, err)
		return nil
	}
	if t != nil {
		e.closed(r, *t)
	}

	p := e.dca.Record(price, qty, now)
	st := e.dca.State()
	metrics.OrdersSubmitted.WithLabelValues(string(models.ModeDCA), string(models.Buy), exec.Venue()).Inc()
	r.Outcome = OutcomeOrderPlaced
	r.Reason = reason
	e.note("DCA buy %s %g @ $%.2f ($%.2f) | avg $%.2f over %d buys",
		sym, p.Quantity, p.Price, p.AmountUSD, st.AveragePrice, len(st.Purchases))
	return nil
}

// --- arbitrage ---

// runArbitrage only observes the funding rate; it never places orders.
func (e *Engine) runArbitrage(ctx context.Context, r *CycleReport) error {
	sym := e.cfg.Symbol
	rate, err := e.market.FundingRate(ctx, sym)
	if err != nil {
		return fmt.Errorf("%w: funding rate %s: %w", ErrMarketData, sym, err)
	}
	r.FundingRate = &rate
	metrics.Indicator.WithLabelValues(sym, "funding_rate").Set(rate)

	r.Outcome = OutcomeObserved
	r.Reason = fmt.Sprintf("funding rate %.4f%%", rate*100)
	if e.cfg.MaxFundingRate > 0 && math.Abs(rate) >= e.cfg.MaxFundingRate {
		r.Reason = fmt.Sprintf("funding rate %.4f%% at or above %.4f%%", rate*100, e.cfg.MaxFundingRate*100)
		e.note("Funding opportunity on %s: %s", sym, r.Reason)
	}
	return nil
}

// --- position check ---

// checkPositions runs after every mode: bracket exits first, then the
// trailing stop.
func (e *Engine) checkPositions(ctx context.Context, r *CycleReport) error {
	sym := e.cfg.Symbol
	exec := e.exec()
	if _, ok := exec.Position(sym); !ok {
		return nil
	}

	// Exits are checked against the mark price in every mode. Grid and DCA
	// already read it this cycle.
	price := r.Price
	markRead := (r.Mode == models.ModeGrid || r.Mode == models.ModeDCA) && price > 0
	if !markRead {
		p, err := e.market.MarkPrice(ctx, sym)
		if err != nil {
			return fmt.Errorf("%w: mark price %s: %w", ErrMarketData, sym, err)
		}
		price = p
		e.observePrice(sym, price)
	}

	t, err := exec.Check(ctx, sym, price)
	if err != nil {
		e.log.Warn("position check failed", zap.String("symbol", sym), zap.Error(err))
		return nil
	}
	if t == nil {
		hit, stop := e.trailing.Update(sym, price)
		if !hit {
			return nil
		}
		e.log.Info("trailing stop hit", zap.String("symbol", sym), zap.Float64("stop", stop), zap.Float64("price", price))
		t, err = exec.Close(ctx, sym, price, "Trailing Stop")
		if err != nil {
			e.log.Error("trailing close failed", zap.String("symbol", sym), zap.Error(err))
			e.note("Trailing stop close failed on %s: %v", sym, err)
			return nil
		}
	}
	e.closed(r, *t)
	return nil
}

// closed books a realized trade. Only scalping closes feed the daily risk
// counters; grid and DCA fills are rebalancing, not entries.
func (e *Engine) closed(r *CycleReport, t models.ClosedTrade) {
	if _, open := e.exec().Position(t.Symbol); !open {
		e.trailing.Remove(t.Symbol)
	}
	if t.Source == models.ModeScalping {
		e.tracker.RecordClose(t.PnL)
	}
	t.IsPaper = e.cfg.PaperTrading

	r.Closed = append(r.Closed, t)
	e.fx.trades = append(e.fx.trades, t)
	metrics.PositionsClosed.WithLabelValues(t.Reason).Inc()

	e.log.Info("position closed",
		zap.String("id", t.ID),
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.Float64("entry", t.EntryPrice),
		zap.Float64("exit", t.ExitPrice),
		zap.Float64("pnl", t.PnL),
		zap.String("reason", t.Reason),
	)
	e.note("CLOSED %s %s @ $%.2f | P&L %+.4f USDT | %s", t.Side, t.Symbol, t.ExitPrice, t.PnL, t.Reason)
	e.emit("trade_closed", t)
}
