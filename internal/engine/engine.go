package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradepilot/internal/advisor"
	"tradepilot/internal/config"
	"tradepilot/internal/market"
	"tradepilot/internal/models"
	"tradepilot/internal/strategy"
	"tradepilot/internal/telemetry"
	"go.uber.org/zap"
)

// autopilotMinHistory is the minimum number of price points before the
// autopilot will consider a pair at all.
const autopilotMinHistory = 50

// Engine drives the periodic feed, autopilot and settlement passes from a
// single goroutine, so every ledger mutation the schedulers make is
// serialized by construction. Presentation commands go through the same
// ledger lock.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	feed     *market.Feed
	pipeline *advisor.Pipeline
	ledger   *Ledger
	governor *Governor
	hub      *telemetry.Hub

	startTime time.Time

	modeMu sync.RWMutex
	mode   models.Mode
}

// NewEngine creates the engine. mode seeds the active account mode from
// the persisted session.
func NewEngine(logger *zap.Logger, cfg *config.Config, feed *market.Feed, pipeline *advisor.Pipeline,
	ledger *Ledger, governor *Governor, hub *telemetry.Hub, mode models.Mode) *Engine {
	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		feed:      feed,
		pipeline:  pipeline,
		ledger:    ledger,
		governor:  governor,
		hub:       hub,
		startTime: time.Now(),
		mode:      mode,
	}
}

// Run multiplexes the three periodic tasks until the context is
// cancelled. One goroutine owns all scheduler-driven mutations.
func (e *Engine) Run(ctx context.Context) {
	feedTicker := time.NewTicker(time.Duration(e.cfg.Feed.PollInterval) * time.Second)
	autopilotTicker := time.NewTicker(time.Duration(e.cfg.Trading.AutopilotInterval) * time.Second)
	settleTicker := time.NewTicker(time.Duration(e.cfg.Trading.SettleInterval) * time.Second)
	defer feedTicker.Stop()
	defer autopilotTicker.Stop()
	defer settleTicker.Stop()

	e.logger.Info("Engine started",
		zap.Strings("pairs", e.cfg.Trading.Pairs),
		zap.String("mode", string(e.Mode())),
		zap.Bool("autopilot", e.governor.Enabled()),
	)

	// Prime the quote cache so the first scheduler passes have data.
	e.feed.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopped")
			return
		case <-feedTicker.C:
			e.feed.Poll(ctx)
		case <-autopilotTicker.C:
			e.autopilotTick()
		case <-settleTicker.C:
			e.settlementTick()
		}
	}
}

// autopilotTick attempts one autonomous entry pass. The governor gate
// runs first; a blocked tick does nothing else. Only BUY signals become
// entries.
func (e *Engine) autopilotTick() {
	mode := e.Mode()

	rc, err := e.ledger.RiskConfig()
	if err != nil {
		e.logger.Error("Autopilot pass skipped", zap.Error(err))
		return
	}
	balance, err := e.ledger.Balance(mode)
	if err != nil {
		e.logger.Error("Autopilot pass skipped", zap.Error(err))
		return
	}

	before := e.governor.Snapshot()
	if !e.governor.Gate(balance, rc.MaxDrawdownPct) {
		telemetry.AutopilotEnabled.Set(0)
		after := e.governor.Snapshot()
		if after.Alert != "" && after.Alert != before.Alert {
			e.logger.Warn("Autopilot disabled by risk governor", zap.String("alert", after.Alert))
			e.hub.Publish("alert", after)
		}
		return
	}
	telemetry.AutopilotEnabled.Set(1)

	for _, pair := range e.cfg.Trading.Pairs {
		history := e.feed.History(pair)
		if len(history) < autopilotMinHistory {
			continue
		}

		hasOpen, err := e.ledger.HasOpenTrade(pair, mode)
		if err != nil {
			e.logger.Error("Could not check open trades", zap.String("pair", pair), zap.Error(err))
			continue
		}
		if hasOpen {
			continue
		}

		sig := strategy.AnalyzeTrend(history)
		telemetry.Decisions.WithLabelValues(string(sig.Action)).Inc()
		if sig.Action != models.ActionBuy {
			continue
		}

		quote, ok := e.feed.Quote(pair)
		if !ok {
			continue
		}

		// Re-read: earlier opens in this pass have already debited it.
		balance, err = e.ledger.Balance(mode)
		if err != nil {
			e.logger.Error("Could not read balance", zap.Error(err))
			continue
		}

		size := strategy.SafeSize(balance, rc.RiskFraction, rc.MaxPosition)
		if size <= e.cfg.Trading.MinNotional {
			e.logger.Debug("Computed size below minimum notional",
				zap.String("pair", pair), zap.Float64("size", size))
			continue
		}

		trade, err := e.ledger.Open(pair, models.SideBuy, size, quote.Price, mode)
		if err != nil {
			e.logger.Error("Autopilot entry failed", zap.String("pair", pair), zap.Error(err))
			continue
		}
		e.logger.Info("Autopilot entry",
			zap.String("pair", pair),
			zap.Int("confidence", sig.Confidence),
			zap.String("reason", sig.Reason),
		)
		e.afterOpen(trade)
	}
}

// settlementTick sweeps every OPEN trade in both modes and closes the
// ones that hit their snapshotted stop-loss or take-profit thresholds.
// It runs whether or not autopilot is enabled.
func (e *Engine) settlementTick() {
	trades, err := e.ledger.OpenTrades()
	if err != nil {
		e.logger.Error("Settlement pass skipped", zap.Error(err))
		return
	}

	for _, t := range trades {
		quote, ok := e.feed.Quote(t.Pair)
		if !ok {
			continue
		}

		pnlPercent := t.PnLPercent(quote.Price)
		if pnlPercent > -t.StopLossPct && pnlPercent < t.TakeProfitPct {
			continue
		}

		settled, changed, err := e.ledger.Settle(t.ID, quote.Price)
		if err != nil {
			e.logger.Error("Settlement failed", zap.String("trade_id", t.ID), zap.Error(err))
			continue
		}
		if changed {
			e.afterSettle(settled)
		}
	}
}

// afterOpen publishes the open to metrics and the event stream.
func (e *Engine) afterOpen(trade *models.Trade) {
	telemetry.TradesOpened.WithLabelValues(string(trade.Mode), string(trade.Side)).Inc()
	e.publishBalance(trade.Mode)
	e.hub.Publish("trade_opened", trade)
}

// afterSettle publishes the settlement to metrics and the event stream.
func (e *Engine) afterSettle(trade *models.Trade) {
	result := "win"
	if trade.PnL != nil && *trade.PnL < 0 {
		result = "loss"
	}
	telemetry.TradesClosed.WithLabelValues(string(trade.Mode), result).Inc()
	e.publishBalance(trade.Mode)
	e.hub.Publish("trade_closed", trade)
}

func (e *Engine) publishBalance(mode models.Mode) {
	if balance, err := e.ledger.Balance(mode); err == nil {
		telemetry.Balance.WithLabelValues(string(mode)).Set(balance)
	}
}

// Mode returns the active account mode.
func (e *Engine) Mode() models.Mode {
	e.modeMu.RLock()
	defer e.modeMu.RUnlock()
	return e.mode
}

// SetMode switches the active account mode and persists the session.
func (e *Engine) SetMode(mode models.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown account mode %q", mode)
	}
	e.modeMu.Lock()
	e.mode = mode
	e.modeMu.Unlock()
	return e.persistSession()
}

// OpenManualTrade opens an operator-initiated trade at the latest quote.
// Manual sizes bypass the position sizer; only non-positive amounts are
// rejected.
func (e *Engine) OpenManualTrade(pair string, side models.Side, amount float64) (*models.Trade, error) {
	quote, ok := e.feed.Quote(pair)
	if !ok {
		return nil, fmt.Errorf("no quote available for pair %s", pair)
	}
	trade, err := e.ledger.Open(pair, side, amount, quote.Price, e.Mode())
	if err != nil {
		return nil, err
	}
	e.afterOpen(trade)
	return trade, nil
}

// CloseTrade settles a trade at its pair's latest quote. Closing an
// unknown or already CLOSED trade is a no-op and not an error.
func (e *Engine) CloseTrade(tradeID string) (*models.Trade, error) {
	trade, err := e.ledger.Trade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, nil
	}
	quote, ok := e.feed.Quote(trade.Pair)
	if !ok {
		return nil, fmt.Errorf("no quote available for pair %s", trade.Pair)
	}
	settled, changed, err := e.ledger.ManualClose(tradeID, quote.Price)
	if err != nil {
		return nil, err
	}
	if changed {
		e.afterSettle(settled)
	}
	return settled, nil
}

// ToggleAutopilot flips autonomous trading and persists the session.
func (e *Engine) ToggleAutopilot() bool {
	enabled := !e.governor.Enabled()
	e.governor.SetAutopilot(enabled)
	if enabled {
		telemetry.AutopilotEnabled.Set(1)
	} else {
		telemetry.AutopilotEnabled.Set(0)
	}
	if err := e.persistSession(); err != nil {
		e.logger.Error("Failed to persist session", zap.Error(err))
	}
	e.hub.Publish("autopilot", map[string]bool{"enabled": enabled})
	return enabled
}

// DismissAlert clears the active safety alert. The loss streak resets;
// cumulative PnL and the autopilot flag do not change.
func (e *Engine) DismissAlert() {
	e.governor.DismissAlert()
	e.hub.Publish("alert_dismissed", nil)
}

// UpdateRiskConfig replaces the stored risk configuration. Open trades
// stay on their snapshotted thresholds.
func (e *Engine) UpdateRiskConfig(rc models.RiskConfig) (models.RiskConfig, error) {
	if rc.StopLossPct <= 0 || rc.TakeProfitPct <= 0 || rc.MaxDrawdownPct <= 0 {
		return models.RiskConfig{}, fmt.Errorf("risk percentages must be positive")
	}
	if rc.RiskFraction <= 0 || rc.RiskFraction > 1 {
		return models.RiskConfig{}, fmt.Errorf("risk fraction must be in (0, 1]")
	}
	if rc.MaxPosition <= 0 {
		return models.RiskConfig{}, fmt.Errorf("max position must be positive")
	}
	updated, err := e.ledger.UpdateRiskConfig(rc)
	if err != nil {
		return models.RiskConfig{}, err
	}
	e.hub.Publish("risk_config", updated)
	return updated, nil
}

// Insight runs the decision pipeline for one pair using the latest feed
// data. A pair without a quote is an error: a zero price would put the
// fallback's key levels at zero too.
func (e *Engine) Insight(ctx context.Context, pair string) (models.Insight, error) {
	quote, ok := e.feed.Quote(pair)
	if !ok {
		return models.Insight{}, fmt.Errorf("no quote available for pair %s", pair)
	}
	history := e.feed.History(pair)
	insight := e.pipeline.GenerateInsight(ctx, pair, quote.Price, quote.PctChange24h, history)
	telemetry.Insights.WithLabelValues(string(insight.Provenance)).Inc()
	e.hub.Publish("insight", insight)
	return insight, nil
}

// Audit reviews realized performance for the active mode.
func (e *Engine) Audit(ctx context.Context) (advisor.Audit, error) {
	trades, err := e.ledger.Trades(e.Mode())
	if err != nil {
		return advisor.Audit{}, err
	}
	return e.pipeline.AuditPerformance(ctx, trades), nil
}

// Status summarizes the engine for the presentation layer.
type Status struct {
	Mode      models.Mode `json:"mode"`
	Safety    SafetyState `json:"safety"`
	Balance   float64     `json:"balance"`
	Pairs     []string    `json:"pairs"`
	StartTime time.Time   `json:"start_time"`
	Uptime    string      `json:"uptime"`
}

// Status returns the current engine status.
func (e *Engine) Status() Status {
	mode := e.Mode()
	balance, err := e.ledger.Balance(mode)
	if err != nil {
		e.logger.Error("Could not read balance", zap.Error(err))
	}
	return Status{
		Mode:      mode,
		Safety:    e.governor.Snapshot(),
		Balance:   balance,
		Pairs:     e.cfg.Trading.Pairs,
		StartTime: e.startTime,
		Uptime:    time.Since(e.startTime).String(),
	}
}

// Quotes returns the latest quote per pair.
func (e *Engine) Quotes() map[string]market.Quote {
	return e.feed.Quotes()
}

// ActiveTrades returns the OPEN trades for the active mode.
func (e *Engine) ActiveTrades() ([]models.Trade, error) {
	return e.ledger.ActiveTrades(e.Mode())
}

// Trades returns the trade history for the active mode.
func (e *Engine) Trades() ([]models.Trade, error) {
	return e.ledger.Trades(e.Mode())
}

// RiskConfig returns the stored risk configuration.
func (e *Engine) RiskConfig() (models.RiskConfig, error) {
	return e.ledger.RiskConfig()
}

func (e *Engine) persistSession() error {
	session, err := e.ledger.Session()
	if err != nil {
		return err
	}
	session.Mode = e.Mode()
	session.AutopilotEnabled = e.governor.Enabled()
	return e.ledger.SaveSession(session)
}
