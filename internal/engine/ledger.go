package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"tradepilot/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementReporter receives the realized PnL of every settlement. The
// risk governor implements it.
type SettlementReporter interface {
	RecordSettlement(pnlValue float64)
}

// Ledger owns trade records and per-mode balances. Every mutation runs
// under one mutex so a settlement and a concurrent open can never
// interleave, and every mutation is written through to the database.
type Ledger struct {
	mu       sync.Mutex
	db       *gorm.DB
	logger   *zap.Logger
	reporter SettlementReporter
}

// NewLedger creates a ledger over the given database.
func NewLedger(db *gorm.DB, reporter SettlementReporter, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:       db,
		logger:   logger.Named("ledger"),
		reporter: reporter,
	}
}

// Open creates an OPEN trade and debits its notional from the balance of
// the given mode. Stop-loss and take-profit are snapshotted from the risk
// configuration in effect right now; later edits never reach this trade.
// Manual callers are not bounded by the position sizer, so the balance
// may go negative on an oversized manual trade.
func (l *Ledger) Open(pair string, side models.Side, amount, price float64, mode models.Mode) (*models.Trade, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("trade amount must be positive, got %.2f", amount)
	}
	if price <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %.2f", price)
	}
	if !side.Valid() {
		return nil, fmt.Errorf("unknown trade side %q", side)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown account mode %q", mode)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rc, err := l.riskConfigLocked()
	if err != nil {
		return nil, err
	}

	trade := models.Trade{
		ID:            uuid.NewString(),
		Pair:          pair,
		Side:          side,
		EntryPrice:    price,
		Amount:        amount,
		Status:        models.StatusOpen,
		StopLossPct:   rc.StopLossPct,
		TakeProfitPct: rc.TakeProfitPct,
		Mode:          mode,
		OpenedAt:      time.Now(),
	}
	trade.StopLossPrice = price * (1 - side.Sign()*rc.StopLossPct/100)
	trade.TakeProfitPrice = price * (1 + side.Sign()*rc.TakeProfitPct/100)

	// Trade row and balance debit commit or roll back together; a trade
	// that never debited its notional must not survive.
	err = l.db.Transaction(func(tx *gorm.DB) error {
		var bal models.Balance
		if err := tx.First(&bal, "mode = ?", mode).Error; err != nil {
			return fmt.Errorf("could not load %s balance: %w", mode, err)
		}
		bal.Amount -= amount
		if bal.Amount < 0 {
			l.logger.Warn("Balance went negative on manual overdraw",
				zap.String("mode", string(mode)), zap.Float64("balance", bal.Amount))
		}

		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to persist trade: %w", err)
		}
		if err := tx.Save(&bal).Error; err != nil {
			return fmt.Errorf("failed to persist balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("Trade opened",
		zap.String("trade_id", trade.ID),
		zap.String("pair", pair),
		zap.String("side", string(side)),
		zap.Float64("amount", amount),
		zap.Float64("entry_price", price),
		zap.String("mode", string(mode)),
	)
	return &trade, nil
}

// Settle closes an OPEN trade at exitPrice, credits notional plus
// realized PnL back to its balance and reports the result to the
// governor. Settling an unknown or already CLOSED trade is a no-op: the
// unchanged record (if any) comes back with settled=false and nothing is
// mutated.
func (l *Ledger) Settle(tradeID string, exitPrice float64) (*models.Trade, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var trade models.Trade
	err := l.db.First(&trade, "id = ?", tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not load trade %s: %w", tradeID, err)
	}
	if trade.Status == models.StatusClosed {
		return &trade, false, nil
	}

	pnlPercent := trade.PnLPercent(exitPrice)
	pnlValue := trade.Amount * pnlPercent / 100
	now := time.Now()

	trade.ExitPrice = &exitPrice
	trade.PnL = &pnlValue
	trade.Status = models.StatusClosed
	trade.ClosedAt = &now

	// CLOSED is terminal: if the credit cannot be persisted the trade
	// must not reach CLOSED either, or the amount+pnl is lost for good.
	err = l.db.Transaction(func(tx *gorm.DB) error {
		var bal models.Balance
		if err := tx.First(&bal, "mode = ?", trade.Mode).Error; err != nil {
			return fmt.Errorf("could not load %s balance: %w", trade.Mode, err)
		}
		bal.Amount += trade.Amount + pnlValue

		if err := tx.Save(&trade).Error; err != nil {
			return fmt.Errorf("failed to persist settlement: %w", err)
		}
		if err := tx.Save(&bal).Error; err != nil {
			return fmt.Errorf("failed to persist balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	l.reporter.RecordSettlement(pnlValue)

	l.logger.Info("Trade settled",
		zap.String("trade_id", trade.ID),
		zap.String("pair", trade.Pair),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl", pnlValue),
		zap.String("mode", string(trade.Mode)),
	)
	return &trade, true, nil
}

// ManualClose is the operator-initiated equivalent of Settle, using the
// most recent known quote as the exit price.
func (l *Ledger) ManualClose(tradeID string, latestPrice float64) (*models.Trade, bool, error) {
	return l.Settle(tradeID, latestPrice)
}

// Trade looks up a single trade by id. A missing trade returns nil
// without an error; the lifecycle treats unknown ids as no-ops.
func (l *Ledger) Trade(tradeID string) (*models.Trade, error) {
	var trade models.Trade
	err := l.db.First(&trade, "id = ?", tradeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load trade %s: %w", tradeID, err)
	}
	return &trade, nil
}

// ActiveTrades returns the OPEN trades for one mode, newest first.
func (l *Ledger) ActiveTrades(mode models.Mode) ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.Where("status = ? AND mode = ?", models.StatusOpen, mode).
		Order("opened_at desc").Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load active trades: %w", err)
	}
	return trades, nil
}

// OpenTrades returns every OPEN trade across both modes. The settlement
// sweep uses this: positions keep accruing PnL whichever mode the
// operator is looking at.
func (l *Ledger) OpenTrades() ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.Where("status = ?", models.StatusOpen).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load open trades: %w", err)
	}
	return trades, nil
}

// Trades returns the full trade history for one mode, newest first.
func (l *Ledger) Trades(mode models.Mode) ([]models.Trade, error) {
	var trades []models.Trade
	err := l.db.Where("mode = ?", mode).Order("opened_at desc").Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("could not load trades: %w", err)
	}
	return trades, nil
}

// HasOpenTrade reports whether an OPEN trade exists for pair in mode.
func (l *Ledger) HasOpenTrade(pair string, mode models.Mode) (bool, error) {
	var count int64
	err := l.db.Model(&models.Trade{}).
		Where("status = ? AND pair = ? AND mode = ?", models.StatusOpen, pair, mode).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("could not count open trades: %w", err)
	}
	return count > 0, nil
}

// Balance returns the current balance for one mode.
func (l *Ledger) Balance(mode models.Mode) (float64, error) {
	var bal models.Balance
	if err := l.db.First(&bal, "mode = ?", mode).Error; err != nil {
		return 0, fmt.Errorf("could not load %s balance: %w", mode, err)
	}
	return bal.Amount, nil
}

// RiskConfig returns the currently stored risk configuration.
func (l *Ledger) RiskConfig() (models.RiskConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.riskConfigLocked()
}

func (l *Ledger) riskConfigLocked() (models.RiskConfig, error) {
	var rc models.RiskConfig
	if err := l.db.First(&rc).Error; err != nil {
		return rc, fmt.Errorf("could not load risk configuration: %w", err)
	}
	return rc, nil
}

// UpdateRiskConfig replaces the stored risk parameters. Open trades keep
// their snapshots.
func (l *Ledger) UpdateRiskConfig(update models.RiskConfig) (models.RiskConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rc, err := l.riskConfigLocked()
	if err != nil {
		return rc, err
	}
	update.ID = rc.ID
	if err := l.db.Save(&update).Error; err != nil {
		return rc, fmt.Errorf("failed to persist risk configuration: %w", err)
	}
	l.logger.Info("Risk configuration updated",
		zap.Float64("stop_loss_pct", update.StopLossPct),
		zap.Float64("take_profit_pct", update.TakeProfitPct),
		zap.Float64("max_drawdown_pct", update.MaxDrawdownPct),
	)
	return update, nil
}

// Session returns the persisted operator session.
func (l *Ledger) Session() (models.Session, error) {
	var s models.Session
	if err := l.db.First(&s).Error; err != nil {
		return s, fmt.Errorf("could not load session: %w", err)
	}
	return s, nil
}

// SaveSession persists the operator session.
func (l *Ledger) SaveSession(s models.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.db.Save(&s).Error; err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
