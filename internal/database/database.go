package database

import (
	"errors"
	"fmt"

	"tradepilot/internal/config"
	"tradepilot/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabase opens the sqlite store, migrates the schema and seeds the
// rows the engine expects to find: one balance per mode, one risk
// configuration and one session. Anything missing or unreadable is
// recreated from the configured defaults rather than treated as fatal.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the schema and seeds defaults for balances, risk
// configuration and session state.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(&models.Trade{}, &models.Balance{}, &models.RiskConfig{}, &models.Session{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	for _, mode := range []models.Mode{models.ModeTrial, models.ModeLive} {
		var bal models.Balance
		err := db.First(&bal, "mode = ?", mode).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			bal = models.Balance{Mode: mode, Amount: cfg.Trading.InitialBalance}
			if err := db.Create(&bal).Error; err != nil {
				return fmt.Errorf("failed to seed balance for mode %s: %w", mode, err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to load balance for mode %s: %w", mode, err)
		}
	}

	var rc models.RiskConfig
	if err := db.First(&rc).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		rc = models.RiskConfig{
			StopLossPct:    cfg.Risk.StopLossPct,
			TakeProfitPct:  cfg.Risk.TakeProfitPct,
			MaxDrawdownPct: cfg.Risk.MaxDrawdownPct,
			RiskFraction:   cfg.Risk.RiskFraction,
			MaxPosition:    cfg.Risk.MaxPosition,
		}
		if err := db.Create(&rc).Error; err != nil {
			return fmt.Errorf("failed to seed risk configuration: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to load risk configuration: %w", err)
	}

	// A stored risk configuration with out-of-range values would be
	// snapshotted as-is into every new trade; reset it to the configured
	// defaults instead of carrying it forward.
	if rc.ID != 0 && !riskConfigUsable(rc) {
		rc.StopLossPct = cfg.Risk.StopLossPct
		rc.TakeProfitPct = cfg.Risk.TakeProfitPct
		rc.MaxDrawdownPct = cfg.Risk.MaxDrawdownPct
		rc.RiskFraction = cfg.Risk.RiskFraction
		rc.MaxPosition = cfg.Risk.MaxPosition
		if err := db.Save(&rc).Error; err != nil {
			return fmt.Errorf("failed to repair risk configuration: %w", err)
		}
	}

	var session models.Session
	if err := db.First(&session).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		mode := models.Mode(cfg.Trading.Mode)
		if !mode.Valid() {
			mode = models.ModeTrial
		}
		session = models.Session{Mode: mode, AutopilotEnabled: false}
		if err := db.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to seed session: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	// A session row with an unknown mode means the stored blob predates the
	// current schema; reset it to the default rather than crash.
	if !session.Mode.Valid() && session.ID != 0 {
		session.Mode = models.ModeTrial
		if err := db.Save(&session).Error; err != nil {
			return fmt.Errorf("failed to repair session mode: %w", err)
		}
	}

	return nil
}

// riskConfigUsable reports whether a stored risk configuration can safely
// be snapshotted into new trades.
func riskConfigUsable(rc models.RiskConfig) bool {
	return rc.StopLossPct > 0 &&
		rc.TakeProfitPct > 0 &&
		rc.MaxDrawdownPct > 0 &&
		rc.RiskFraction > 0 && rc.RiskFraction <= 1 &&
		rc.MaxPosition > 0
}
