package engine

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// maxConsecutiveLosses trips the kill switch.
	maxConsecutiveLosses = 3

	alertConsecutiveLosses = "max consecutive losses reached"
	alertDrawdown          = "drawdown limit reached"
)

// SafetyState is a snapshot of the governor for presentation consumers.
type SafetyState struct {
	ConsecutiveLosses int     `json:"consecutive_losses"`
	CumulativePnL     float64 `json:"cumulative_pnl"`
	AutopilotEnabled  bool    `json:"autopilot_enabled"`
	Alert             string  `json:"alert,omitempty"`
}

// Governor tracks realized losses and disables autonomous trading when a
// safety threshold is breached. Manual operations are never blocked by
// it.
type Governor struct {
	logger *zap.Logger

	mu                sync.Mutex
	consecutiveLosses int
	cumulativePnL     float64
	autopilotEnabled  bool
	alert             string
}

// NewGovernor creates a governor. enabled seeds the autopilot flag from
// the persisted session.
func NewGovernor(enabled bool, logger *zap.Logger) *Governor {
	return &Governor{
		logger:           logger.Named("governor"),
		autopilotEnabled: enabled,
	}
}

// RecordSettlement updates the loss streak and cumulative PnL after a
// trade settles. Losses extend the streak; anything else resets it.
func (g *Governor) RecordSettlement(pnlValue float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pnlValue < 0 {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}
	g.cumulativePnL += pnlValue
}

// Gate decides whether an autonomous entry may proceed. A breach flips
// the kill switch and raises an alert that persists until dismissed.
func (g *Governor) Gate(currentBalance, maxDrawdownPct float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.consecutiveLosses >= maxConsecutiveLosses {
		if g.autopilotEnabled {
			g.logger.Warn("Kill switch tripped", zap.Int("consecutive_losses", g.consecutiveLosses))
		}
		g.autopilotEnabled = false
		g.alert = alertConsecutiveLosses
		return false
	}

	if currentBalance > 0 {
		drawdownPct := g.cumulativePnL / currentBalance * 100
		if drawdownPct <= -maxDrawdownPct {
			if g.autopilotEnabled {
				g.logger.Warn("Kill switch tripped", zap.Float64("drawdown_pct", drawdownPct))
			}
			g.autopilotEnabled = false
			g.alert = alertDrawdown
			return false
		}
	}

	return g.autopilotEnabled
}

// DismissAlert clears the active alert and resets the loss streak.
// Cumulative PnL is deliberately left untouched, and autopilot stays off
// until explicitly re-enabled.
func (g *Governor) DismissAlert() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alert = ""
	g.consecutiveLosses = 0
}

// SetAutopilot flips the autopilot flag.
func (g *Governor) SetAutopilot(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autopilotEnabled = enabled
}

// Enabled reports whether autopilot is currently on.
func (g *Governor) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autopilotEnabled
}

// Snapshot returns the current safety state.
func (g *Governor) Snapshot() SafetyState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return SafetyState{
		ConsecutiveLosses: g.consecutiveLosses,
		CumulativePnL:     g.cumulativePnL,
		AutopilotEnabled:  g.autopilotEnabled,
		Alert:             g.alert,
	}
}
