package models

import "time"

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	}
	return false
}

// Sign returns +1 for BUY and -1 for SELL, used when computing PnL.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Status is the lifecycle state of a trade. CLOSED is terminal.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Trade is a single position record. Stop-loss and take-profit are
// snapshotted from the risk configuration in effect when the trade was
// opened; later configuration changes never touch an existing trade.
type Trade struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Pair            string     `json:"pair" gorm:"index"`
	Side            Side       `json:"side"`
	EntryPrice      float64    `json:"entry_price"`
	ExitPrice       *float64   `json:"exit_price,omitempty"`
	Amount          float64    `json:"amount"`
	Status          Status     `json:"status" gorm:"index"`
	PnL             *float64   `json:"pnl,omitempty"`
	StopLossPct     float64    `json:"stop_loss_pct"`
	TakeProfitPct   float64    `json:"take_profit_pct"`
	StopLossPrice   float64    `json:"stop_loss_price"`
	TakeProfitPrice float64    `json:"take_profit_price"`
	Mode            Mode       `json:"mode" gorm:"index"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// PnLPercent computes the signed percentage move from entry to exitPrice
// for this trade's side.
func (t *Trade) PnLPercent(exitPrice float64) float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	return t.Side.Sign() * (exitPrice - t.EntryPrice) / t.EntryPrice * 100
}
