package models

// RiskConfig holds the risk parameters applied to new trades. Open trades
// keep the snapshot taken at open time, so editing this never reaches back
// into an existing position.
type RiskConfig struct {
	ID             uint    `json:"-" gorm:"primaryKey"`
	StopLossPct    float64 `json:"stop_loss_pct"`
	TakeProfitPct  float64 `json:"take_profit_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	RiskFraction   float64 `json:"risk_fraction"`
	MaxPosition    float64 `json:"max_position"`
}
