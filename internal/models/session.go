package models

// Mode selects which account a trade runs against. It is fixed at trade
// creation time.
type Mode string

const (
	ModeTrial Mode = "TRIAL"
	ModeLive  Mode = "LIVE"
)

// Valid reports whether m is one of the known account modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeTrial, ModeLive:
		return true
	}
	return false
}

// Session is the persisted operator session: which account mode is active
// and whether autopilot was left enabled.
type Session struct {
	ID               uint `json:"-" gorm:"primaryKey"`
	Mode             Mode `json:"mode"`
	AutopilotEnabled bool `json:"autopilot_enabled"`
}
