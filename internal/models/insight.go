package models

import "time"

// Action is a trading recommendation. Unlike Side it includes HOLD, which
// never becomes a trade.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionHold:
		return true
	}
	return false
}

// Provenance records which path produced an insight.
type Provenance string

const (
	ProvenanceExternal Provenance = "EXTERNAL"
	ProvenanceFallback Provenance = "FALLBACK"
)

// KeyLevels are the support/resistance prices attached to an insight.
type KeyLevels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
}

// Insight is a per-pair trading recommendation, either from the external
// advisory service or synthesized locally when that fails.
type Insight struct {
	Pair       string     `json:"pair"`
	Confidence int        `json:"confidence"`
	Action     Action     `json:"action"`
	Reasoning  string     `json:"reasoning"`
	KeyLevels  KeyLevels  `json:"key_levels"`
	Timestamp  time.Time  `json:"timestamp"`
	Provenance Provenance `json:"provenance"`
}
