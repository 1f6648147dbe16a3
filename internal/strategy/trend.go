package strategy

import (
	"fmt"
	"math"

	"tradepilot/internal/models"
)

const (
	// shortWindow and baselineWindow bound the two averages the momentum
	// calculation compares. With fewer points than baselineWindow the whole
	// history is the baseline.
	shortWindow    = 10
	baselineWindow = 50

	// momentumThresholdPct is the minimum short-vs-baseline divergence, in
	// percent, before a directional signal is emitted.
	momentumThresholdPct = 0.5
)

// Signal is the output of trend analysis.
type Signal struct {
	Action     models.Action
	Confidence int
	Reason     string
}

// AnalyzeTrend derives a trading signal from an ordered price history. It
// is a pure function: the same sequence always yields the same signal.
// Callers are responsible for only invoking it with enough history to be
// meaningful.
func AnalyzeTrend(history []float64) Signal {
	short := tailMean(history, shortWindow)
	baseline := tailMean(history, baselineWindow)
	if baseline == 0 {
		return Signal{Action: models.ActionHold, Confidence: 0, Reason: "baseline unavailable"}
	}

	momentum := (short - baseline) / baseline * 100
	confidence := confidenceFor(momentum)

	switch {
	case momentum > momentumThresholdPct:
		return Signal{
			Action:     models.ActionBuy,
			Confidence: confidence,
			Reason:     fmt.Sprintf("short-term momentum %.2f%% above baseline", momentum),
		}
	case momentum < -momentumThresholdPct:
		return Signal{
			Action:     models.ActionSell,
			Confidence: confidence,
			Reason:     fmt.Sprintf("short-term momentum %.2f%% below baseline", -momentum),
		}
	default:
		return Signal{
			Action:     models.ActionHold,
			Confidence: confidence,
			Reason:     fmt.Sprintf("momentum %.2f%% within neutral band", momentum),
		}
	}
}

// confidenceFor maps momentum magnitude onto [0,100]. Monotone: stronger
// momentum never yields lower confidence.
func confidenceFor(momentum float64) int {
	c := 50 + int(math.Abs(momentum)*10)
	if c > 100 {
		c = 100
	}
	return c
}

func tailMean(prices []float64, window int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if window > len(prices) {
		window = len(prices)
	}
	var sum float64
	for _, p := range prices[len(prices)-window:] {
		sum += p
	}
	return sum / float64(window)
}
