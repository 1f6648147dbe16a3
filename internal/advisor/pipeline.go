package advisor

import (
	"context"
	"fmt"
	"time"

	"tradepilot/internal/models"
	"tradepilot/internal/strategy"
	"go.uber.org/zap"
)

const (
	// fallbackMinHistory is the minimum history length before the trend
	// analyzer is preferred over the 24h-change heuristic.
	fallbackMinHistory = 20

	// heuristicChangePct is the 24h move that flips the minimal heuristic
	// out of HOLD.
	heuristicChangePct = 2.0

	// heuristicConfidence is the fixed confidence of the minimal heuristic.
	heuristicConfidence = 70
)

// pairVolatility drives synthesized support/resistance levels in the
// fallback path. Pairs not listed use defaultVolatility.
var pairVolatility = map[string]float64{
	"BTC/USD": 0.03,
	"ETH/USD": 0.05,
	"SOL/USD": 0.08,
}

const defaultVolatility = 0.05

// Pipeline produces insights by racing the external advisory service
// against a local fallback, and audits performance over settled trades.
// It never surfaces an error to its callers; every failure path degrades
// to a usable result.
type Pipeline struct {
	advisor AdvisoryClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewPipeline creates a decision pipeline around the given advisory
// client. timeout bounds the external race.
func NewPipeline(advisor AdvisoryClient, timeout time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		advisor: advisor,
		timeout: timeout,
		logger:  logger.Named("pipeline"),
	}
}

type insightResult struct {
	payload *insightPayload
	err     error
}

// GenerateInsight issues one advisory request raced against the pipeline
// timeout; whichever settles first wins. A malformed response counts as a
// loss. On any failure the local fallback answers instead, so the caller
// always receives an insight, tagged with its provenance.
func (p *Pipeline) GenerateInsight(ctx context.Context, pair string, price, change24h float64, history []float64) models.Insight {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results := make(chan insightResult, 1)
	go func() {
		payload, err := p.advisor.RequestInsight(reqCtx, pair, MarketContext{Price: price, PctChange24: change24h})
		results <- insightResult{payload: payload, err: err}
	}()

	select {
	case res := <-results:
		if res.err == nil {
			if insight, ok := p.validate(pair, res.payload); ok {
				return insight
			}
			p.logger.Warn("Advisory response failed validation, using fallback", zap.String("pair", pair))
		} else {
			p.logger.Warn("Advisory request failed, using fallback", zap.String("pair", pair), zap.Error(res.err))
		}
	case <-reqCtx.Done():
		// The in-flight request is abandoned; cancel tears down its
		// transport. The fallback never waits for it.
		p.logger.Warn("Advisory request timed out, using fallback", zap.String("pair", pair))
	}

	return p.fallback(pair, price, change24h, history)
}

// validate checks an external response against the expected schema.
func (p *Pipeline) validate(pair string, payload *insightPayload) (models.Insight, bool) {
	if payload == nil || payload.Pair == "" || payload.Reasoning == "" {
		return models.Insight{}, false
	}
	action := models.Action(payload.Action)
	if !action.Valid() {
		return models.Insight{}, false
	}
	if payload.Confidence < 0 || payload.Confidence > 100 {
		return models.Insight{}, false
	}

	return models.Insight{
		Pair:       pair,
		Confidence: payload.Confidence,
		Action:     action,
		Reasoning:  payload.Reasoning,
		KeyLevels:  payload.KeyLevels,
		Timestamp:  time.Now(),
		Provenance: models.ProvenanceExternal,
	}, true
}

// fallback synthesizes an insight locally: trend analysis when enough
// history exists, otherwise a minimal 24h-change heuristic.
func (p *Pipeline) fallback(pair string, price, change24h float64, history []float64) models.Insight {
	v := pairVolatility[pair]
	if v == 0 {
		v = defaultVolatility
	}

	insight := models.Insight{
		Pair: pair,
		KeyLevels: models.KeyLevels{
			Support:    price * (1 - v),
			Resistance: price * (1 + v),
		},
		Timestamp:  time.Now(),
		Provenance: models.ProvenanceFallback,
	}

	if len(history) >= fallbackMinHistory {
		sig := strategy.AnalyzeTrend(history)
		insight.Action = sig.Action
		insight.Confidence = sig.Confidence
		insight.Reasoning = sig.Reason
		return insight
	}

	insight.Confidence = heuristicConfidence
	switch {
	case change24h > heuristicChangePct:
		insight.Action = models.ActionBuy
		insight.Reasoning = fmt.Sprintf("24h change %.2f%% above entry threshold", change24h)
	case change24h < -heuristicChangePct:
		insight.Action = models.ActionSell
		insight.Reasoning = fmt.Sprintf("24h change %.2f%% below exit threshold", change24h)
	default:
		insight.Action = models.ActionHold
		insight.Reasoning = fmt.Sprintf("24h change %.2f%% inside neutral band", change24h)
	}
	return insight
}
