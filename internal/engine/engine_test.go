package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradepilot/internal/advisor"
	"tradepilot/internal/config"
	"tradepilot/internal/market"
	"tradepilot/internal/models"
	"tradepilot/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		Feed:    config.Feed{PollInterval: 8, RateLimit: 1000, RateLimitBurst: 100},
		Advisor: config.Advisor{BaseURL: "http://127.0.0.1:1", TimeoutMS: 50},
		Trading: config.Trading{
			Pairs:             []string{"BTC/USD"},
			Mode:              "TRIAL",
			AutopilotInterval: 10,
			SettleInterval:    5,
			MinNotional:       10,
			InitialBalance:    10000,
		},
		Risk: config.Risk{
			StopLossPct:    2,
			TakeProfitPct:  5,
			MaxDrawdownPct: 15,
			RiskFraction:   0.05,
			MaxPosition:    1000,
		},
	}
}

// newTestEngine wires an engine against an httptest feed upstream. The
// advisory client points at an unreachable address; the pipeline is not
// exercised by the scheduler passes.
func newTestEngine(t *testing.T, cfg *config.Config, feedURL string, governor *Governor) (*Engine, *Ledger, *market.Feed) {
	t.Helper()

	ledger := newTestLedger(t, governor)
	feed := market.NewFeed(&config.Feed{
		BaseURL:        feedURL,
		PollInterval:   cfg.Feed.PollInterval,
		RateLimit:      cfg.Feed.RateLimit,
		RateLimitBurst: cfg.Feed.RateLimitBurst,
	}, cfg.Trading.Pairs, zap.NewNop())

	client := advisor.NewClient(&cfg.Advisor, zap.NewNop())
	pipeline := advisor.NewPipeline(client, 50*time.Millisecond, zap.NewNop())
	hub := telemetry.NewHub(zap.NewNop())

	eng := NewEngine(zap.NewNop(), cfg, feed, pipeline, ledger, governor, hub, models.ModeTrial)
	return eng, ledger, feed
}

// risingFeedServer serves a price that climbs on every request, enough to
// push momentum over the BUY threshold once history accumulates.
func risingFeedServer() *httptest.Server {
	n := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"BTC/USD": {"price": %d, "pct_change_24h": 3.0}}`, 50000+n*100)
	}))
}

func TestAutopilotTickOpensOnBuySignal(t *testing.T) {
	srv := risingFeedServer()
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, ledger, feed := newTestEngine(t, cfg, srv.URL, governor)

	ctx := context.Background()
	for i := 0; i < autopilotMinHistory+10; i++ {
		feed.Poll(ctx)
	}

	eng.autopilotTick()

	open, err := ledger.ActiveTrades(models.ModeTrial)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.SideBuy, open[0].Side)
	assert.Equal(t, "BTC/USD", open[0].Pair)
	// SafeSize: 5% of 10000 under a 1000 cap.
	assert.InDelta(t, 500, open[0].Amount, 0.001)

	// A second tick must not stack a second position on the same pair.
	eng.autopilotTick()
	open, err = ledger.ActiveTrades(models.ModeTrial)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAutopilotTickRequiresHistory(t *testing.T) {
	srv := risingFeedServer()
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, ledger, feed := newTestEngine(t, cfg, srv.URL, governor)

	// Below the 50-point minimum nothing may open, whatever the trend.
	for i := 0; i < autopilotMinHistory-1; i++ {
		feed.Poll(context.Background())
	}
	eng.autopilotTick()

	open, err := ledger.ActiveTrades(models.ModeTrial)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAutopilotTickBlockedByGovernor(t *testing.T) {
	srv := risingFeedServer()
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, ledger, feed := newTestEngine(t, cfg, srv.URL, governor)

	ctx := context.Background()
	for i := 0; i < autopilotMinHistory+10; i++ {
		feed.Poll(ctx)
	}

	// Three losses before the tick: the gate must block the entry even
	// though the trend still says BUY.
	governor.RecordSettlement(-1)
	governor.RecordSettlement(-1)
	governor.RecordSettlement(-1)

	eng.autopilotTick()

	open, err := ledger.ActiveTrades(models.ModeTrial)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, "max consecutive losses reached", governor.Snapshot().Alert)
}

func TestSettlementTickClosesAtStopLoss(t *testing.T) {
	price := 50000.0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"BTC/USD": {"price": %f, "pct_change_24h": 0}}`, price)
	}))
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, ledger, feed := newTestEngine(t, cfg, srv.URL, governor)

	ctx := context.Background()
	feed.Poll(ctx)

	trade, err := ledger.Open("BTC/USD", models.SideBuy, 1000, 50000, models.ModeTrial)
	require.NoError(t, err)

	// Price holds: the sweep leaves the trade alone.
	eng.settlementTick()
	reloaded, err := ledger.Trade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, reloaded.Status)

	// Price drops to the stop: the sweep settles it.
	price = 49000
	feed.Poll(ctx)
	eng.settlementTick()

	reloaded, err = ledger.Trade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, reloaded.Status)
	require.NotNil(t, reloaded.PnL)
	assert.InDelta(t, -20.0, *reloaded.PnL, 0.001)

	balance, err := ledger.Balance(models.ModeTrial)
	require.NoError(t, err)
	assert.InDelta(t, 9980.0, balance, 0.001)
}

func TestInsightRequiresAKnownPair(t *testing.T) {
	srv := risingFeedServer()
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, _, feed := newTestEngine(t, cfg, srv.URL, governor)

	ctx := context.Background()

	// Before any poll there is no quote to anchor key levels on.
	_, err := eng.Insight(ctx, "BTC/USD")
	assert.Error(t, err)

	feed.Poll(ctx)

	// Untracked pairs never get a quote; only tracked ones do.
	_, err = eng.Insight(ctx, "DOGE/USD")
	assert.Error(t, err)

	insight, err := eng.Insight(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, models.ProvenanceFallback, insight.Provenance)
	assert.Greater(t, insight.KeyLevels.Support, 0.0)
	assert.Greater(t, insight.KeyLevels.Resistance, insight.KeyLevels.Support)
}

func TestSettlementTickSweepsBothModes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"BTC/USD": {"price": 52500, "pct_change_24h": 0}}`)
	}))
	defer srv.Close()

	cfg := testConfig()
	governor := NewGovernor(true, zap.NewNop())
	eng, ledger, feed := newTestEngine(t, cfg, srv.URL, governor)

	feed.Poll(context.Background())

	// One position per mode, both at take-profit. The engine's active
	// mode is TRIAL; the LIVE position must settle anyway.
	_, err := ledger.Open("BTC/USD", models.SideBuy, 100, 50000, models.ModeTrial)
	require.NoError(t, err)
	_, err = ledger.Open("BTC/USD", models.SideBuy, 100, 50000, models.ModeLive)
	require.NoError(t, err)

	eng.settlementTick()

	open, err := ledger.OpenTrades()
	require.NoError(t, err)
	assert.Empty(t, open)
}
