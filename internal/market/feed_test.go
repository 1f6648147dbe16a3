package market

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradepilot/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testFeedConfig(baseURL string) *config.Feed {
	return &config.Feed{
		BaseURL:        baseURL,
		PollInterval:   8,
		RateLimit:      100,
		RateLimitBurst: 10,
	}
}

func TestPollFetchesQuotes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC/USD,ETH/USD", r.URL.Query().Get("pairs"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"BTC/USD": {"price": 65000, "pct_change_24h": 1.2},
			"ETH/USD": {"price": 3200, "pct_change_24h": -0.4}
		}`))
	}))
	defer srv.Close()

	feed := NewFeed(testFeedConfig(srv.URL), []string{"BTC/USD", "ETH/USD"}, zap.NewNop())
	feed.Poll(context.Background())

	quote, ok := feed.Quote("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, 65000.0, quote.Price)
	assert.Equal(t, 1.2, quote.PctChange24h)

	quote, ok = feed.Quote("ETH/USD")
	require.True(t, ok)
	assert.Equal(t, 3200.0, quote.Price)

	assert.Len(t, feed.History("BTC/USD"), 1)
}

func TestPollSynthesizesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	feed := NewFeed(testFeedConfig(srv.URL), []string{"BTC/USD"}, zap.NewNop())
	feed.Poll(context.Background())

	// The engine still observes a quote, walked from the seed price.
	quote, ok := feed.Quote("BTC/USD")
	require.True(t, ok)
	assert.InDelta(t, 65000, quote.Price, 65000*syntheticStepPct)

	first := quote.Timestamp
	feed.Poll(context.Background())

	quote, ok = feed.Quote("BTC/USD")
	require.True(t, ok)
	assert.False(t, quote.Timestamp.Before(first), "timestamps must stay monotone")
	assert.Len(t, feed.History("BTC/USD"), 2)
}

func TestSyntheticWalkStepsAreBounded(t *testing.T) {
	// Unreachable upstream: every poll degrades to the synthetic walk.
	feed := NewFeed(testFeedConfig("http://127.0.0.1:1"), []string{"SOL/USD"}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		feed.Poll(ctx)
	}

	history := feed.History("SOL/USD")
	require.Len(t, history, 20)
	for i := 1; i < len(history); i++ {
		step := math.Abs(history[i]-history[i-1]) / history[i-1]
		assert.LessOrEqual(t, step, syntheticStepPct+1e-9)
		assert.Greater(t, history[i], 0.0)
	}
}

func TestSyntheticChangeTracksHistoryBaseline(t *testing.T) {
	// A long outage: hundreds of synthetic steps in a row. The reported
	// 24h change must stay consistent with the retained price history
	// instead of growing step over step.
	feed := NewFeed(testFeedConfig("http://127.0.0.1:1"), []string{"BTC/USD"}, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 300; i++ {
		feed.Poll(ctx)
	}

	quote, ok := feed.Quote("BTC/USD")
	require.True(t, ok)

	history := feed.History("BTC/USD")
	require.NotEmpty(t, history)
	expected := (quote.Price - history[0]) / history[0] * 100
	assert.InDelta(t, expected, quote.PctChange24h, 0.001)

	// 300 bounded steps of at most 0.4% cannot legitimately add up to a
	// triple-digit change figure.
	assert.Less(t, math.Abs(quote.PctChange24h), 100.0)
}

func TestPollSynthesizesMissingPairs(t *testing.T) {
	// The upstream only knows one of the two tracked pairs.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"BTC/USD": {"price": 65000, "pct_change_24h": 1.2}}`))
	}))
	defer srv.Close()

	feed := NewFeed(testFeedConfig(srv.URL), []string{"BTC/USD", "ETH/USD"}, zap.NewNop())
	feed.Poll(context.Background())

	_, ok := feed.Quote("BTC/USD")
	assert.True(t, ok)
	_, ok = feed.Quote("ETH/USD")
	assert.True(t, ok, "untracked upstream pairs still get synthetic quotes")
}

func TestHistoryReturnsACopy(t *testing.T) {
	feed := NewFeed(testFeedConfig("http://127.0.0.1:1"), []string{"BTC/USD"}, zap.NewNop())
	feed.Poll(context.Background())

	history := feed.History("BTC/USD")
	require.Len(t, history, 1)
	history[0] = -1

	fresh := feed.History("BTC/USD")
	assert.Greater(t, fresh[0], 0.0)
}
