package advisor

import (
	"context"
	"fmt"

	"tradepilot/internal/config"
	"tradepilot/internal/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// MarketContext is the market snapshot sent along with an advisory
// request.
type MarketContext struct {
	Price       float64 `json:"price"`
	PctChange24 float64 `json:"pct_change_24h"`
}

// insightPayload is the advisory service's wire shape for an insight.
type insightPayload struct {
	Pair       string           `json:"pair"`
	Confidence int              `json:"confidence"`
	Action     string           `json:"action"`
	Reasoning  string           `json:"reasoning"`
	KeyLevels  models.KeyLevels `json:"keyLevels"`
}

// auditRequest summarizes trading performance for the external reviewer.
type auditRequest struct {
	TotalTrades int     `json:"total_trades"`
	WinRate     float64 `json:"win_rate"`
	NetPnL      float64 `json:"net_pnl"`
}

// auditReview is the external reviewer's response.
type auditReview struct {
	Rating                string `json:"rating"`
	Critique              string `json:"critique"`
	RecommendedAdjustment string `json:"recommended_adjustment"`
}

// AdvisoryClient is the transport used by the decision pipeline. Split
// out as an interface so tests can stub it.
type AdvisoryClient interface {
	RequestInsight(ctx context.Context, pair string, mkt MarketContext) (*insightPayload, error)
	RequestAudit(ctx context.Context, req auditRequest) (*auditReview, error)
}

// Client talks to the external advisory service over HTTP.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

var _ AdvisoryClient = (*Client)(nil)

// NewClient creates an advisory service client.
func NewClient(cfg *config.Advisor, logger *zap.Logger) *Client {
	return &Client{
		client: resty.New().SetBaseURL(cfg.BaseURL),
		logger: logger.Named("advisor"),
	}
}

// RequestInsight asks the advisory service for a recommendation on one
// pair. The caller owns the deadline; this call runs until the context is
// cancelled or the service answers.
func (c *Client) RequestInsight(ctx context.Context, pair string, mkt MarketContext) (*insightPayload, error) {
	var payload insightPayload
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"pair":           pair,
			"price":          mkt.Price,
			"pct_change_24h": mkt.PctChange24,
		}).
		SetResult(&payload).
		Post("/insight")
	if err != nil {
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("advisory request failed with status %s", resp.Status())
	}
	return &payload, nil
}

// RequestAudit asks the advisory service to critique recent performance.
func (c *Client) RequestAudit(ctx context.Context, req auditRequest) (*auditReview, error) {
	var review auditReview
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&review).
		Post("/audit")
	if err != nil {
		return nil, fmt.Errorf("audit request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("audit request failed with status %s", resp.Status())
	}
	return &review, nil
}
