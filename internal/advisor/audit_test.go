package advisor

import (
	"context"
	"testing"
	"time"

	"tradepilot/internal/models"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func closedTrade(pnl float64) models.Trade {
	return models.Trade{Status: models.StatusClosed, PnL: &pnl}
}

func TestAuditPerformanceDeterministicGrading(t *testing.T) {
	testCases := []struct {
		name           string
		trades         []models.Trade
		expectedRating Rating
		expectedScore  int
	}{
		{
			name: "High win rate and positive PnL grades A",
			trades: []models.Trade{
				closedTrade(10), closedTrade(20), closedTrade(5), closedTrade(-3),
			},
			expectedRating: RatingA,
			expectedScore:  75,
		},
		{
			name: "Negative net PnL grades F",
			trades: []models.Trade{
				closedTrade(10), closedTrade(-50),
			},
			expectedRating: RatingF,
			expectedScore:  50,
		},
		{
			name: "Middling performance grades C",
			trades: []models.Trade{
				closedTrade(10), closedTrade(-5), closedTrade(-2),
			},
			expectedRating: RatingC,
			expectedScore:  33,
		},
		{
			name:           "No settled trades grades C",
			trades:         []models.Trade{{Status: models.StatusOpen}},
			expectedRating: RatingC,
			expectedScore:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPipeline(&stubAdvisor{reviewErr: assert.AnError}, 50*time.Millisecond, zap.NewNop())

			audit := p.AuditPerformance(context.Background(), tc.trades)

			assert.Equal(t, tc.expectedRating, audit.Rating)
			assert.Equal(t, tc.expectedScore, audit.EfficiencyScore)
			assert.NotEmpty(t, audit.Critique)
			assert.NotEmpty(t, audit.RecommendedAdjustment)
		})
	}
}

func TestAuditPerformanceExternalReview(t *testing.T) {
	stub := &stubAdvisor{
		review: &auditReview{
			Rating:                "A",
			Critique:              "disciplined exits",
			RecommendedAdjustment: "no change",
		},
	}
	p := NewPipeline(stub, 50*time.Millisecond, zap.NewNop())

	audit := p.AuditPerformance(context.Background(), []models.Trade{closedTrade(10)})

	assert.Equal(t, RatingA, audit.Rating)
	assert.Equal(t, "disciplined exits", audit.Critique)
	assert.Equal(t, 100, audit.EfficiencyScore)
	assert.InDelta(t, 10.0, audit.NetPnL, 0.001)
}

func TestAuditPerformanceIgnoresOpenTrades(t *testing.T) {
	p := NewPipeline(&stubAdvisor{reviewErr: assert.AnError}, 50*time.Millisecond, zap.NewNop())

	pnl := 10.0
	trades := []models.Trade{
		{Status: models.StatusOpen},
		{Status: models.StatusClosed, PnL: &pnl},
		{Status: models.StatusClosed}, // closed without recorded PnL is skipped
	}

	audit := p.AuditPerformance(context.Background(), trades)
	assert.Equal(t, 1, audit.ClosedTrades)
	assert.InDelta(t, 10.0, audit.NetPnL, 0.001)
}
