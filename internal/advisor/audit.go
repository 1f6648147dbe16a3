package advisor

import (
	"context"
	"fmt"
	"math"

	"tradepilot/internal/models"
	"go.uber.org/zap"
)

// Rating grades audited performance.
type Rating string

const (
	RatingA Rating = "A"
	RatingC Rating = "C"
	RatingF Rating = "F"
)

// Audit is the result of a performance review over settled trades.
type Audit struct {
	Rating                Rating  `json:"rating"`
	EfficiencyScore       int     `json:"efficiency_score"`
	Critique              string  `json:"critique"`
	RecommendedAdjustment string  `json:"recommended_adjustment"`
	WinRate               float64 `json:"win_rate"`
	NetPnL                float64 `json:"net_pnl"`
	ClosedTrades          int     `json:"closed_trades"`
}

// AuditPerformance reviews realized performance over CLOSED trades. An
// external summarization is attempted first; when it fails the
// deterministic grading rules apply. Like GenerateInsight, this never
// returns an error.
func (p *Pipeline) AuditPerformance(ctx context.Context, trades []models.Trade) Audit {
	var closed, wins int
	var netPnL float64
	for _, t := range trades {
		if t.Status != models.StatusClosed || t.PnL == nil {
			continue
		}
		closed++
		if *t.PnL > 0 {
			wins++
		}
		netPnL += *t.PnL
	}

	var winRate float64
	if closed > 0 {
		winRate = float64(wins) / float64(closed) * 100
	}

	audit := Audit{
		EfficiencyScore: int(math.Floor(winRate)),
		WinRate:         winRate,
		NetPnL:          netPnL,
		ClosedTrades:    closed,
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	review, err := p.advisor.RequestAudit(reqCtx, auditRequest{
		TotalTrades: closed,
		WinRate:     winRate,
		NetPnL:      netPnL,
	})
	if err == nil && review != nil && Rating(review.Rating).valid() {
		audit.Rating = Rating(review.Rating)
		audit.Critique = review.Critique
		audit.RecommendedAdjustment = review.RecommendedAdjustment
		return audit
	}
	if err != nil {
		p.logger.Warn("Audit summarization failed, applying deterministic grading", zap.Error(err))
	}

	audit.Rating = gradeFor(winRate, netPnL)
	audit.Critique = fmt.Sprintf("%d settled trades, %.1f%% win rate, %.2f net PnL", closed, winRate, netPnL)
	audit.RecommendedAdjustment = adjustmentFor(audit.Rating)
	return audit
}

func (r Rating) valid() bool {
	switch r {
	case RatingA, RatingC, RatingF:
		return true
	}
	return false
}

// gradeFor applies the deterministic grading rules.
func gradeFor(winRate, netPnL float64) Rating {
	switch {
	case winRate > 60 && netPnL > 0:
		return RatingA
	case netPnL < 0:
		return RatingF
	default:
		return RatingC
	}
}

func adjustmentFor(r Rating) string {
	switch r {
	case RatingA:
		return "keep current risk fraction"
	case RatingF:
		return "reduce risk fraction until net PnL recovers"
	default:
		return "tighten entries; win rate has room to improve"
	}
}
