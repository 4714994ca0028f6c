package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// RiskScorer rates a charge attempt in [0,1]; higher means riskier.
type RiskScorer interface {
	ScorePayment(ctx context.Context, orderID string, userID int64, amount decimal.Decimal) (float64, error)
}

// StaticScorer returns a fixed score. Stands in for a real fraud provider.
type StaticScorer struct {
	Score float64
}

func (s StaticScorer) ScorePayment(_ context.Context, _ string, _ int64, _ decimal.Decimal) (float64, error) {
	return s.Score, nil
}
