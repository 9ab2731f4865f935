package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// CreditHandler produces a deterministic credit assessment. The bureau pull
// is mocked: the score derives from the application's financial profile so
// repeated runs agree.
type CreditHandler struct{}

func (h *CreditHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	app := wctx.App
	if app == nil {
		return nil, fmt.Errorf("application record missing")
	}

	score := creditScore(app.Borrower.AnnualIncome, app.Borrower.MonthlyDebts, app.Loan.DownPayment, app.Property.PropertyValue)
	tier := creditTier(score)

	return &workflow.Result{Success: true, Payload: map[string]any{
		"credit_score": score,
		"credit_tier":  tier,
		"derogatory":   score < 580,
	}}, nil
}

func creditScore(annualIncome, monthlyDebts, downPayment, propertyValue float64) int {
	score := 640
	if annualIncome >= 80000 {
		score += 40
	}
	if annualIncome >= 150000 {
		score += 20
	}
	if propertyValue > 0 && downPayment >= propertyValue*0.2 {
		score += 40
	}
	if annualIncome > 0 && monthlyDebts < annualIncome/12*0.1 {
		score += 20
	}
	if annualIncome > 0 && monthlyDebts > annualIncome/12*0.5 {
		score -= 80
	}
	if score > 820 {
		score = 820
	}
	if score < 500 {
		score = 500
	}
	return score
}

// creditTier maps a score to a pricing tier using standard cutoffs.
func creditTier(score int) string {
	switch {
	case score >= 740:
		return "excellent"
	case score >= 680:
		return "good"
	case score >= 640:
		return "fair"
	case score >= 620:
		return "below_average"
	case score >= 580:
		return "poor"
	default:
		return "very_poor"
	}
}
