package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// RiskHandler folds the credit, income, and property assessments into one
// composite risk score (0 = no risk, 100 = maximum). Missing upstream data
// is treated as maximum risk for that component, never as a fault.
type RiskHandler struct{}

func (h *RiskHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	if wctx.App == nil {
		return nil, fmt.Errorf("application record missing")
	}

	creditScore := payloadFloat(wctx, CreditAgent, "credit_score", 0)
	incomeScore := payloadFloat(wctx, IncomeAgent, "income_score", 0)
	propertyScore := payloadFloat(wctx, PropertyAgent, "property_score", 0)
	dti := payloadFloat(wctx, IncomeAgent, "dti_ratio", 100)
	ltv := payloadFloat(wctx, PropertyAgent, "ltv_ratio", 100)

	creditRisk := 100 - normalizeCredit(creditScore)
	incomeRisk := 100 - incomeScore
	propertyRisk := 100 - propertyScore
	riskScore := creditRisk*0.4 + incomeRisk*0.35 + propertyRisk*0.25

	return &workflow.Result{Success: true, Payload: map[string]any{
		"risk_score": riskScore,
		"risk_level": riskLevel(riskScore),
		"dti_ratio":  dti,
		"ltv_ratio":  ltv,
	}}, nil
}

// normalizeCredit maps a 300-850 bureau score onto 0-100.
func normalizeCredit(score float64) float64 {
	if score <= 300 {
		return 0
	}
	if score >= 850 {
		return 100
	}
	return (score - 300) / 550 * 100
}

func riskLevel(score float64) string {
	switch {
	case score < 25:
		return "low"
	case score < 50:
		return "medium"
	case score < 75:
		return "high"
	default:
		return "critical"
	}
}
