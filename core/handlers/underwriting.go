package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// Decision cutoffs: overall score at or above approveThreshold approves,
// at or above conditionalThreshold approves with conditions, below denies.
const (
	approveThreshold     = 80.0
	conditionalThreshold = 60.0
)

// UnderwritingHandler issues the final verdict. Its payload is shaped for
// the decision aggregator: decision, overall_score, decision_factors,
// conditions, adverse_actions, and loan_terms on approval.
type UnderwritingHandler struct{}

func (h *UnderwritingHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	app := wctx.App
	if app == nil {
		return nil, fmt.Errorf("application record missing")
	}

	creditScore := payloadFloat(wctx, CreditAgent, "credit_score", 0)
	incomeScore := payloadFloat(wctx, IncomeAgent, "income_score", 0)
	riskScore := payloadFloat(wctx, RiskAgent, "risk_score", 100)
	dti := payloadFloat(wctx, IncomeAgent, "dti_ratio", 100)
	ltv := payloadFloat(wctx, PropertyAgent, "ltv_ratio", 100)
	docsComplete := payloadBool(wctx, DocumentAgent, "documents_complete")

	eligibility := eligibilityScore(creditScore, dti, ltv)
	riskComponent := 100 - riskScore
	compliance := complianceScore(docsComplete, incomeScore)
	policy := policyScore(app.Loan.LoanAmount, ltv, string(app.Loan.LoanType))

	overall := eligibility*0.35 + riskComponent*0.30 + compliance*0.20 + policy*0.15

	var (
		decision   string
		conditions []any
		adverse    []any
	)
	switch {
	case overall >= approveThreshold:
		decision = "approve"
	case overall >= conditionalThreshold:
		decision = "conditional"
		if !docsComplete {
			conditions = append(conditions, "Provide all required documentation")
		}
		if dti > 43 {
			conditions = append(conditions, "Reduce monthly debt obligations or document additional income")
		}
		if ltv > 90 {
			conditions = append(conditions, "Increase down payment to reduce loan-to-value below 90%")
		}
		if len(conditions) == 0 {
			conditions = append(conditions, "Subject to final underwriter verification")
		}
	default:
		decision = "deny"
		if creditScore < 620 {
			adverse = append(adverse, map[string]any{
				"reason_code":        "CR001",
				"reason_description": "Credit score below minimum lending threshold",
				"category":           "credit",
				"impact_level":       "high",
			})
		}
		if dti > 50 {
			adverse = append(adverse, map[string]any{
				"reason_code":        "IN001",
				"reason_description": "Debt-to-income ratio exceeds program limits",
				"category":           "income",
				"impact_level":       "high",
			})
		}
		if ltv > 97 {
			adverse = append(adverse, map[string]any{
				"reason_code":        "PR001",
				"reason_description": "Insufficient equity for requested loan amount",
				"category":           "property",
				"impact_level":       "medium",
			})
		}
		if len(adverse) == 0 {
			adverse = append(adverse, map[string]any{
				"reason_code":        "UW001",
				"reason_description": "Overall risk profile does not meet underwriting standards",
				"category":           "underwriting",
				"impact_level":       "high",
			})
		}
	}

	payload := map[string]any{
		"decision":      decision,
		"overall_score": overall,
		"decision_factors": map[string]any{
			"eligibility_score": eligibility,
			"risk_score":        riskScore,
			"compliance_score":  compliance,
			"policy_score":      policy,
		},
		"confidence_level":   confidence(overall),
		"decision_rationale": rationale(decision, overall, creditScore, dti, ltv),
	}
	if len(conditions) > 0 {
		payload["conditions"] = conditions
	}
	if len(adverse) > 0 {
		payload["adverse_actions"] = adverse
	}
	if decision == "approve" {
		payload["loan_terms"] = map[string]any{
			"loan_amount":           app.Loan.LoanAmount,
			"interest_rate":         offeredRate(creditScore),
			"loan_term_years":       float64(termYears(app.Loan.LoanTermYears)),
			"monthly_payment":       app.Loan.LoanAmount * 0.006,
			"down_payment_required": app.Loan.DownPayment,
			"closing_costs":         app.Loan.LoanAmount * 0.03,
			"apr":                   offeredRate(creditScore) + 0.25,
			"pmi_required":          ltv > 80,
			"escrow_required":       true,
		}
	}
	return &workflow.Result{Success: true, Payload: payload}, nil
}

func eligibilityScore(creditScore, dti, ltv float64) float64 {
	score := normalizeCredit(creditScore)
	if dti <= 36 {
		score = score*0.7 + 30
	} else if dti <= 43 {
		score = score*0.7 + 15
	} else {
		score = score * 0.7
	}
	if ltv > 97 {
		score -= 20
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func complianceScore(docsComplete bool, incomeScore float64) float64 {
	score := incomeScore * 0.5
	if docsComplete {
		score += 50
	}
	return score
}

func policyScore(loanAmount, ltv float64, loanType string) float64 {
	score := 80.0
	switch loanType {
	case "fha", "va", "usda":
		score += 10 // government programs tolerate higher LTV
	case "jumbo":
		score -= 15
	}
	if ltv <= 80 {
		score += 10
	}
	if loanAmount > 2000000 {
		score -= 20
	}
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

func offeredRate(creditScore float64) float64 {
	switch {
	case creditScore >= 740:
		return 6.25
	case creditScore >= 680:
		return 6.5
	case creditScore >= 640:
		return 6.875
	default:
		return 7.25
	}
}

func termYears(requested int) int {
	if requested <= 0 {
		return 30
	}
	return requested
}

// confidence falls off near the decision boundaries.
func confidence(overall float64) float64 {
	d := absf(overall - approveThreshold)
	if d2 := absf(overall - conditionalThreshold); d2 < d {
		d = d2
	}
	c := 0.5 + d/100
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func rationale(decision string, overall, creditScore, dti, ltv float64) string {
	return fmt.Sprintf("Underwriting verdict %s: overall score %.1f (credit %.0f, DTI %.1f%%, LTV %.1f%%)",
		decision, overall, creditScore, dti, ltv)
}
