package decision

import (
	"fmt"
	"time"
)

// Type is the decision category for a processed application.
type Type string

const (
	TypeApprove     Type = "approve"
	TypeConditional Type = "conditional"
	TypeDeny        Type = "deny"
	TypePending     Type = "pending"
)

// Impact grades how strongly an adverse action weighed on the decision.
type Impact string

const (
	ImpactLow      Impact = "low"
	ImpactMedium   Impact = "medium"
	ImpactHigh     Impact = "high"
	ImpactCritical Impact = "critical"
)

// Factors are the weighted component scores behind a decision.
// Weights: eligibility 35%, risk 30%, compliance 20%, policy 15%.
type Factors struct {
	EligibilityScore float64 `json:"eligibility_score"`
	RiskScore        float64 `json:"risk_score"`
	ComplianceScore  float64 `json:"compliance_score"`
	PolicyScore      float64 `json:"policy_score"`

	EligibilityWeight float64 `json:"eligibility_weight"`
	RiskWeight        float64 `json:"risk_weight"`
	ComplianceWeight  float64 `json:"compliance_weight"`
	PolicyWeight      float64 `json:"policy_weight"`
}

// NewFactors builds component factors with the standard weights.
func NewFactors(eligibility, risk, compliance, policy float64) Factors {
	return Factors{
		EligibilityScore:  eligibility,
		RiskScore:         risk,
		ComplianceScore:   compliance,
		PolicyScore:       policy,
		EligibilityWeight: 0.35,
		RiskWeight:        0.30,
		ComplianceWeight:  0.20,
		PolicyWeight:      0.15,
	}
}

// OverallScore returns the weighted composite score.
func (f Factors) OverallScore() float64 {
	return f.EligibilityScore*f.EligibilityWeight +
		f.RiskScore*f.RiskWeight +
		f.ComplianceScore*f.ComplianceWeight +
		f.PolicyScore*f.PolicyWeight
}

// AdverseAction is one reason supporting a denial or downgrade, in the shape
// required for adverse-action notices.
type AdverseAction struct {
	ReasonCode  string `json:"reason_code"`
	Description string `json:"reason_description"`
	Category    string `json:"category"`
	ImpactLevel Impact `json:"impact_level,omitempty"`
}

// LoanTerms are the offered terms for an approved loan.
type LoanTerms struct {
	LoanAmount          float64 `json:"loan_amount"`
	InterestRate        float64 `json:"interest_rate"`
	LoanTermYears       int     `json:"loan_term_years"`
	MonthlyPayment      float64 `json:"monthly_payment"`
	DownPaymentRequired float64 `json:"down_payment_required"`
	ClosingCosts        float64 `json:"closing_costs,omitempty"`
	Points              float64 `json:"points,omitempty"`
	APR                 float64 `json:"apr,omitempty"`
	PMIRequired         bool    `json:"pmi_required,omitempty"`
	PMIMonthlyAmount    float64 `json:"pmi_monthly_amount,omitempty"`
	EscrowRequired      bool    `json:"escrow_required,omitempty"`
	PrepaymentPenalty   bool    `json:"prepayment_penalty,omitempty"`
}

// Decision is the final structured output for an application.
type Decision struct {
	ApplicationID        string          `json:"application_id"`
	Decision             Type            `json:"decision"`
	Factors              Factors         `json:"decision_factors"`
	OverallScore         float64         `json:"overall_score"`
	Confidence           float64         `json:"confidence_level"`
	Conditions           []string        `json:"conditions,omitempty"`
	AdverseActions       []AdverseAction `json:"adverse_actions,omitempty"`
	Terms                *LoanTerms      `json:"loan_terms,omitempty"`
	Rationale            string          `json:"decision_rationale"`
	RequiresManualReview bool            `json:"requires_manual_review,omitempty"`
	CreatedBy            string          `json:"created_by"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate enforces decision consistency: approvals carry terms, denials
// carry no terms and at least one adverse action, conditional approvals
// name their conditions.
func (d *Decision) Validate() error {
	if d.ApplicationID == "" {
		return fmt.Errorf("application id required")
	}
	if d.OverallScore < 0 || d.OverallScore > 100 {
		return fmt.Errorf("overall score %v out of range", d.OverallScore)
	}
	switch d.Decision {
	case TypeApprove:
		if d.Terms == nil {
			return fmt.Errorf("approved decision requires loan terms")
		}
	case TypeDeny:
		if d.Terms != nil {
			return fmt.Errorf("denied decision must not carry loan terms")
		}
		if len(d.AdverseActions) == 0 {
			return fmt.Errorf("denied decision requires at least one adverse action")
		}
	case TypeConditional:
		if len(d.Conditions) == 0 {
			return fmt.Errorf("conditional approval requires conditions")
		}
	case TypePending:
	default:
		return fmt.Errorf("unknown decision type %q", d.Decision)
	}
	return nil
}
