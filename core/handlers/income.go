package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// IncomeHandler verifies income and computes the debt-to-income ratio using
// the estimated payment on the requested loan.
type IncomeHandler struct{}

func (h *IncomeHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	app := wctx.App
	if app == nil {
		return nil, fmt.Errorf("application record missing")
	}
	monthly := app.MonthlyIncome()
	if monthly <= 0 {
		return &workflow.Result{Success: false, Error: "no verifiable income"}, nil
	}

	estimatedPayment := app.Loan.LoanAmount * 0.006
	dti := (app.Borrower.MonthlyDebts + estimatedPayment) / monthly * 100

	stable := app.Borrower.EmploymentStatus == "employed" || app.Borrower.EmploymentStatus == "self_employed"
	score := 100.0
	switch {
	case dti > 50:
		score = 20
	case dti > 43:
		score = 50
	case dti > 36:
		score = 75
	}
	if !stable {
		score -= 20
	}
	if score < 0 {
		score = 0
	}

	return &workflow.Result{Success: true, Payload: map[string]any{
		"monthly_income":    monthly,
		"estimated_payment": estimatedPayment,
		"dti_ratio":         dti,
		"employment_stable": stable,
		"income_score":      score,
	}}, nil
}
