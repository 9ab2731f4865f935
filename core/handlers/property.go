package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// PropertyHandler appraises the property and computes loan-to-value. The
// appraisal is mocked as a small deterministic uplift on the stated value.
type PropertyHandler struct{}

func (h *PropertyHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	app := wctx.App
	if app == nil {
		return nil, fmt.Errorf("application record missing")
	}
	if app.Property.PropertyValue <= 0 {
		return &workflow.Result{Success: false, Error: "property value unavailable"}, nil
	}

	appraised := app.Property.PropertyValue * 1.02
	ltv := app.Loan.LoanAmount / appraised * 100

	score := 100.0
	switch {
	case ltv > 97:
		score = 20
	case ltv > 90:
		score = 55
	case ltv > 80:
		score = 75
	}

	return &workflow.Result{Success: true, Payload: map[string]any{
		"appraised_value": appraised,
		"ltv_ratio":       ltv,
		"property_score":  score,
		"pmi_required":    ltv > 80,
	}}, nil
}
