package handlers

import (
	"context"
	"testing"

	"github.com/lendcore/lendcore/core/application"
	"github.com/lendcore/lendcore/core/workflow"
)

func strongApp() *application.Application {
	return &application.Application{
		ApplicationID: "APP-H-1",
		Borrower: application.Borrower{
			FirstName:        "Ada",
			LastName:         "Hopper",
			EmploymentStatus: "employed",
			AnnualIncome:     180000,
			MonthlyDebts:     500,
		},
		Property: application.Property{Address: "12 Ridgeway Ave", PropertyValue: 500000},
		Loan: application.LoanDetails{
			LoanAmount:    350000,
			LoanType:      application.LoanTypeConventional,
			LoanTermYears: 30,
			DownPayment:   150000,
		},
		Documents: []application.Document{
			{DocumentID: "d1", DocumentType: "paystub"},
			{DocumentID: "d2", DocumentType: "w2"},
			{DocumentID: "d3", DocumentType: "bank_statement"},
			{DocumentID: "d4", DocumentType: "tax_return"},
		},
	}
}

func weakApp() *application.Application {
	return &application.Application{
		ApplicationID: "APP-H-2",
		Borrower: application.Borrower{
			FirstName:        "Max",
			LastName:         "Strained",
			EmploymentStatus: "unemployed",
			AnnualIncome:     30000,
			MonthlyDebts:     1800,
		},
		Property: application.Property{Address: "9 Hill Rd", PropertyValue: 400000},
		Loan: application.LoanDetails{
			LoanAmount:    395000,
			LoanType:      application.LoanTypeConventional,
			LoanTermYears: 30,
		},
	}
}

func invoke(t *testing.T, h workflow.Handler, wctx *workflow.Context) *workflow.Result {
	t.Helper()
	res, err := h.Invoke(context.Background(), wctx)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	return res
}

func TestDocumentHandlerReportsMissing(t *testing.T) {
	app := strongApp()
	app.Documents = app.Documents[:2]
	wctx := workflow.NewContext(app)
	res := invoke(t, &DocumentHandler{}, wctx)
	if !res.Success {
		t.Fatalf("document handler should not fail the step: %+v", res)
	}
	if res.Payload["documents_complete"].(bool) {
		t.Fatalf("expected incomplete document set")
	}
	if res.Payload["completeness_score"].(float64) != 50 {
		t.Fatalf("unexpected completeness: %v", res.Payload["completeness_score"])
	}
}

func TestIncomeHandlerComputesDTI(t *testing.T) {
	wctx := workflow.NewContext(strongApp())
	res := invoke(t, &IncomeHandler{}, wctx)
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if got := res.Payload["monthly_income"].(float64); got != 15000 {
		t.Fatalf("monthly income: %v", got)
	}
	// (500 + 350000*0.006) / 15000 * 100
	want := (500 + 2100.0) / 15000 * 100
	if got := res.Payload["dti_ratio"].(float64); got != want {
		t.Fatalf("dti: got %v want %v", got, want)
	}
}

func TestIncomeHandlerNoIncome(t *testing.T) {
	app := weakApp()
	app.Borrower.AnnualIncome = 0
	res := invoke(t, &IncomeHandler{}, workflow.NewContext(app))
	if res.Success {
		t.Fatalf("expected failure without income")
	}
}

func TestCreditHandlerDeterministicTiers(t *testing.T) {
	strong := invoke(t, &CreditHandler{}, workflow.NewContext(strongApp()))
	again := invoke(t, &CreditHandler{}, workflow.NewContext(strongApp()))
	if strong.Payload["credit_score"] != again.Payload["credit_score"] {
		t.Fatalf("credit score not deterministic")
	}
	if tier := strong.Payload["credit_tier"].(string); tier != "excellent" {
		t.Fatalf("expected excellent tier for strong profile, got %s (score %v)", tier, strong.Payload["credit_score"])
	}
	weak := invoke(t, &CreditHandler{}, workflow.NewContext(weakApp()))
	if weak.Payload["credit_score"].(int) >= strong.Payload["credit_score"].(int) {
		t.Fatalf("weak profile should score below strong profile")
	}
}

func TestPropertyHandlerLTV(t *testing.T) {
	res := invoke(t, &PropertyHandler{}, workflow.NewContext(strongApp()))
	ltv := res.Payload["ltv_ratio"].(float64)
	if ltv <= 0 || ltv >= 80 {
		t.Fatalf("expected sub-80 ltv for strong profile, got %v", ltv)
	}
	if res.Payload["pmi_required"].(bool) {
		t.Fatalf("pmi should not be required below 80%% ltv")
	}
}

func TestRiskHandlerTreatsMissingUpstreamAsMaxRisk(t *testing.T) {
	// No upstream results at all: must not fault, must report critical risk.
	res := invoke(t, &RiskHandler{}, workflow.NewContext(strongApp()))
	if !res.Success {
		t.Fatalf("risk handler must tolerate missing upstream data: %+v", res)
	}
	if lvl := res.Payload["risk_level"].(string); lvl != "critical" && lvl != "high" {
		t.Fatalf("expected elevated risk with no upstream data, got %s", lvl)
	}
}

// runPipeline feeds the handlers in dependency order, as the engine would.
func runPipeline(t *testing.T, app *application.Application) *workflow.Context {
	t.Helper()
	wctx := workflow.NewContext(app)
	stages := []struct {
		name string
		h    workflow.Handler
	}{
		{DocumentAgent, &DocumentHandler{}},
		{IncomeAgent, &IncomeHandler{}},
		{CreditAgent, &CreditHandler{}},
		{PropertyAgent, &PropertyHandler{}},
		{RiskAgent, &RiskHandler{}},
		{UnderwritingAgent, &UnderwritingHandler{}},
	}
	for _, stage := range stages {
		res, err := stage.h.Invoke(context.Background(), wctx)
		if err != nil {
			t.Fatalf("%s: %v", stage.name, err)
		}
		if res.Success {
			wctx.SetResult(stage.name, res)
		}
	}
	return wctx
}

func TestUnderwritingApprovesStrongProfile(t *testing.T) {
	wctx := runPipeline(t, strongApp())
	res, _ := wctx.Result(UnderwritingAgent)
	if res == nil {
		t.Fatalf("underwriting produced no result")
	}
	if dec := res.Payload["decision"].(string); dec != "approve" {
		t.Fatalf("expected approval for strong profile, got %s (score %v)", dec, res.Payload["overall_score"])
	}
	if _, ok := res.Payload["loan_terms"].(map[string]any); !ok {
		t.Fatalf("approval payload must include loan terms")
	}
}

func TestUnderwritingDeniesWeakProfile(t *testing.T) {
	wctx := runPipeline(t, weakApp())
	res, _ := wctx.Result(UnderwritingAgent)
	if res == nil {
		t.Fatalf("underwriting produced no result")
	}
	if dec := res.Payload["decision"].(string); dec != "deny" {
		t.Fatalf("expected denial for weak profile, got %s (score %v)", dec, res.Payload["overall_score"])
	}
	adverse, _ := res.Payload["adverse_actions"].([]any)
	if len(adverse) == 0 {
		t.Fatalf("denial payload must include adverse actions")
	}
	if _, ok := res.Payload["loan_terms"]; ok {
		t.Fatalf("denial payload must not include loan terms")
	}
}
