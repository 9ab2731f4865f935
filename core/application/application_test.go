package application

import "testing"

func sampleApplication() *Application {
	return &Application{
		ApplicationID: "APP-2024-001",
		Borrower: Borrower{
			FirstName:        "Ada",
			LastName:         "Hopper",
			SSN:              "123-45-6789",
			EmploymentStatus: "employed",
			AnnualIncome:     96000,
			MonthlyDebts:     1200,
		},
		Property: Property{
			Address:       "12 Ridgeway Ave, Portland OR 97201",
			PropertyValue: 450000,
		},
		Loan: LoanDetails{
			LoanAmount:    360000,
			LoanType:      LoanTypeConventional,
			LoanTermYears: 30,
			DownPayment:   90000,
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := Validate(sampleApplication()); err != nil {
		t.Fatalf("expected valid application: %v", err)
	}
}

func TestValidateRejectsMissingBorrower(t *testing.T) {
	app := sampleApplication()
	app.Borrower.FirstName = ""
	if err := Validate(app); err == nil {
		t.Fatalf("expected validation failure for empty first name")
	}
}

func TestValidateRejectsBadSSN(t *testing.T) {
	app := sampleApplication()
	app.Borrower.SSN = "123456789"
	if err := Validate(app); err == nil {
		t.Fatalf("expected validation failure for malformed ssn")
	}
}

func TestValidateRejectsZeroLoan(t *testing.T) {
	app := sampleApplication()
	app.Loan.LoanAmount = 0
	if err := Validate(app); err == nil {
		t.Fatalf("expected validation failure for zero loan amount")
	}
}

func TestDerivedRatios(t *testing.T) {
	app := sampleApplication()
	if got := app.MonthlyIncome(); got != 8000 {
		t.Fatalf("unexpected monthly income: %v", got)
	}
	if got := app.LTV(); got != 80 {
		t.Fatalf("unexpected ltv: %v", got)
	}
	var nilApp *Application
	if nilApp.MonthlyIncome() != 0 || nilApp.LTV() != 0 {
		t.Fatalf("nil application should produce zero ratios")
	}
}
