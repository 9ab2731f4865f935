package application

import "time"

// LoanType identifies the mortgage program being applied for.
type LoanType string

const (
	LoanTypeConventional LoanType = "conventional"
	LoanTypeFHA          LoanType = "fha"
	LoanTypeVA           LoanType = "va"
	LoanTypeUSDA         LoanType = "usda"
	LoanTypeJumbo        LoanType = "jumbo"
)

// ProcessingStatus tracks an application through the pipeline.
type ProcessingStatus string

const (
	StatusPending        ProcessingStatus = "pending"
	StatusInProgress     ProcessingStatus = "in_progress"
	StatusApproved       ProcessingStatus = "approved"
	StatusDenied         ProcessingStatus = "denied"
	StatusRequiresReview ProcessingStatus = "requires_review"
	StatusFailed         ProcessingStatus = "failed"
	StatusCancelled      ProcessingStatus = "cancelled"
)

// Borrower holds identity and income data for the applicant.
type Borrower struct {
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	SSN              string  `json:"ssn"`
	DateOfBirth      string  `json:"date_of_birth,omitempty"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	CurrentAddress   string  `json:"current_address,omitempty"`
	EmploymentStatus string  `json:"employment_status"`
	EmployerName     string  `json:"employer_name,omitempty"`
	AnnualIncome     float64 `json:"annual_income"`
	MonthlyDebts     float64 `json:"monthly_debts,omitempty"`
}

// Property describes the home being financed.
type Property struct {
	Address       string  `json:"address"`
	PropertyType  string  `json:"property_type,omitempty"`
	PropertyValue float64 `json:"property_value"`
	YearBuilt     int     `json:"year_built,omitempty"`
	AnnualTaxes   float64 `json:"annual_taxes,omitempty"`
	MonthlyHOA    float64 `json:"monthly_hoa,omitempty"`
}

// LoanDetails describes the requested financing.
type LoanDetails struct {
	LoanAmount    float64  `json:"loan_amount"`
	LoanType      LoanType `json:"loan_type"`
	LoanTermYears int      `json:"loan_term_years"`
	DownPayment   float64  `json:"down_payment"`
	Purpose       string   `json:"purpose,omitempty"`
}

// Document is an uploaded supporting document awaiting processing.
type Document struct {
	DocumentID   string         `json:"document_id"`
	DocumentType string         `json:"document_type"`
	Filename     string         `json:"filename,omitempty"`
	Extracted    map[string]any `json:"extracted,omitempty"`
}

// Application is a complete mortgage application record. It is the input
// record carried through every workflow execution; the engine never mutates
// it — handlers read it and write their findings to the execution context.
type Application struct {
	ApplicationID string           `json:"application_id"`
	Borrower      Borrower         `json:"borrower"`
	Property      Property         `json:"property"`
	Loan          LoanDetails      `json:"loan"`
	Documents     []Document       `json:"documents,omitempty"`
	Status        ProcessingStatus `json:"status,omitempty"`
	SubmittedAt   time.Time        `json:"submitted_at,omitempty"`
	Notes         []string         `json:"notes,omitempty"`
}

// MonthlyIncome returns the borrower's gross monthly income.
func (a *Application) MonthlyIncome() float64 {
	if a == nil || a.Borrower.AnnualIncome <= 0 {
		return 0
	}
	return a.Borrower.AnnualIncome / 12
}

// LTV returns the requested loan-to-value ratio as a percentage, or zero when
// the property value is unknown.
func (a *Application) LTV() float64 {
	if a == nil || a.Property.PropertyValue <= 0 {
		return 0
	}
	return a.Loan.LoanAmount / a.Property.PropertyValue * 100
}
