package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lendcore/lendcore/core/application"
	"github.com/lendcore/lendcore/core/decision"
	"github.com/lendcore/lendcore/core/infra/bus"
	"github.com/lendcore/lendcore/core/workflow"
)

func strongApplication() *application.Application {
	return &application.Application{
		ApplicationID: "APP-ORCH-1",
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

func weakApplication() *application.Application {
	return &application.Application{
		ApplicationID: "APP-ORCH-2",
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

// memStore is an in-memory Store for asserting archival behavior.
type memStore struct {
	mu         sync.Mutex
	executions map[string]*workflow.Execution
	decisions  map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		executions: make(map[string]*workflow.Execution),
		decisions:  make(map[string]any),
	}
}

func (m *memStore) SaveExecution(_ context.Context, ex *workflow.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[ex.ID] = ex
	return nil
}

func (m *memStore) SaveDecision(_ context.Context, executionID string, dec any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[executionID] = dec
	return nil
}

func (m *memStore) Sweep(context.Context, time.Duration) (int, error) { return 0, nil }

func newTestOrchestrator(t *testing.T, store Store) *Orchestrator {
	t.Helper()
	o, err := New(Options{Store: store})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestProcessApplicationApprovesStrongProfile(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	app := strongApplication()

	ex, dec, err := o.ProcessApplication(context.Background(), app, WorkflowStandard, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := ex.CurrentStatus(); got != workflow.ExecutionStatusCompleted {
		t.Fatalf("expected completed execution, got %s (%s)", got, ex.ErrorMessage())
	}
	if dec.Decision != decision.TypeApprove {
		t.Fatalf("expected approval, got %s (score %.1f)", dec.Decision, dec.OverallScore)
	}
	if app.Status != application.StatusApproved {
		t.Fatalf("application status not updated: %s", app.Status)
	}
	if err := dec.Validate(); err != nil {
		t.Fatalf("decision invalid: %v", err)
	}
}

func TestProcessApplicationDeniesWeakProfile(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	app := weakApplication()

	_, dec, err := o.ProcessApplication(context.Background(), app, WorkflowStandard, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if dec.Decision != decision.TypeDeny {
		t.Fatalf("expected denial, got %s (score %.1f)", dec.Decision, dec.OverallScore)
	}
	if app.Status != application.StatusDenied {
		t.Fatalf("application status not updated: %s", app.Status)
	}
	if len(dec.AdverseActions) == 0 {
		t.Fatalf("denial must carry adverse actions")
	}
}

func TestParallelPipelineMatchesStandard(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	_, std, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, "")
	if err != nil {
		t.Fatalf("standard: %v", err)
	}
	_, par, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowParallel, "")
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if std.Decision != par.Decision {
		t.Fatalf("pipelines disagree: standard=%s parallel=%s", std.Decision, par.Decision)
	}
	if std.OverallScore != par.OverallScore {
		t.Fatalf("pipelines disagree on score: standard=%.2f parallel=%.2f", std.OverallScore, par.OverallScore)
	}
}

func TestProcessApplicationRejectsInvalidIntake(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	app := strongApplication()
	app.Borrower.FirstName = ""

	if _, _, err := o.ProcessApplication(context.Background(), app, WorkflowStandard, ""); err == nil {
		t.Fatalf("expected intake validation error")
	}
}

func TestProcessApplicationUnknownWorkflow(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	_, _, err := o.ProcessApplication(context.Background(), strongApplication(), "no_such_pipeline", "")
	if err == nil {
		t.Fatalf("expected error for unknown workflow")
	}
}

func TestProcessApplicationArchivesOutcome(t *testing.T) {
	store := newMemStore()
	o := newTestOrchestrator(t, store)

	ex, _, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, "exec-archive-1")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.executions[ex.ID]; !ok {
		t.Fatalf("execution not archived")
	}
	if _, ok := store.decisions[ex.ID]; !ok {
		t.Fatalf("decision not archived")
	}
}

func TestStatusReportsPhaseProgress(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	ex, _, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	report, err := o.Status(ex.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != workflow.ExecutionStatusCompleted || report.Progress != 100 {
		t.Fatalf("unexpected report: %+v", report.StatusReport)
	}
	if report.TotalSteps != 6 || len(report.CompletedSteps) != 6 {
		t.Fatalf("expected six completed steps: %+v", report.StatusReport)
	}
	p := report.Phases
	if p.CurrentPhase != PhaseFinalization || p.OverallPercent != 100 {
		t.Fatalf("unexpected phase progress: %+v", p)
	}
	if p.PhaseStatus(PhaseUnderwriting) != "completed" {
		t.Fatalf("underwriting phase should be completed: %+v", p)
	}
}

func TestDecisionLookup(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	ex, dec, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	got, ok := o.Decision(ex.ID)
	if !ok || got != dec {
		t.Fatalf("decision lookup failed")
	}
	if _, ok := o.Decision("missing"); ok {
		t.Fatalf("expected miss for unknown execution")
	}
}

func TestListenReceivesLifecycleEvents(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	var mu sync.Mutex
	subjects := map[string]int{}
	o.Listen(func(subject string, evt bus.Event) {
		mu.Lock()
		subjects[subject]++
		mu.Unlock()
	})

	if _, _, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, ""); err != nil {
		t.Fatalf("process: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if subjects[bus.SubjectExecutionStarted] != 1 || subjects[bus.SubjectExecutionFinished] != 1 {
		t.Fatalf("execution lifecycle events missing: %v", subjects)
	}
	if subjects[bus.SubjectStepFinished] != 6 {
		t.Fatalf("expected six step events, got %d", subjects[bus.SubjectStepFinished])
	}
	if subjects[bus.SubjectDecisionIssued] != 1 {
		t.Fatalf("decision event missing: %v", subjects)
	}
}

func TestCleanupDropsExpiredDecisions(t *testing.T) {
	o := newTestOrchestrator(t, newMemStore())

	ex, _, err := o.ProcessApplication(context.Background(), strongApplication(), WorkflowStandard, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	// A zero-age cutoff treats everything terminal as expired.
	removed, err := o.Cleanup(context.Background(), 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one removed execution, got %d", removed)
	}
	if _, ok := o.Decision(ex.ID); ok {
		t.Fatalf("expired decision should be dropped")
	}
	if _, err := o.Status(ex.ID); err == nil {
		t.Fatalf("expired execution should be gone")
	}
}

func TestControlOnUnknownExecution(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	if o.Cancel("nope") || o.Pause("nope") || o.Resume("nope") {
		t.Fatalf("control actions must fail for unknown executions")
	}
}
