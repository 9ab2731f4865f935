package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var promOnce *Prom

func testProm(t *testing.T) *Prom {
	t.Helper()
	// Prometheus collectors register globally; reuse one instance per process.
	if promOnce == nil {
		promOnce = NewProm("lendcore_test")
	}
	return promOnce
}

func TestPromCounters(t *testing.T) {
	p := testProm(t)
	p.IncExecutionStarted("parallel_mortgage_processing")
	p.IncExecutionCompleted("parallel_mortgage_processing", "completed")
	p.IncStepCompleted("parallel_mortgage_processing", "underwriting", "completed")
	p.ObserveStepDuration("parallel_mortgage_processing", "underwriting", 0.42)
	p.ObserveExecutionDuration("parallel_mortgage_processing", 2.5)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	body := rec.Body.String()
	if !strings.Contains(body, "lendcore_test_executions_started_total") {
		t.Fatalf("metrics endpoint missing counter:\n%s", body[:min(len(body), 500)])
	}
}

func TestNoopIsSafe(t *testing.T) {
	var m WorkflowMetrics = Noop{}
	m.IncExecutionStarted("wf")
	m.IncExecutionCompleted("wf", "failed")
	m.IncStepCompleted("wf", "s", "failed")
	m.ObserveStepDuration("wf", "s", 1)
	m.ObserveExecutionDuration("wf", 1)
}
