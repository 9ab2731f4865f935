package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkflowMetrics captures engine-level workflow metrics.
type WorkflowMetrics interface {
	IncExecutionStarted(workflow string)
	IncExecutionCompleted(workflow, status string)
	IncStepCompleted(workflow, step, status string)
	ObserveStepDuration(workflow, step string, durationSeconds float64)
	ObserveExecutionDuration(workflow string, durationSeconds float64)
}

// Noop implements WorkflowMetrics without emitting anything.
type Noop struct{}

func (Noop) IncExecutionStarted(string)                  {}
func (Noop) IncExecutionCompleted(string, string)        {}
func (Noop) IncStepCompleted(string, string, string)     {}
func (Noop) ObserveStepDuration(string, string, float64) {}
func (Noop) ObserveExecutionDuration(string, float64)    {}

// Prom implements WorkflowMetrics backed by Prometheus collectors.
type Prom struct {
	executionsStarted   *prometheus.CounterVec
	executionsCompleted *prometheus.CounterVec
	stepsCompleted      *prometheus.CounterVec
	stepDuration        *prometheus.HistogramVec
	executionDuration   *prometheus.HistogramVec
	once                sync.Once
}

// NewProm registers and returns Prometheus-backed workflow metrics.
func NewProm(namespace string) *Prom {
	p := &Prom{
		executionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_started_total",
			Help:      "Workflow executions started by workflow id",
		}, []string{"workflow"}),
		executionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_completed_total",
			Help:      "Workflow executions reaching a terminal state by workflow id and status",
		}, []string{"workflow", "status"}),
		stepsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_completed_total",
			Help:      "Steps reaching a terminal state by workflow, step and status",
		}, []string{"workflow", "step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"workflow", "step"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "End-to-end execution duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"workflow"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.executionsStarted,
			p.executionsCompleted,
			p.stepsCompleted,
			p.stepDuration,
			p.executionDuration,
		)
	})
}

func (p *Prom) IncExecutionStarted(workflow string) {
	p.executionsStarted.WithLabelValues(workflow).Inc()
}

func (p *Prom) IncExecutionCompleted(workflow, status string) {
	p.executionsCompleted.WithLabelValues(workflow, status).Inc()
}

func (p *Prom) IncStepCompleted(workflow, step, status string) {
	p.stepsCompleted.WithLabelValues(workflow, step, status).Inc()
}

func (p *Prom) ObserveStepDuration(workflow, step string, durationSeconds float64) {
	p.stepDuration.WithLabelValues(workflow, step).Observe(durationSeconds)
}

func (p *Prom) ObserveExecutionDuration(workflow string, durationSeconds float64) {
	p.executionDuration.WithLabelValues(workflow).Observe(durationSeconds)
}

// Handler exposes the default Prometheus registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
