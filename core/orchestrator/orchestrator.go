package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lendcore/lendcore/core/application"
	"github.com/lendcore/lendcore/core/decision"
	"github.com/lendcore/lendcore/core/handlers"
	"github.com/lendcore/lendcore/core/infra/bus"
	"github.com/lendcore/lendcore/core/infra/config"
	"github.com/lendcore/lendcore/core/infra/logging"
	"github.com/lendcore/lendcore/core/infra/metrics"
	"github.com/lendcore/lendcore/core/workflow"
)

const component = "orchestrator"

// Store archives executions and decisions. *workflow.RedisStore satisfies it;
// a nil Store disables archival.
type Store interface {
	SaveExecution(ctx context.Context, ex *workflow.Execution) error
	SaveDecision(ctx context.Context, executionID string, decision any) error
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// Options configures an Orchestrator. Zero values are usable: no store, no
// bus, noop metrics, default step config.
type Options struct {
	Store      Store
	Bus        bus.Publisher
	Metrics    metrics.WorkflowMetrics
	Steps      *config.StepsConfig
	MaxRetries int
}

// Orchestrator runs mortgage applications through the registered pipelines
// and aggregates the outcome into a loan decision. It owns the engine, the
// handler registry, and the observability wiring around both.
type Orchestrator struct {
	engine  *workflow.Engine
	store   Store
	bus     bus.Publisher
	metrics metrics.WorkflowMetrics

	mu        sync.RWMutex
	decisions map[string]*decision.Decision
	listeners []func(subject string, evt bus.Event)
}

// New builds an orchestrator with both mortgage pipelines registered and all
// assessment handlers bound.
func New(opts Options) (*Orchestrator, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}

	reg := workflow.NewRegistry()
	handlers.RegisterAll(reg)

	o := &Orchestrator{
		engine:    workflow.NewEngine(reg),
		store:     opts.Store,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		decisions: make(map[string]*decision.Decision),
	}
	for _, def := range Pipelines(opts.Steps, opts.MaxRetries) {
		if err := o.engine.RegisterWorkflow(def); err != nil {
			return nil, fmt.Errorf("register pipeline %s: %w", def.ID, err)
		}
	}

	o.engine.OnExecutionStarted = func(ex *workflow.Execution) {
		o.metrics.IncExecutionStarted(ex.WorkflowID)
		o.publish(bus.SubjectExecutionStarted, bus.Event{
			ExecutionID: ex.ID,
			WorkflowID:  ex.WorkflowID,
			Status:      string(ex.CurrentStatus()),
		})
	}
	o.engine.OnStepFinished = func(ex *workflow.Execution, step *workflow.Step, st *workflow.StepState) {
		o.metrics.IncStepCompleted(ex.WorkflowID, step.ID, string(st.Status))
		if st.StartedAt != nil && st.CompletedAt != nil {
			o.metrics.ObserveStepDuration(ex.WorkflowID, step.ID, st.CompletedAt.Sub(*st.StartedAt).Seconds())
		}
		o.publish(bus.SubjectStepFinished, bus.Event{
			ExecutionID: ex.ID,
			WorkflowID:  ex.WorkflowID,
			StepID:      step.ID,
			Status:      string(st.Status),
			Error:       st.Error,
		})
	}
	o.engine.OnExecutionFinished = func(ex *workflow.Execution) {
		status := ex.CurrentStatus()
		o.metrics.IncExecutionCompleted(ex.WorkflowID, string(status))
		if ex.StartedAt != nil && ex.CompletedAt != nil {
			o.metrics.ObserveExecutionDuration(ex.WorkflowID, ex.CompletedAt.Sub(*ex.StartedAt).Seconds())
		}
		o.publish(bus.SubjectExecutionFinished, bus.Event{
			ExecutionID: ex.ID,
			WorkflowID:  ex.WorkflowID,
			Status:      string(status),
			Error:       ex.ErrorMessage(),
		})
		o.archiveExecution(ex)
	}
	return o, nil
}

// Listen registers an in-process subscriber for lifecycle events, in addition
// to any configured bus. Listeners must be registered before processing
// starts and must not block.
func (o *Orchestrator) Listen(fn func(subject string, evt bus.Event)) {
	o.mu.Lock()
	o.listeners = append(o.listeners, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(subject string, evt bus.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if o.bus != nil {
		if err := o.bus.Publish(subject, evt); err != nil {
			logging.Warn(component, "event publish failed", "subject", subject, "error", err)
		}
	}
	o.mu.RLock()
	listeners := o.listeners
	o.mu.RUnlock()
	for _, fn := range listeners {
		fn(subject, evt)
	}
}

func (o *Orchestrator) archiveExecution(ex *workflow.Execution) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveExecution(ctx, ex); err != nil {
		logging.Warn(component, "execution archive failed", "execution_id", ex.ID, "error", err)
	}
}

func (o *Orchestrator) archiveDecision(executionID string, dec *decision.Decision) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.SaveDecision(ctx, executionID, dec); err != nil {
		logging.Warn(component, "decision archive failed", "execution_id", executionID, "error", err)
	}
}

// ProcessApplication validates the application, runs it through the named
// pipeline, and aggregates the outcome into a loan decision. The decision is
// always present when the error is nil, even for failed runs: aggregation
// falls back to a system denial. workflowID defaults to the standard
// pipeline; an empty executionID gets a generated one.
func (o *Orchestrator) ProcessApplication(ctx context.Context, app *application.Application, workflowID, executionID string) (*workflow.Execution, *decision.Decision, error) {
	if workflowID == "" {
		workflowID = WorkflowStandard
	}
	if err := application.Validate(app); err != nil {
		return nil, nil, fmt.Errorf("invalid application: %w", err)
	}
	def, ok := o.engine.Workflow(workflowID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, workflowID)
	}

	app.Status = application.StatusInProgress
	logging.Info(component, "processing application", "application_id", app.ApplicationID, "workflow_id", workflowID)

	ex, err := o.engine.Execute(ctx, workflowID, app, executionID)
	if err != nil {
		return nil, nil, err
	}

	dec := decision.Extract(def, ex)
	o.mu.Lock()
	o.decisions[ex.ID] = dec
	o.mu.Unlock()

	if ex.CurrentStatus() == workflow.ExecutionStatusCompleted {
		switch dec.Decision {
		case decision.TypeApprove:
			app.Status = application.StatusApproved
		case decision.TypeDeny:
			app.Status = application.StatusDenied
		default:
			app.Status = application.StatusRequiresReview
		}
	} else {
		app.Status = application.StatusFailed
	}

	o.archiveDecision(ex.ID, dec)
	o.publish(bus.SubjectDecisionIssued, bus.Event{
		ExecutionID: ex.ID,
		WorkflowID:  ex.WorkflowID,
		Status:      string(dec.Decision),
		Data: map[string]any{
			"application_id": dec.ApplicationID,
			"overall_score":  dec.OverallScore,
		},
	})
	logging.Info(component, "decision issued", "application_id", app.ApplicationID, "execution_id", ex.ID, "decision", string(dec.Decision), "score", dec.OverallScore)
	return ex, dec, nil
}

// Report is the orchestrator's answer to a status query: the engine's step
// level report plus the phase-level view.
type Report struct {
	workflow.StatusReport
	Phases *Progress `json:"phases"`
}

// Status reports step and phase progress for an execution.
func (o *Orchestrator) Status(executionID string) (*Report, error) {
	sr, err := o.engine.Status(executionID)
	if err != nil {
		return nil, err
	}
	ex, _ := o.engine.Execution(executionID)
	return &Report{StatusReport: *sr, Phases: progressFor(ex)}, nil
}

// Decision returns the aggregated decision for a finished execution.
func (o *Orchestrator) Decision(executionID string) (*decision.Decision, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	dec, ok := o.decisions[executionID]
	return dec, ok
}

// Cancel stops a running or paused execution at the next round boundary.
func (o *Orchestrator) Cancel(executionID string) bool { return o.engine.Cancel(executionID) }

// Pause suspends a running execution.
func (o *Orchestrator) Pause(executionID string) bool { return o.engine.Pause(executionID) }

// Resume restarts a paused execution.
func (o *Orchestrator) Resume(executionID string) bool { return o.engine.Resume(executionID) }

// ListExecutions returns retained executions, optionally filtered by status.
func (o *Orchestrator) ListExecutions(status workflow.ExecutionStatus) []*workflow.Execution {
	return o.engine.ListExecutions(status)
}

// Cleanup drops terminal executions (and their cached decisions) older than
// the retention window, in memory and in the archive store.
func (o *Orchestrator) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	o.mu.Lock()
	for id := range o.decisions {
		if ex, ok := o.engine.Execution(id); ok && !expired(ex, cutoff) {
			continue
		}
		delete(o.decisions, id)
	}
	o.mu.Unlock()

	removed := o.engine.Cleanup(olderThan)
	if o.store != nil {
		swept, err := o.store.Sweep(ctx, olderThan)
		if err != nil {
			return removed, fmt.Errorf("sweep archive: %w", err)
		}
		removed += swept
	}
	return removed, nil
}

func expired(ex *workflow.Execution, cutoff time.Time) bool {
	if !ex.Terminal() {
		return false
	}
	done := ex.CompletedTime()
	return done != nil && done.Before(cutoff)
}
