package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lendcore/lendcore/core/application"
	"github.com/lendcore/lendcore/core/infra/logging"
)

var (
	// ErrWorkflowNotFound is returned when executing an unregistered workflow.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrExecutionNotFound is returned for status queries on unknown executions.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrHandlerNotFound marks a dispatch against an unregistered handler. It
	// surfaces as a retryable step failure, not an execution error.
	ErrHandlerNotFound = errors.New("no handler registered")
	// ErrDeadlock marks a scheduling failure: unresolved steps remain but none
	// are eligible or retryable. Distinct from an ordinary step failure.
	ErrDeadlock = errors.New("scheduling deadlock: no eligible or retryable steps remain")

	errCancelled = errors.New("execution cancelled")
)

// Engine schedules workflow executions over a dependency graph of steps.
// Definitions are immutable after registration; all per-run state lives on
// the Execution, so many runs of one definition can proceed concurrently.
type Engine struct {
	registry *Registry
	preds    *predicateEvaluator

	mu         sync.RWMutex
	workflows  map[string]*Definition
	executions map[string]*Execution

	// Optional observability hooks. Parallel rounds invoke OnStepFinished
	// from multiple goroutines, so hooks must be safe for concurrent use.
	OnExecutionStarted  func(ex *Execution)
	OnExecutionFinished func(ex *Execution)
	OnStepFinished      func(ex *Execution, step *Step, state *StepState)
}

// NewEngine creates an engine bound to a handler registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{
		registry:   registry,
		preds:      newPredicateEvaluator(),
		workflows:  make(map[string]*Definition),
		executions: make(map[string]*Execution),
	}
}

// RegisterWorkflow validates and registers a definition.
func (e *Engine) RegisterWorkflow(def *Definition) error {
	if def == nil {
		return fmt.Errorf("workflow definition required")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.workflows[def.ID] = def
	e.mu.Unlock()
	logging.Info("workflow-engine", "workflow registered", "workflow_id", def.ID, "name", def.Name, "steps", len(def.Steps))
	return nil
}

// Workflow returns a registered definition.
func (e *Engine) Workflow(id string) (*Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.workflows[id]
	return def, ok
}

// Execution returns a live or retained execution by id.
func (e *Engine) Execution(id string) (*Execution, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ex, ok := e.executions[id]
	return ex, ok
}

// Execute runs a workflow to a terminal state and returns the execution.
// Run failures (step failures, deadlock, timeout) are recorded on the
// execution rather than returned; the only error is ErrWorkflowNotFound.
// An empty executionID gets a generated one.
func (e *Engine) Execute(ctx context.Context, workflowID string, app *application.Application, executionID string) (*Execution, error) {
	def, ok := e.Workflow(workflowID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if executionID == "" {
		executionID = uuid.NewString()
	}

	ex := newExecution(executionID, def, NewContext(app))
	e.mu.Lock()
	e.executions[executionID] = ex
	e.mu.Unlock()

	started := time.Now().UTC()
	ex.withLock(func() {
		ex.Status = ExecutionStatusRunning
		ex.StartedAt = &started
	})
	logging.Info("workflow-engine", "execution started", "execution_id", executionID, "workflow_id", workflowID, "parallel", def.Parallel)
	if e.OnExecutionStarted != nil {
		e.OnExecutionStarted(ex)
	}

	runCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	var err error
	if def.Parallel {
		err = e.runParallel(runCtx, def, ex)
	} else {
		err = e.runSequential(runCtx, def, ex)
	}

	switch {
	case err == nil:
		ex.finish(ExecutionStatusCompleted, "")
	case errors.Is(err, errCancelled):
		// Cancel already stamped the execution.
	case errors.Is(err, context.DeadlineExceeded) && def.Timeout > 0:
		ex.finish(ExecutionStatusFailed, fmt.Sprintf("workflow timed out after %s", def.Timeout))
	default:
		ex.finish(ExecutionStatusFailed, err.Error())
	}

	status := ex.CurrentStatus()
	if status == ExecutionStatusCompleted {
		logging.Info("workflow-engine", "execution completed", "execution_id", executionID, "workflow_id", workflowID)
	} else {
		logging.Warn("workflow-engine", "execution finished", "execution_id", executionID, "workflow_id", workflowID, "status", string(status), "error", ex.ErrorMessage())
	}
	if e.OnExecutionFinished != nil {
		e.OnExecutionFinished(ex)
	}
	return ex, nil
}

func (e *Engine) runSequential(ctx context.Context, def *Definition, ex *Execution) error {
	for {
		if err := e.gate(ctx, ex); err != nil {
			return err
		}
		steps := e.eligibleSteps(def, ex)
		if len(steps) == 0 {
			done, err := e.progressGuard(def, ex)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}
		step := steps[0]
		e.runStep(ctx, ex, step)
		if st := ex.state(step.ID); st.Status == StepStatusFailed && def.OnError == ErrorPolicyStop {
			return fmt.Errorf("step %s failed: %s", step.ID, st.Error)
		}
	}
}

func (e *Engine) runParallel(ctx context.Context, def *Definition, ex *Execution) error {
	for {
		if err := e.gate(ctx, ex); err != nil {
			return err
		}
		steps := e.eligibleSteps(def, ex)
		if len(steps) == 0 {
			done, err := e.progressGuard(def, ex)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			continue
		}
		var wg sync.WaitGroup
		for _, step := range steps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.runStep(ctx, ex, step)
			}()
		}
		wg.Wait()
		if def.OnError == ErrorPolicyStop {
			for _, step := range steps {
				if st := ex.state(step.ID); st.Status == StepStatusFailed {
					return fmt.Errorf("step %s failed: %s", step.ID, st.Error)
				}
			}
		}
	}
}

// gate blocks while the execution is paused and aborts the run when the
// execution is cancelled or the context expires. Cancellation is cooperative:
// it takes effect between steps (or rounds), never mid-invocation.
func (e *Engine) gate(ctx context.Context, ex *Execution) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		switch ex.CurrentStatus() {
		case ExecutionStatusCancelled:
			return errCancelled
		case ExecutionStatusPaused:
			select {
			case <-ex.resumeCh:
			case <-ex.cancelCh:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return nil
		}
	}
}

// eligibleSteps returns, in declaration order, every step that is pending
// (or reset for retry), has all dependencies completed, and passes its
// gating predicate.
func (e *Engine) eligibleSteps(def *Definition, ex *Execution) []*Step {
	var out []*Step
	for _, s := range def.Steps {
		st := ex.state(s.ID)
		if st.Status != StepStatusPending && st.Status != StepStatusRetrying {
			continue
		}
		if !depsCompleted(s, ex) {
			continue
		}
		if s.Condition != "" {
			ok, err := e.preds.Eval(s.Condition, ex.Context().predicateEnv())
			if err != nil {
				logging.Warn("workflow-engine", "predicate eval failed", "execution_id", ex.ID, "step_id", s.ID, "error", err)
				continue
			}
			if !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func depsCompleted(s *Step, ex *Execution) bool {
	for _, dep := range s.DependsOn {
		st := ex.state(dep)
		if st == nil || st.Status != StepStatusCompleted {
			return false
		}
	}
	return true
}

// progressGuard decides what happens when no step is eligible. Failed steps
// with retry budget left are reset to run again. Steps blocked behind a
// permanently failed dependency are marked skipped so the run can terminate.
// Anything still unresolved after that is a deadlock.
func (e *Engine) progressGuard(def *Definition, ex *Execution) (done bool, err error) {
	retried := false
	ex.withLock(func() {
		for _, s := range def.Steps {
			st := ex.Steps[s.ID]
			if st.Status == StepStatusFailed && st.RetryCount < s.MaxRetries {
				st.Status = StepStatusRetrying
				st.RetryCount++
				st.Error = ""
				st.StartedAt = nil
				st.CompletedAt = nil
				retried = true
				logging.Info("workflow-engine", "step scheduled for retry", "execution_id", ex.ID, "step_id", s.ID, "attempt", st.RetryCount+1)
			}
		}
	})
	if retried {
		return false, nil
	}

	ex.withLock(func() {
		for changed := true; changed; {
			changed = false
			for _, s := range def.Steps {
				st := ex.Steps[s.ID]
				if st.Status != StepStatusPending {
					continue
				}
				if dep := blockingDep(s, ex.Steps); dep != "" {
					st.Status = StepStatusSkipped
					st.Error = fmt.Sprintf("dependency %s failed", dep)
					changed = true
					logging.Warn("workflow-engine", "step unreachable", "execution_id", ex.ID, "step_id", s.ID, "blocked_by", dep)
				}
			}
		}
	})

	var stuck []string
	for _, s := range def.Steps {
		if !ex.state(s.ID).Terminal(s.MaxRetries) {
			stuck = append(stuck, s.ID)
		}
	}
	if len(stuck) == 0 {
		return true, nil
	}
	return false, fmt.Errorf("%w (steps: %s)", ErrDeadlock, strings.Join(stuck, ", "))
}

// blockingDep returns the first dependency that can never complete. Callers
// hold the execution lock and have already exhausted the retry budget, so a
// failed dependency here is permanently failed.
func blockingDep(s *Step, states map[string]*StepState) string {
	for _, dep := range s.DependsOn {
		st, ok := states[dep]
		if !ok {
			return dep
		}
		if st.Status == StepStatusFailed || st.Status == StepStatusSkipped {
			return dep
		}
	}
	return ""
}

// runStep executes one step: marks it running, races the handler against the
// step timeout, and records the outcome. Successful results are stored in
// the execution context under the step's handler name.
func (e *Engine) runStep(ctx context.Context, ex *Execution, step *Step) {
	st := ex.state(step.ID)
	start := time.Now().UTC()
	ex.withLock(func() {
		st.Status = StepStatusRunning
		st.StartedAt = &start
		st.Error = ""
	})
	logging.Info("workflow-engine", "step started", "execution_id", ex.ID, "step_id", step.ID, "attempt", st.RetryCount+1)

	res, err := e.invoke(ctx, ex, step)
	end := time.Now().UTC()

	ex.withLock(func() {
		st.CompletedAt = &end
		switch {
		case err != nil:
			st.Status = StepStatusFailed
			st.Error = err.Error()
		case res != nil && !res.Success:
			st.Status = StepStatusFailed
			st.Error = res.Error
			if st.Error == "" {
				st.Error = "handler reported failure"
			}
		default:
			st.Status = StepStatusCompleted
		}
	})

	if st.Status == StepStatusCompleted {
		if res == nil {
			res = &Result{Success: true}
		}
		if res.Duration == 0 {
			res.Duration = end.Sub(start)
		}
		if step.Handler != "" {
			ex.Context().SetResult(step.Handler, res)
		}
		logging.Info("workflow-engine", "step completed", "execution_id", ex.ID, "step_id", step.ID, "duration", res.Duration.String())
	} else {
		logging.Warn("workflow-engine", "step failed", "execution_id", ex.ID, "step_id", step.ID, "error", st.Error)
	}
	if e.OnStepFinished != nil {
		e.OnStepFinished(ex, step, st)
	}
}

// invoke resolves the handler and races it against the step timeout. A step
// with no bound handler is structural and succeeds immediately. An
// unregistered handler is an ordinary step failure, eligible for retry.
func (e *Engine) invoke(ctx context.Context, ex *Execution, step *Step) (*Result, error) {
	if step.Handler == "" {
		return &Result{Success: true}, nil
	}
	h, ok := e.registry.Get(step.Handler)
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrHandlerNotFound, step.Handler)
	}

	runCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type outcome struct {
		res *Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		res, err := h.Invoke(runCtx, ex.Context())
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-runCtx.Done():
		if step.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("timed out after %s", step.Timeout)
		}
		return nil, runCtx.Err()
	}
}

// StatusReport is the answer to a status query.
type StatusReport struct {
	ExecutionID    string          `json:"execution_id"`
	WorkflowID     string          `json:"workflow_id"`
	Status         ExecutionStatus `json:"status"`
	Progress       float64         `json:"progress"`
	CompletedSteps []string        `json:"completed_steps"`
	TotalSteps     int             `json:"total_steps"`
	Error          string          `json:"error,omitempty"`
}

// Status reports progress for an execution.
func (e *Engine) Status(executionID string) (*StatusReport, error) {
	ex, ok := e.Execution(executionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	completed := ex.CompletedSteps()
	sort.Strings(completed)
	return &StatusReport{
		ExecutionID:    ex.ID,
		WorkflowID:     ex.WorkflowID,
		Status:         ex.CurrentStatus(),
		Progress:       ex.Progress(),
		CompletedSteps: completed,
		TotalSteps:     len(ex.Steps),
		Error:          ex.ErrorMessage(),
	}, nil
}

// Cancel marks a running or paused execution cancelled. It halts further
// scheduling rounds but lets any in-flight handler run to completion.
func (e *Engine) Cancel(executionID string) bool {
	ex, ok := e.Execution(executionID)
	if !ok {
		return false
	}
	cancelled := false
	ex.withLock(func() {
		switch ex.Status {
		case ExecutionStatusRunning, ExecutionStatusPaused:
			ex.markCancelled()
			cancelled = true
		}
	})
	if cancelled {
		logging.Info("workflow-engine", "execution cancelled", "execution_id", executionID)
	}
	return cancelled
}

// Pause suspends scheduling for a running execution at the next round
// boundary. In-flight steps finish normally.
func (e *Engine) Pause(executionID string) bool {
	ex, ok := e.Execution(executionID)
	if !ok {
		return false
	}
	paused := false
	ex.withLock(func() {
		if ex.Status == ExecutionStatusRunning {
			ex.Status = ExecutionStatusPaused
			paused = true
		}
	})
	if paused {
		logging.Info("workflow-engine", "execution paused", "execution_id", executionID)
	}
	return paused
}

// Resume restarts scheduling for a paused execution.
func (e *Engine) Resume(executionID string) bool {
	ex, ok := e.Execution(executionID)
	if !ok {
		return false
	}
	resumed := false
	ex.withLock(func() {
		if ex.Status == ExecutionStatusPaused {
			ex.Status = ExecutionStatusRunning
			resumed = true
		}
	})
	if resumed {
		select {
		case ex.resumeCh <- struct{}{}:
		default:
		}
		logging.Info("workflow-engine", "execution resumed", "execution_id", executionID)
	}
	return resumed
}

// ListExecutions returns retained executions, optionally filtered by status,
// oldest first.
func (e *Engine) ListExecutions(status ExecutionStatus) []*Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Execution, 0, len(e.executions))
	for _, ex := range e.executions {
		if status != "" && ex.CurrentStatus() != status {
			continue
		}
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Cleanup drops terminal executions whose completion time is older than the
// given retention window and returns how many were removed.
func (e *Engine) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, ex := range e.executions {
		if !ex.Terminal() {
			continue
		}
		ex.mu.RLock()
		done := ex.CompletedAt
		ex.mu.RUnlock()
		if done != nil && done.Before(cutoff) {
			delete(e.executions, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Info("workflow-engine", "executions cleaned up", "removed", removed, "older_than", olderThan.String())
	}
	return removed
}
