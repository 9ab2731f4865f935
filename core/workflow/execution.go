package workflow

import (
	"encoding/json"
	"sync"
	"time"
)

// Execution is one run of a workflow definition. All per-step runtime state
// lives here, keyed by step id, so the registered Definition stays immutable
// and safe to share across concurrent runs.
type Execution struct {
	ID            string                `json:"id"`
	WorkflowID    string                `json:"workflow_id"`
	ApplicationID string                `json:"application_id,omitempty"`
	Steps         map[string]*StepState `json:"steps"`
	Status        ExecutionStatus       `json:"status"`
	Error         string                `json:"error,omitempty"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`

	ctx      *Context
	mu       sync.RWMutex
	cancelCh chan struct{}
	resumeCh chan struct{}
	cancel   sync.Once
}

func newExecution(id string, def *Definition, wctx *Context) *Execution {
	ex := &Execution{
		ID:         id,
		WorkflowID: def.ID,
		Steps:      make(map[string]*StepState, len(def.Steps)),
		Status:     ExecutionStatusPending,
		CreatedAt:  time.Now().UTC(),
		ctx:        wctx,
		cancelCh:   make(chan struct{}),
		resumeCh:   make(chan struct{}, 1),
	}
	if wctx != nil && wctx.App != nil {
		ex.ApplicationID = wctx.App.ApplicationID
	}
	for _, s := range def.Steps {
		ex.Steps[s.ID] = &StepState{StepID: s.ID, Status: StepStatusPending}
	}
	return ex
}

// Context returns the execution's shared context.
func (e *Execution) Context() *Context { return e.ctx }

func (e *Execution) state(stepID string) *StepState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Steps[stepID]
}

// withLock runs fn with exclusive access to the execution's mutable state.
// The engine routes every state transition through here so concurrent status
// queries see consistent snapshots.
func (e *Execution) withLock(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
}

// CurrentStatus returns the execution status under lock.
func (e *Execution) CurrentStatus() ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

// ErrorMessage returns the top-level error recorded on the execution.
func (e *Execution) ErrorMessage() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Error
}

// CompletedSteps returns the ids of steps that reached completed, in no
// particular order.
func (e *Execution) CompletedSteps() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.Steps))
	for id, st := range e.Steps {
		if st.Status == StepStatusCompleted {
			out = append(out, id)
		}
	}
	return out
}

// Progress returns completion as a percentage. A workflow with zero steps is
// complete by definition.
func (e *Execution) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.Steps) == 0 {
		return 100
	}
	completed := 0
	for _, st := range e.Steps {
		if st.Status == StepStatusCompleted {
			completed++
		}
	}
	return float64(completed) / float64(len(e.Steps)) * 100
}

// CompletedTime returns when the execution reached a terminal status, or nil.
func (e *Execution) CompletedTime() *time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.CompletedAt
}

// EachStep invokes fn with a snapshot copy of every step state.
func (e *Execution) EachStep(fn func(stepID string, st *StepState)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for id, st := range e.Steps {
		cp := *st
		fn(id, &cp)
	}
}

// Terminal reports whether the execution has reached a final status.
func (e *Execution) Terminal() bool {
	switch e.CurrentStatus() {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// FailedSteps returns the states of steps that did not reach completed,
// ordered by the definition's declaration order.
func (e *Execution) FailedSteps(def *Definition) []*StepState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*StepState
	for _, s := range def.Steps {
		st := e.Steps[s.ID]
		if st == nil {
			continue
		}
		switch st.Status {
		case StepStatusFailed, StepStatusSkipped, StepStatusPending, StepStatusRunning, StepStatusRetrying:
			out = append(out, st)
		}
	}
	return out
}

func (e *Execution) finish(status ExecutionStatus, errMsg string) {
	now := time.Now().UTC()
	e.withLock(func() {
		if e.Status == ExecutionStatusCancelled {
			return
		}
		e.Status = status
		e.Error = errMsg
		e.CompletedAt = &now
	})
}

func (e *Execution) markCancelled() {
	now := time.Now().UTC()
	e.Status = ExecutionStatusCancelled
	e.CompletedAt = &now
	e.cancel.Do(func() { close(e.cancelCh) })
}

// MarshalJSON snapshots the execution under lock so archival writes never
// race a scheduling round.
func (e *Execution) MarshalJSON() ([]byte, error) {
	type wire Execution
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := wire{
		ID:            e.ID,
		WorkflowID:    e.WorkflowID,
		ApplicationID: e.ApplicationID,
		Status:        e.Status,
		Error:         e.Error,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
		CreatedAt:     e.CreatedAt,
		Steps:         make(map[string]*StepState, len(e.Steps)),
	}
	for id, st := range e.Steps {
		cp := *st
		snap.Steps[id] = &cp
	}
	return json.Marshal(&snap)
}
