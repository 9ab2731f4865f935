package workflow

import (
	"fmt"
	"time"
)

// StepStatus captures the lifecycle of a step within one execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusRetrying  StepStatus = "retrying"
	StepStatusSkipped   StepStatus = "skipped"
)

// ExecutionStatus captures the lifecycle of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// ErrorPolicy controls how the scheduler reacts to a permanently failed step.
type ErrorPolicy string

const (
	// ErrorPolicyContinue records the failure and keeps scheduling the rest
	// of the graph; unreachable dependents are skipped.
	ErrorPolicyContinue ErrorPolicy = "continue"
	// ErrorPolicyStop aborts the whole execution on the first permanent
	// step failure.
	ErrorPolicyStop ErrorPolicy = "stop"
)

// Step is an immutable node in the workflow graph. Runtime state lives in
// StepState on the execution, never here, so one Definition can serve many
// concurrent executions.
type Step struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Handler    string        `json:"handler,omitempty"`
	DependsOn  []string      `json:"depends_on,omitempty"`
	Condition  string        `json:"condition,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// Definition is a registered workflow: an ordered list of steps plus
// dispatch and failure policy. Immutable once registered.
type Definition struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Steps       []*Step       `json:"steps"`
	Parallel    bool          `json:"parallel,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	OnError     ErrorPolicy   `json:"on_error,omitempty"`
}

// Step returns the step with the given id, or nil.
func (d *Definition) Step(id string) *Step {
	for _, s := range d.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Validate checks structural soundness of a definition. Dependency cycles are
// deliberately not rejected here: the scheduler detects them at runtime and
// reports a deadlock, which keeps registration cheap and the failure visible
// on the execution that hit it.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("workflow id required")
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for _, s := range d.Steps {
		if s == nil || s.ID == "" {
			return fmt.Errorf("workflow %s: step id required", d.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("workflow %s: duplicate step id %q", d.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.MaxRetries < 0 {
			return fmt.Errorf("workflow %s: step %q: negative max_retries", d.ID, s.ID)
		}
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				continue // self-cycle surfaces as a runtime deadlock
			}
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("workflow %s: step %q depends on unknown step %q", d.ID, s.ID, dep)
			}
		}
	}
	switch d.OnError {
	case "", ErrorPolicyContinue, ErrorPolicyStop:
	default:
		return fmt.Errorf("workflow %s: unknown error policy %q", d.ID, d.OnError)
	}
	return nil
}

// StepState is the per-execution runtime record for one step.
type StepState struct {
	StepID      string     `json:"step_id"`
	Status      StepStatus `json:"status"`
	RetryCount  int        `json:"retry_count,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the step can no longer change state given the
// step's retry budget.
func (s *StepState) Terminal(maxRetries int) bool {
	switch s.Status {
	case StepStatusCompleted, StepStatusSkipped:
		return true
	case StepStatusFailed:
		return s.RetryCount >= maxRetries
	default:
		return false
	}
}

// Result is what a handler invocation produces.
type Result struct {
	Success  bool           `json:"success"`
	Payload  map[string]any `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration,omitempty"`
}
