package orchestrator

import (
	"github.com/lendcore/lendcore/core/workflow"
)

// Phase names a stage of mortgage processing, coarser than individual steps:
// initialization and finalization bracket the six pipeline steps.
type Phase string

const (
	PhaseInitialization     Phase = "initialization"
	PhaseDocumentProcessing Phase = "document_processing"
	PhaseIncomeVerification Phase = "income_verification"
	PhaseCreditAssessment   Phase = "credit_assessment"
	PhasePropertyAssessment Phase = "property_assessment"
	PhaseRiskAssessment     Phase = "risk_assessment"
	PhaseUnderwriting       Phase = "underwriting"
	PhaseFinalization       Phase = "finalization"
)

// phaseOrder lists every phase in processing order.
var phaseOrder = []Phase{
	PhaseInitialization,
	PhaseDocumentProcessing,
	PhaseIncomeVerification,
	PhaseCreditAssessment,
	PhasePropertyAssessment,
	PhaseRiskAssessment,
	PhaseUnderwriting,
	PhaseFinalization,
}

// stepPhase maps pipeline step ids onto phases. Step ids double as phase
// names for the six assessment steps.
func stepPhase(stepID string) (Phase, bool) {
	switch stepID {
	case "document_processing":
		return PhaseDocumentProcessing, true
	case "income_verification":
		return PhaseIncomeVerification, true
	case "credit_assessment":
		return PhaseCreditAssessment, true
	case "property_assessment":
		return PhasePropertyAssessment, true
	case "risk_assessment":
		return PhaseRiskAssessment, true
	case "underwriting":
		return PhaseUnderwriting, true
	}
	return "", false
}

// Progress is a phase-level view of one execution.
type Progress struct {
	CurrentPhase    Phase            `json:"current_phase"`
	CompletedPhases []Phase          `json:"completed_phases"`
	PhaseErrors     map[Phase]string `json:"phase_errors,omitempty"`
	OverallPercent  float64          `json:"overall_progress_percent"`
}

// PhaseStatus reports one phase as completed, in_progress, or pending.
func (p *Progress) PhaseStatus(phase Phase) string {
	for _, done := range p.CompletedPhases {
		if done == phase {
			return "completed"
		}
	}
	if phase == p.CurrentPhase {
		return "in_progress"
	}
	return "pending"
}

// progressFor derives phase progress from the execution's step states.
// Initialization completes as soon as the run starts; finalization once the
// execution is terminal.
func progressFor(ex *workflow.Execution) *Progress {
	p := &Progress{CurrentPhase: PhaseInitialization}
	if ex == nil {
		return p
	}

	status := ex.CurrentStatus()
	started := status != workflow.ExecutionStatusPending
	terminal := ex.Terminal()

	completed := map[Phase]bool{}
	if started {
		completed[PhaseInitialization] = true
	}
	errors := map[Phase]string{}
	var running []Phase

	ex.EachStep(func(stepID string, st *workflow.StepState) {
		phase, ok := stepPhase(stepID)
		if !ok {
			return
		}
		switch st.Status {
		case workflow.StepStatusCompleted:
			completed[phase] = true
		case workflow.StepStatusRunning:
			running = append(running, phase)
		case workflow.StepStatusFailed, workflow.StepStatusSkipped:
			if st.Error != "" {
				errors[phase] = st.Error
			}
		}
	})
	if terminal {
		completed[PhaseFinalization] = true
	}

	for _, phase := range phaseOrder {
		if completed[phase] {
			p.CompletedPhases = append(p.CompletedPhases, phase)
		}
	}
	if len(errors) > 0 {
		p.PhaseErrors = errors
	}

	switch {
	case terminal:
		p.CurrentPhase = PhaseFinalization
	case len(running) > 0:
		p.CurrentPhase = running[0]
	default:
		// Between rounds: the first not-yet-completed phase is next.
		for _, phase := range phaseOrder {
			if !completed[phase] {
				p.CurrentPhase = phase
				break
			}
		}
	}

	p.OverallPercent = float64(len(p.CompletedPhases)) / float64(len(phaseOrder)) * 100
	return p
}
