package orchestrator

import (
	"time"

	"github.com/lendcore/lendcore/core/handlers"
	"github.com/lendcore/lendcore/core/infra/config"
	"github.com/lendcore/lendcore/core/workflow"
)

// Registered pipeline ids.
const (
	WorkflowStandard = "standard_mortgage_processing"
	WorkflowParallel = "parallel_mortgage_processing"
)

// defaultPipelineTimeout bounds a whole run unless overridden per pipeline.
const defaultPipelineTimeout = 30 * time.Minute

// pipelineSteps returns the six-step mortgage graph: document processing
// fans out into the three assessments, which join at risk analysis before
// the final underwriting verdict.
func pipelineSteps(pipeline string, steps *config.StepsConfig, maxRetries int) []*workflow.Step {
	base := []*workflow.Step{
		{
			ID:      "document_processing",
			Name:    "Document Processing and Validation",
			Handler: handlers.DocumentAgent,
			Timeout: 300 * time.Second,
		},
		{
			ID:        "income_verification",
			Name:      "Income and Employment Verification",
			Handler:   handlers.IncomeAgent,
			DependsOn: []string{"document_processing"},
			Timeout:   180 * time.Second,
		},
		{
			ID:        "credit_assessment",
			Name:      "Credit History and Score Analysis",
			Handler:   handlers.CreditAgent,
			DependsOn: []string{"document_processing"},
			Timeout:   120 * time.Second,
		},
		{
			ID:        "property_assessment",
			Name:      "Property Valuation and Risk Analysis",
			Handler:   handlers.PropertyAgent,
			DependsOn: []string{"document_processing"},
			Timeout:   240 * time.Second,
		},
		{
			ID:        "risk_assessment",
			Name:      "Consolidated Risk Assessment",
			Handler:   handlers.RiskAgent,
			DependsOn: []string{"income_verification", "credit_assessment", "property_assessment"},
			Timeout:   150 * time.Second,
		},
		{
			ID:        "underwriting",
			Name:      "Final Underwriting Decision",
			Handler:   handlers.UnderwritingAgent,
			DependsOn: []string{"risk_assessment"},
			Timeout:   120 * time.Second,
		},
	}
	for _, s := range base {
		s.MaxRetries = maxRetries
		if r := steps.StepMaxRetries(pipeline, s.ID); r >= 0 {
			s.MaxRetries = r
		}
		if t := steps.StepTimeout(pipeline, s.ID); t > 0 {
			s.Timeout = t
		}
	}
	return base
}

func pipelineTimeout(pipeline string, steps *config.StepsConfig) time.Duration {
	if t := steps.PipelineTimeout(pipeline); t > 0 {
		return t
	}
	return defaultPipelineTimeout
}

// Pipelines builds the two registered mortgage pipelines, applying operator
// overrides from the step config.
func Pipelines(steps *config.StepsConfig, maxRetries int) []*workflow.Definition {
	return []*workflow.Definition{
		{
			ID:          WorkflowStandard,
			Name:        "Standard Mortgage Processing Workflow",
			Description: "Complete sequential mortgage processing with document validation, assessment, and underwriting",
			Steps:       pipelineSteps(WorkflowStandard, steps, maxRetries),
			Parallel:    false,
			Timeout:     pipelineTimeout(WorkflowStandard, steps),
			OnError:     workflow.ErrorPolicyContinue,
		},
		{
			ID:          WorkflowParallel,
			Name:        "Parallel Assessment Mortgage Processing",
			Description: "Mortgage processing with parallel income, credit, and property assessment",
			Steps:       pipelineSteps(WorkflowParallel, steps, maxRetries),
			Parallel:    true,
			Timeout:     pipelineTimeout(WorkflowParallel, steps),
			OnError:     workflow.ErrorPolicyContinue,
		},
	}
}
