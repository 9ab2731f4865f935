package decision

import (
	"fmt"
	"strings"
	"time"

	"github.com/lendcore/lendcore/core/infra/logging"
	"github.com/lendcore/lendcore/core/workflow"
)

// UnderwritingHandler is the handler whose payload carries the final
// underwriting verdict.
const UnderwritingHandler = "underwriting_agent"

// stepFailure describes a declared step that never reached completed.
type stepFailure struct {
	stepID string
	name   string
	detail string
}

// Extract turns a terminal execution into a Decision. If the underwriting
// handler ran and succeeded its payload is adopted; otherwise a conservative
// denial is synthesized from the recorded step failures. This is the last
// line of defense: it recovers from any fault and always returns a decision
// that passes Validate.
func Extract(def *workflow.Definition, ex *workflow.Execution) (dec *Decision) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("decision-aggregator", "extraction fault", "execution_id", ex.ID, "panic", fmt.Sprint(r))
			dec = fallback(ex, nil, fmt.Sprintf("system error during decision extraction: %v", r))
		}
	}()

	failures := collectFailures(def, ex)

	if wctx := ex.Context(); wctx != nil {
		if res, ok := wctx.Result(UnderwritingHandler); ok && res.Success && res.Payload != nil {
			return fromPayload(ex, res.Payload, failures)
		}
	}
	return fallback(ex, failures, "")
}

// collectFailures walks the declared steps in order and records every step
// that did not complete, tagged by how it failed: timeout, fault, or
// unreached because a dependency failed.
func collectFailures(def *workflow.Definition, ex *workflow.Execution) []stepFailure {
	var out []stepFailure
	for _, step := range def.Steps {
		st, ok := ex.Steps[step.ID]
		if !ok || st.Status == workflow.StepStatusCompleted {
			continue
		}
		name := step.Name
		if name == "" {
			name = step.ID
		}
		detail := ""
		switch st.Status {
		case workflow.StepStatusFailed:
			detail = st.Error
			if detail == "" {
				detail = "step failed"
			}
		case workflow.StepStatusSkipped:
			detail = "not reached: " + st.Error
		default:
			detail = "did not complete"
		}
		out = append(out, stepFailure{stepID: step.ID, name: name, detail: detail})
	}
	return out
}

func fromPayload(ex *workflow.Execution, payload map[string]any, failures []stepFailure) *Decision {
	decType := parseType(asString(payload["decision"]))
	score := clampScore(asFloat(payload["overall_score"]))

	var factors Factors
	if fm, ok := payload["decision_factors"].(map[string]any); ok {
		factors = NewFactors(
			asFloat(fm["eligibility_score"]),
			asFloat(fm["risk_score"]),
			asFloat(fm["compliance_score"]),
			asFloat(fm["policy_score"]),
		)
	} else {
		factors = NewFactors(score, 100-score, score, score)
	}

	actions := failureActions(failures)
	for i, raw := range asSlice(payload["adverse_actions"]) {
		switch v := raw.(type) {
		case string:
			actions = append(actions, AdverseAction{
				ReasonCode:  fmt.Sprintf("UW%03d", i+1),
				Description: v,
				Category:    "underwriting",
				ImpactLevel: ImpactMedium,
			})
		case map[string]any:
			actions = append(actions, AdverseAction{
				ReasonCode:  asString(v["reason_code"]),
				Description: asString(v["reason_description"]),
				Category:    asString(v["category"]),
				ImpactLevel: Impact(asString(v["impact_level"])),
			})
		}
	}

	conditions := asStrings(payload["conditions"])

	var terms *LoanTerms
	if tm, ok := payload["loan_terms"].(map[string]any); ok {
		terms = &LoanTerms{
			LoanAmount:          asFloat(tm["loan_amount"]),
			InterestRate:        asFloat(tm["interest_rate"]),
			LoanTermYears:       int(asFloat(tm["loan_term_years"])),
			MonthlyPayment:      asFloat(tm["monthly_payment"]),
			DownPaymentRequired: asFloat(tm["down_payment_required"]),
			ClosingCosts:        asFloat(tm["closing_costs"]),
			Points:              asFloat(tm["points"]),
			APR:                 asFloat(tm["apr"]),
			PMIRequired:         asBool(tm["pmi_required"]),
			PMIMonthlyAmount:    asFloat(tm["pmi_monthly_amount"]),
			EscrowRequired:      asBool(tm["escrow_required"]),
			PrepaymentPenalty:   asBool(tm["prepayment_penalty"]),
		}
	}
	if decType == TypeApprove && terms == nil {
		terms = defaultTerms(ex)
	}
	if decType == TypeDeny {
		terms = nil
		if len(actions) == 0 {
			actions = append(actions, AdverseAction{
				ReasonCode:  "UW001",
				Description: "Application denied by underwriting policy",
				Category:    "underwriting",
				ImpactLevel: ImpactHigh,
			})
		}
	}
	if decType == TypeConditional && len(conditions) == 0 {
		conditions = append(conditions, "Subject to manual underwriter review")
	}

	var rationale []string
	if len(failures) > 0 {
		names := make([]string, len(failures))
		for i, f := range failures {
			names[i] = f.name
		}
		rationale = append(rationale, "Processing failed at steps: "+strings.Join(names, ", "))
	}
	if r := asString(payload["decision_rationale"]); r != "" {
		rationale = append(rationale, r)
	} else {
		rationale = append(rationale, "Decision based on underwriting analysis")
	}

	return &Decision{
		ApplicationID:        applicationID(ex),
		Decision:             decType,
		Factors:              factors,
		OverallScore:         score,
		Confidence:           asFloat(payload["confidence_level"]),
		Conditions:           conditions,
		AdverseActions:       actions,
		Terms:                terms,
		Rationale:            strings.Join(rationale, " | "),
		RequiresManualReview: asBool(payload["requires_manual_review"]) || decType == TypeConditional,
		CreatedBy:            UnderwritingHandler,
		CreatedAt:            time.Now().UTC(),
	}
}

// fallback synthesizes the conservative denial used when underwriting never
// produced a result: maximum risk, zero confidence, one adverse action per
// failed step.
func fallback(ex *workflow.Execution, failures []stepFailure, systemError string) *Decision {
	actions := failureActions(failures)
	if systemError != "" {
		actions = append(actions, AdverseAction{
			ReasonCode:  "SYS001",
			Description: systemError,
			Category:    "system_error",
			ImpactLevel: ImpactCritical,
		})
	}
	if len(actions) == 0 {
		actions = append(actions, AdverseAction{
			ReasonCode:  "SYS001",
			Description: "Unable to complete underwriting assessment - no results from underwriting agent",
			Category:    "system_error",
			ImpactLevel: ImpactCritical,
		})
	}

	rationale := "Unable to complete underwriting assessment due to insufficient data or processing errors."
	if len(failures) > 0 {
		parts := make([]string, len(failures))
		for i, f := range failures {
			parts[i] = fmt.Sprintf("%s: %s", f.name, f.detail)
		}
		rationale = "Application denied due to processing failures. " + strings.Join(parts, "; ")
	}

	return &Decision{
		ApplicationID:  applicationID(ex),
		Decision:       TypeDeny,
		Factors:        NewFactors(0, 100, 0, 0),
		OverallScore:   0,
		Confidence:     0,
		AdverseActions: actions,
		Rationale:      rationale,
		CreatedBy:      "system_orchestrator",
		CreatedAt:      time.Now().UTC(),
	}
}

func failureActions(failures []stepFailure) []AdverseAction {
	out := make([]AdverseAction, 0, len(failures))
	for i, f := range failures {
		out = append(out, AdverseAction{
			ReasonCode:  fmt.Sprintf("STEP%03d", i+1),
			Description: fmt.Sprintf("Failed at %s: %s", f.name, f.detail),
			Category:    "processing_error",
			ImpactLevel: ImpactHigh,
		})
	}
	return out
}

func defaultTerms(ex *workflow.Execution) *LoanTerms {
	terms := &LoanTerms{
		InterestRate:   6.5,
		LoanTermYears:  30,
		APR:            6.75,
		EscrowRequired: true,
	}
	if wctx := ex.Context(); wctx != nil && wctx.App != nil {
		amount := wctx.App.Loan.LoanAmount
		terms.LoanAmount = amount
		terms.MonthlyPayment = amount * 0.006
		terms.ClosingCosts = amount * 0.03
		terms.DownPaymentRequired = wctx.App.Loan.DownPayment
	}
	return terms
}

func applicationID(ex *workflow.Execution) string {
	if wctx := ex.Context(); wctx != nil && wctx.App != nil && wctx.App.ApplicationID != "" {
		return wctx.App.ApplicationID
	}
	if ex.ApplicationID != "" {
		return ex.ApplicationID
	}
	return "unknown"
}

func parseType(s string) Type {
	switch Type(strings.ToLower(s)) {
	case TypeApprove:
		return TypeApprove
	case TypeConditional:
		return TypeConditional
	case TypePending:
		return TypePending
	default:
		return TypeDeny
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asStrings(v any) []string {
	var out []string
	for _, item := range asSlice(v) {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
