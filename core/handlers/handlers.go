// Package handlers provides the built-in assessment handlers the mortgage
// pipeline binds its workflow steps to. The business logic is deliberately
// deterministic: scores derive from the application record so the same input
// always yields the same decision.
package handlers

import (
	"github.com/lendcore/lendcore/core/workflow"
)

// Handler names, as bound in the workflow definitions.
const (
	DocumentAgent     = "doc_agent"
	IncomeAgent       = "income_agent"
	CreditAgent       = "credit_agent"
	PropertyAgent     = "property_agent"
	RiskAgent         = "risk_agent"
	UnderwritingAgent = "underwriting_agent"
)

// RegisterAll binds every built-in handler into the registry.
func RegisterAll(reg *workflow.Registry) {
	reg.Register(DocumentAgent, &DocumentHandler{})
	reg.Register(IncomeAgent, &IncomeHandler{})
	reg.Register(CreditAgent, &CreditHandler{})
	reg.Register(PropertyAgent, &PropertyHandler{})
	reg.Register(RiskAgent, &RiskHandler{})
	reg.Register(UnderwritingAgent, &UnderwritingHandler{})
}

// payloadFloat reads a numeric field from an upstream handler result,
// returning the fallback when the producing step has not run.
func payloadFloat(wctx *workflow.Context, handler, key string, fallback float64) float64 {
	res, ok := wctx.Result(handler)
	if !ok || res.Payload == nil {
		return fallback
	}
	switch v := res.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func payloadBool(wctx *workflow.Context, handler, key string) bool {
	res, ok := wctx.Result(handler)
	if !ok || res.Payload == nil {
		return false
	}
	b, _ := res.Payload[key].(bool)
	return b
}
