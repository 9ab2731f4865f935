package handlers

import (
	"context"
	"fmt"

	"github.com/lendcore/lendcore/core/workflow"
)

// requiredDocuments are the document types a complete application carries.
var requiredDocuments = []string{"paystub", "w2", "bank_statement", "tax_return"}

// DocumentHandler verifies the submitted document set and reports how
// complete it is. It never fails the step: missing documents lower the
// completeness score and surface downstream as underwriting conditions.
type DocumentHandler struct{}

func (h *DocumentHandler) Invoke(ctx context.Context, wctx *workflow.Context) (*workflow.Result, error) {
	app := wctx.App
	if app == nil {
		return nil, fmt.Errorf("application record missing")
	}

	present := make(map[string]bool, len(app.Documents))
	for _, doc := range app.Documents {
		present[doc.DocumentType] = true
	}
	var missing []string
	for _, want := range requiredDocuments {
		if !present[want] {
			missing = append(missing, want)
		}
	}
	completeness := float64(len(requiredDocuments)-len(missing)) / float64(len(requiredDocuments)) * 100

	payload := map[string]any{
		"documents_processed": len(app.Documents),
		"completeness_score":  completeness,
		"documents_complete":  len(missing) == 0,
	}
	if len(missing) > 0 {
		missingAny := make([]any, len(missing))
		for i, m := range missing {
			missingAny[i] = m
		}
		payload["missing_documents"] = missingAny
	}
	wctx.SetShared("documents_complete", len(missing) == 0)
	return &workflow.Result{Success: true, Payload: payload}, nil
}
