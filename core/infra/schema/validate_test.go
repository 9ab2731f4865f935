package schema

import "testing"

const testSchema = `{
  "type": "object",
  "required": ["application_id", "loan_amount"],
  "properties": {
    "application_id": {"type": "string", "minLength": 1},
    "loan_amount": {"type": "number", "exclusiveMinimum": 0}
  }
}`

func TestValidateAccepts(t *testing.T) {
	payload := map[string]any{"application_id": "APP-1", "loan_amount": 350000.0}
	if err := Validate("application", []byte(testSchema), payload); err != nil {
		t.Fatalf("expected valid payload: %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	payload := map[string]any{"loan_amount": 350000.0}
	if err := Validate("application", []byte(testSchema), payload); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestValidateRejectsBadType(t *testing.T) {
	payload := []byte(`{"application_id": "APP-1", "loan_amount": "lots"}`)
	if err := Validate("application", []byte(testSchema), payload); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestValidateEmptySchema(t *testing.T) {
	if err := Validate("x", nil, map[string]any{}); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}
