package application

import (
	"fmt"

	"github.com/lendcore/lendcore/core/infra/schema"
)

// intakeSchema is the JSON schema applied to submitted applications before an
// execution is created. It guards the engine against structurally broken
// payloads; business-level checks belong to the domain handlers.
const intakeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["application_id", "borrower", "property", "loan"],
  "properties": {
    "application_id": {"type": "string", "minLength": 1},
    "borrower": {
      "type": "object",
      "required": ["first_name", "last_name", "annual_income"],
      "properties": {
        "first_name": {"type": "string", "minLength": 1},
        "last_name": {"type": "string", "minLength": 1},
        "ssn": {"type": "string", "pattern": "^$|^\\d{3}-\\d{2}-\\d{4}$"},
        "annual_income": {"type": "number", "exclusiveMinimum": 0},
        "monthly_debts": {"type": "number", "minimum": 0}
      }
    },
    "property": {
      "type": "object",
      "required": ["address", "property_value"],
      "properties": {
        "address": {"type": "string", "minLength": 1},
        "property_value": {"type": "number", "exclusiveMinimum": 0}
      }
    },
    "loan": {
      "type": "object",
      "required": ["loan_amount", "loan_type", "loan_term_years"],
      "properties": {
        "loan_amount": {"type": "number", "exclusiveMinimum": 0},
        "loan_type": {"enum": ["conventional", "fha", "va", "usda", "jumbo"]},
        "loan_term_years": {"type": "integer", "minimum": 1, "maximum": 50},
        "down_payment": {"type": "number", "minimum": 0}
      }
    }
  }
}`

// Validate checks an application against the intake schema.
func Validate(app *Application) error {
	if app == nil {
		return fmt.Errorf("application required")
	}
	return schema.Validate("application-intake", []byte(intakeSchema), app)
}
