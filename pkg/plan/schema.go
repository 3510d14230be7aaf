package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/loomctl/loom/pkg/ops"
)

// Validator performs structural validation of plan documents. Struct-tag
// checks always run; an optional external schema document can add required
// top-level fields. A missing schema document degrades to a warning at the
// caller, never a failure.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a plan validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidatePlan checks the plan against the struct schema.
func (v *Validator) ValidatePlan(p *Plan) error {
	if err := v.validate.Struct(p); err != nil {
		return ops.NewStructuralError("plan failed schema validation", err).
			WithCode(ops.ErrCodeSchemaInvalid)
	}
	for i, op := range p.Ops {
		if err := v.validate.Struct(op); err != nil {
			return ops.NewStructuralError(
				fmt.Sprintf("op %d failed schema validation", i), err).
				WithCode(ops.ErrCodeSchemaInvalid).WithOp(op.Type)
		}
	}
	return nil
}

// schemaDocument is the external structural-validation document: a list of
// top-level fields the plan JSON must carry.
type schemaDocument struct {
	Required []string `json:"required"`
}

// CheckAgainstSchemaFile validates the raw plan document against an external
// schema file. A missing file returns an environment error so the caller can
// warn and continue; a present but violated schema is structural.
func (v *Validator) CheckAgainstSchemaFile(schemaPath string, raw []byte) error {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return ops.NewEnvironmentError("schema document unavailable", err).
			WithCode(ops.ErrCodeSchemaMissing).WithPath(schemaPath)
	}
	var schema schemaDocument
	if err := json.Unmarshal(data, &schema); err != nil {
		return ops.NewStructuralError("schema document is not valid JSON", err).WithPath(schemaPath)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ops.NewStructuralError("document is not a JSON object", err)
	}
	for _, field := range schema.Required {
		if _, ok := doc[field]; !ok {
			return ops.NewStructuralError("document missing required field: "+field, nil).
				WithCode(ops.ErrCodeSchemaInvalid)
		}
	}
	return nil
}
