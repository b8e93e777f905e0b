package pricing

import (
	"encoding/json"
	"fmt"
	"strings"

	"house-price-workers/internal/common/validation"
)

// formSchema mirrors the constraints of the valuation form widgets.
// Extra variables (request ids, contact details) are allowed and ignored.
const formSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "n_citi":   {"type": "integer", "minimum": 0},
    "bed":      {"type": "integer", "minimum": 0},
    "bath":     {"type": "integer", "minimum": 0},
    "sqft":     {"type": "number",  "minimum": 0},
    "citi":     {"type": "string",  "maxLength": 200},
    "street":   {"type": "string",  "maxLength": 200},
    "parking":  {"type": "integer", "minimum": 0},
    "mainroad": {"type": ["string", "boolean"], "pattern": "^(?i)\\s*(yes|no)\\s*$"},
    "basement": {"type": ["string", "boolean"], "pattern": "^(?i)\\s*(yes|no)\\s*$"}
  },
  "additionalProperties": true
}`

var formValidator = validation.MustValidator([]byte(formSchema))

// ValidateForm checks raw form variables against the widget constraints.
func ValidateForm(vars map[string]interface{}) error {
	result, err := formValidator.Validate(vars)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeatures, err)
	}
	if !result.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidFeatures, strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// DecodeFeatures validates raw variables and decodes them into HouseFeatures.
// Null values count as not supplied.
func DecodeFeatures(vars map[string]interface{}) (HouseFeatures, error) {
	clean := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		if v != nil {
			clean[k] = v
		}
	}

	if err := ValidateForm(clean); err != nil {
		return HouseFeatures{}, err
	}

	raw, err := json.Marshal(clean)
	if err != nil {
		return HouseFeatures{}, fmt.Errorf("%w: %v", ErrInvalidFeatures, err)
	}
	var f HouseFeatures
	if err := json.Unmarshal(raw, &f); err != nil {
		return HouseFeatures{}, fmt.Errorf("%w: %v", ErrInvalidFeatures, err)
	}
	return f, nil
}
