package predicthouseprice

import (
	"encoding/json"

	"house-price-workers/internal/pricing"
)

// Input carries the form values of the valuation request. The house fields
// are top-level process variables, so they are kept as a raw map and decoded
// by the pricing package.
type Input struct {
	RequestID string                 `json:"requestId,omitempty"`
	Features  map[string]interface{} `json:"-"`
}

type Output struct {
	ValuationID    string             `json:"valuationId"`
	Estimates      []pricing.Estimate `json:"estimates"`
	Price          float64            `json:"price"`
	FormattedPrice string             `json:"formattedPrice"`
	Currency       string             `json:"currency"`
	Model          string             `json:"model"`
	ValuedAt       string             `json:"valuedAt"` // ISO 8601
}

// ParseInput reads the job variables.
func ParseInput(variables string) (*Input, error) {
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return nil, err
	}

	input := &Input{Features: vars}
	if id, ok := vars["requestId"].(string); ok {
		input.RequestID = id
	}
	return input, nil
}
