// Package history keeps an audit trail of valuations. Entries are written
// after a valuation is returned and are never read back to answer a new request.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"house-price-workers/internal/pricing"
)

// Recorder persists a finished valuation.
type Recorder interface {
	Record(ctx context.Context, v *pricing.Valuation) error
}

// Reader looks a valuation up by id.
type Reader interface {
	Get(ctx context.Context, id string) (*Entry, error)
}

// Entry is a stored valuation as read back from history.
type Entry struct {
	ID        string                 `json:"valuationId"`
	Features  map[string]interface{} `json:"features"`
	Aligned   json.RawMessage        `json:"aligned"`
	Estimates []pricing.Estimate     `json:"estimates"`
	Currency  string                 `json:"currency"`
	CreatedAt time.Time              `json:"createdAt"`
}

// MultiRecorder writes to every recorder and joins their failures.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, v *pricing.Valuation) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards valuations.
type Nop struct{}

func (Nop) Record(context.Context, *pricing.Valuation) error { return nil }
