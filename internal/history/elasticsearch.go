package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"house-price-workers/internal/common/database"
	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/pricing"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "valuationId":  {"type": "keyword"},
      "currency":     {"type": "keyword"},
      "createdAt":    {"type": "date"},
      "primaryModel": {"type": "keyword"},
      "primaryPrice": {"type": "double"},
      "features": {
        "properties": {
          "citi":   {"type": "keyword"},
          "street": {"type": "text"},
          "sqft":   {"type": "double"},
          "bed":    {"type": "integer"},
          "bath":   {"type": "integer"}
        }
      },
      "estimates": {
        "type": "nested",
        "properties": {
          "model": {"type": "keyword"},
          "price": {"type": "double"}
        }
      }
    }
  }
}`

type document struct {
	ID           string                 `json:"valuationId"`
	Features     map[string]interface{} `json:"features"`
	Aligned      pricing.AlignedRecord  `json:"aligned"`
	Estimates    []pricing.Estimate     `json:"estimates"`
	PrimaryModel string                 `json:"primaryModel"`
	PrimaryPrice float64                `json:"primaryPrice"`
	Currency     string                 `json:"currency"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// ElasticsearchRecorder indexes valuations for search and dashboards.
type ElasticsearchRecorder struct {
	es    *database.ElasticsearchClient
	index string
}

func NewElasticsearchRecorder(es *database.ElasticsearchClient, index string) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{es: es, index: index}
}

// EnsureIndex creates the index with its mapping if it does not exist.
func (r *ElasticsearchRecorder) EnsureIndex(ctx context.Context) error {
	return r.es.EnsureIndex(ctx, r.index, indexMapping)
}

func (r *ElasticsearchRecorder) Record(ctx context.Context, v *pricing.Valuation) error {
	primary := v.Primary()
	body, err := json.Marshal(document{
		ID:           v.ID,
		Features:     v.Features.Map(),
		Aligned:      v.Aligned,
		Estimates:    v.Estimates,
		PrimaryModel: primary.Model,
		PrimaryPrice: primary.Price,
		Currency:     v.Currency,
		CreatedAt:    v.CreatedAt,
	})
	if err != nil {
		return apperrors.NewValuationRecordFailedError(fmt.Errorf("encode document: %w", err))
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: v.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, r.es.Client)
	if err != nil {
		return apperrors.NewElasticsearchConnectionFailedError(fmt.Errorf("index valuation %s: %w", v.ID, err))
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return apperrors.NewValuationRecordFailedError(
			fmt.Errorf("index valuation %s: %s: %s", v.ID, res.Status(), bytes.TrimSpace(msg)))
	}
	return nil
}
