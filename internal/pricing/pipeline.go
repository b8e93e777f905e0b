package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/metrics"
	"house-price-workers/internal/common/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("house-price-workers/pricing")

// Estimate is one model's answer for a valuation.
type Estimate struct {
	Model       string  `json:"model"`
	DisplayName string  `json:"displayName"`
	Price       float64 `json:"price"`
	Formatted   string  `json:"formatted"`
	Note        string  `json:"note,omitempty"`
}

// Valuation is the outcome of one request. It is never reused for another request.
type Valuation struct {
	ID        string        `json:"valuationId"`
	Features  FeatureRecord `json:"features"`
	Aligned   AlignedRecord `json:"aligned"`
	Estimates []Estimate    `json:"estimates"`
	Currency  string        `json:"currency"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Primary is the estimate of the first model in the manifest.
func (v *Valuation) Primary() Estimate {
	if v == nil || len(v.Estimates) == 0 {
		return Estimate{}
	}
	return v.Estimates[0]
}

// Predictor runs build, align, infer and format for every configured model.
type Predictor struct {
	source   Source
	currency Currency
	timeout  time.Duration
	logger   logger.Logger
	obs      *observability.Observability
}

type PredictorOptions struct {
	Source           Source
	Currency         Currency
	InferenceTimeout time.Duration // per model; zero disables the deadline
	Logger           logger.Logger
	Observability    *observability.Observability
}

func NewPredictor(opts PredictorOptions) *Predictor {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Predictor{
		source:   opts.Source,
		currency: opts.Currency,
		timeout:  opts.InferenceTimeout,
		logger:   log.WithFields(map[string]interface{}{"component": "predictor"}),
		obs:      opts.Observability,
	}
}

// Currency returns the formatter used for estimates.
func (p *Predictor) Currency() Currency { return p.currency }

// Schema exposes the expected input columns.
func (p *Predictor) Schema() (ExpectedSchema, error) {
	schema, err := p.source.Schema()
	if err != nil && !errors.Is(err, ErrSchemaUnavailable) {
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}
	return schema, err
}

// Models exposes the loaded models.
func (p *Predictor) Models() ([]LoadedModel, error) {
	return p.source.Models()
}

// Predict values a house. Errors wrap one of ErrSchemaUnavailable,
// ErrArtifactMissing, ErrArtifactInvalid or ErrInference. No inference
// runs unless the schema loaded and the record aligned.
func (p *Predictor) Predict(ctx context.Context, f HouseFeatures) (*Valuation, error) {
	ctx, span := tracer.Start(ctx, "pricing.Predict")
	defer span.End()

	start := time.Now()
	v, err := p.predict(ctx, f)

	outcome := Outcome(err)
	metrics.ValuationsTotal.WithLabelValues(outcome).Inc()
	p.obs.RecordValuation(ctx, outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("valuation.id", v.ID),
		attribute.Int("valuation.estimates", len(v.Estimates)),
	)
	return v, nil
}

func (p *Predictor) predict(ctx context.Context, f HouseFeatures) (*Valuation, error) {
	schema, err := p.Schema()
	if err != nil {
		return nil, err
	}

	rec := BuildRecord(f)
	aligned, err := Align(rec, schema)
	if err != nil {
		return nil, err
	}
	if missing := Missing(rec, schema); len(missing) > 0 {
		p.logger.Debug("filled missing columns with 0", map[string]interface{}{"columns": missing})
	}
	if dropped := Dropped(rec, schema); len(dropped) > 0 {
		p.logger.Debug("dropped fields outside the schema", map[string]interface{}{"fields": dropped})
	}

	models, err := p.source.Models()
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models configured", ErrArtifactMissing)
	}

	estimates := make([]Estimate, 0, len(models))
	for _, lm := range models {
		price, err := p.invoke(ctx, lm, aligned)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", lm.Entry.ID, err)
		}
		metrics.PredictedPrice.WithLabelValues(lm.Entry.ID).Observe(price)

		estimates = append(estimates, Estimate{
			Model:       lm.Entry.ID,
			DisplayName: lm.Entry.Label(),
			Price:       price,
			Formatted:   p.currency.Format(price),
			Note:        lm.Entry.Note,
		})
	}

	return &Valuation{
		ID:        uuid.NewString(),
		Features:  rec,
		Aligned:   aligned,
		Estimates: estimates,
		Currency:  p.currency.Code(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (p *Predictor) invoke(ctx context.Context, lm LoadedModel, aligned AlignedRecord) (float64, error) {
	ctx, span := tracer.Start(ctx, "pricing.Invoke", trace.WithAttributes(attribute.String("model.id", lm.Entry.ID)))
	defer span.End()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	price, err := Invoke(ctx, lm.Model, aligned)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inference failed")
	}
	return price, err
}

// Outcome labels an error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrArtifactMissing):
		return "artifact_missing"
	case errors.Is(err, ErrArtifactInvalid):
		return "artifact_invalid"
	case errors.Is(err, ErrSchemaUnavailable):
		return "schema_unavailable"
	case errors.Is(err, ErrInference):
		return "inference_error"
	case errors.Is(err, ErrInvalidFeatures):
		return "invalid_features"
	default:
		return "error"
	}
}
