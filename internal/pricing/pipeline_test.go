package pricing

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/common/logger"
	"house-price-workers/pkg/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded(id string, m Model) LoadedModel {
	return LoadedModel{Entry: registry.ModelEntry{ID: id, DisplayName: id + " model", Kind: registry.KindLinear}, Model: m}
}

func TestPredictSchemaUnavailableSkipsInference(t *testing.T) {
	model := constantModel("never", 1)
	source := &stubSource{
		schemaErr: errors.New("columns.json: unexpected end of JSON input"),
		models:    []LoadedModel{loaded("never", model)},
	}
	p := NewPredictor(PredictorOptions{Source: source, Currency: USD, Logger: logger.NewTestLogger(t)})

	_, err := p.Predict(context.Background(), workedExample())
	require.ErrorIs(t, err, ErrSchemaUnavailable)
	assert.Equal(t, int32(0), model.calls.Load())

	source.schemaErr = nil
	source.schema = ExpectedSchema{}
	_, err = p.Predict(context.Background(), workedExample())
	require.ErrorIs(t, err, ErrSchemaUnavailable)
	assert.Equal(t, int32(0), model.calls.Load())
}

func TestPredictRunsEveryModel(t *testing.T) {
	var seen Frame
	first := &stubModel{name: "first", predict: func(f Frame) ([]float64, error) {
		seen = f
		return []float64{1234567}, nil
	}}
	second := constantModel("second", 999.6)

	source := &stubSource{
		schema: canonicalSchema(),
		models: []LoadedModel{loaded("first", first), loaded("second", second)},
	}
	p := NewPredictor(PredictorOptions{Source: source, Currency: USD, InferenceTimeout: time.Second})

	v, err := p.Predict(context.Background(), workedExample())
	require.NoError(t, err)

	_, err = uuid.Parse(v.ID)
	assert.NoError(t, err)
	assert.Equal(t, "USD", v.Currency)
	require.Len(t, v.Estimates, 2)
	assert.Equal(t, Estimate{Model: "first", DisplayName: "first model", Price: 1234567, Formatted: "$1,234,567"}, v.Estimates[0])
	assert.Equal(t, "$1,000", v.Estimates[1].Formatted)
	assert.Equal(t, v.Estimates[0], v.Primary())

	assert.Equal(t, []string(canonicalSchema()), seen.Columns)
	n, ok := v.Aligned.Get("n_citi")
	require.True(t, ok)
	assert.Equal(t, Number(0), n)
}

func TestPredictNeverReusesValuations(t *testing.T) {
	source := &stubSource{schema: canonicalSchema(), models: []LoadedModel{loaded("m", constantModel("m", 1))}}
	p := NewPredictor(PredictorOptions{Source: source, Currency: USD})

	a, err := p.Predict(context.Background(), workedExample())
	require.NoError(t, err)
	b, err := p.Predict(context.Background(), workedExample())
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestPredictFailsWhenAnyModelFails(t *testing.T) {
	bad := &stubModel{name: "bad", predict: func(Frame) ([]float64, error) {
		return nil, errors.New("Found unknown categories ['Atlantis'] in column 4 during transform")
	}}
	source := &stubSource{
		schema: canonicalSchema(),
		models: []LoadedModel{loaded("good", constantModel("good", 1)), loaded("bad", bad)},
	}
	p := NewPredictor(PredictorOptions{Source: source, Currency: USD})

	_, err := p.Predict(context.Background(), workedExample())
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "model bad")
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestPredictTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := &stubModel{name: "slow", predict: func(Frame) ([]float64, error) {
		<-release
		return []float64{1}, nil
	}}
	source := &stubSource{schema: canonicalSchema(), models: []LoadedModel{loaded("slow", slow)}}
	p := NewPredictor(PredictorOptions{Source: source, Currency: USD, InferenceTimeout: 10 * time.Millisecond})

	_, err := p.Predict(context.Background(), workedExample())
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}

func TestPredictArtifactErrors(t *testing.T) {
	p := NewPredictor(PredictorOptions{Source: &stubSource{schema: canonicalSchema()}, Currency: USD})
	_, err := p.Predict(context.Background(), workedExample())
	assert.ErrorIs(t, err, ErrArtifactMissing)

	p = NewPredictor(PredictorOptions{Source: &stubSource{
		schema:    canonicalSchema(),
		modelsErr: ErrArtifactInvalid,
	}, Currency: USD})
	_, err = p.Predict(context.Background(), workedExample())
	assert.ErrorIs(t, err, ErrArtifactInvalid)
}

func TestPredictWithBundledModels(t *testing.T) {
	store := NewStore(StoreOptions{ManifestPath: sampleManifest})
	p := NewPredictor(PredictorOptions{Source: store, Currency: USD, InferenceTimeout: time.Second})

	v, err := p.Predict(context.Background(), workedExample())
	require.NoError(t, err)
	require.Len(t, v.Estimates, 2)

	assert.Equal(t, "Linear Regression", v.Estimates[0].DisplayName)
	assert.Equal(t, "$379,750", v.Estimates[0].Formatted)
	assert.Contains(t, v.Estimates[0].Note, "generalize better")
	assert.Equal(t, "Decision Tree", v.Estimates[1].DisplayName)
	assert.Equal(t, "$356,500", v.Estimates[1].Formatted)
}

func TestPredictWithBundledModelsInRupees(t *testing.T) {
	store := NewStore(StoreOptions{ManifestPath: sampleManifest})
	p := NewPredictor(PredictorOptions{Source: store, Currency: INR})

	v, err := p.Predict(context.Background(), workedExample())
	require.NoError(t, err)
	assert.Equal(t, "₹ 379,750", v.Primary().Formatted)
	assert.Equal(t, "INR", v.Currency)
}

func TestPredictHugeHouseStaysPositive(t *testing.T) {
	f, err := DecodeFeatures(map[string]interface{}{"sqft": 1e17, "bed": 3.0, "citi": "Imperial, CA"})
	require.NoError(t, err)

	store := NewStore(StoreOptions{ManifestPath: sampleManifest})
	p := NewPredictor(PredictorOptions{Source: store, Currency: USD})

	v, err := p.Predict(context.Background(), f)
	require.NoError(t, err)

	primary := v.Primary()
	assert.Greater(t, primary.Price, float64(math.MaxInt64))
	assert.True(t, strings.HasPrefix(primary.Formatted, "$14,250,000,000,000,0"), primary.Formatted)
	assert.NotContains(t, primary.Formatted, "-")
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "artifact_missing", Outcome(ErrArtifactMissing))
	assert.Equal(t, "artifact_invalid", Outcome(ErrArtifactInvalid))
	assert.Equal(t, "schema_unavailable", Outcome(ErrSchemaUnavailable))
	assert.Equal(t, "inference_error", Outcome(ErrInferenceTimeout))
	assert.Equal(t, "invalid_features", Outcome(ErrInvalidFeatures))
	assert.Equal(t, "error", Outcome(errors.New("other")))
}

func TestToStandardError(t *testing.T) {
	tests := []struct {
		err  error
		code apperrors.ErrorCode
	}{
		{ErrArtifactMissing, apperrors.ErrCodeArtifactMissing},
		{ErrArtifactInvalid, apperrors.ErrCodeArtifactInvalid},
		{ErrSchemaUnavailable, apperrors.ErrCodeSchemaUnavailable},
		{ErrInferenceTimeout, apperrors.ErrCodeInferenceFailed},
		{ErrInvalidFeatures, apperrors.ErrCodeInvalidHouseFeatures},
		{errors.New("other"), apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		stdErr := ToStandardError(tt.err)
		require.NotNil(t, stdErr)
		assert.Equal(t, tt.code, stdErr.Code)
		assert.False(t, stdErr.Retryable)
	}

	assert.Nil(t, ToStandardError(nil))

	original := apperrors.NewValuationNotFoundError("x")
	assert.Same(t, original, ToStandardError(original))
}
