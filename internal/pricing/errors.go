package pricing

import (
	"errors"
	"fmt"

	apperrors "house-price-workers/internal/common/errors"
)

var (
	// ErrArtifactMissing means a model, manifest or column file is not on disk.
	// The pipeline stays disabled until the file appears; the process keeps running.
	ErrArtifactMissing = errors.New("ARTIFACT_MISSING")
	// ErrArtifactInvalid means the file exists but cannot be decoded or is inconsistent.
	ErrArtifactInvalid = errors.New("ARTIFACT_INVALID")
	// ErrSchemaUnavailable blocks alignment, and therefore inference, for one request.
	ErrSchemaUnavailable = errors.New("SCHEMA_UNAVAILABLE")
	// ErrInference means the model rejected the aligned record. Never retried.
	ErrInference = errors.New("INFERENCE_ERROR")
	// ErrInferenceTimeout is the InferenceError returned when a model misses its deadline.
	ErrInferenceTimeout = fmt.Errorf("%w: deadline exceeded", ErrInference)
	// ErrInvalidFeatures means the submitted form values violate the widget constraints.
	ErrInvalidFeatures = errors.New("INVALID_HOUSE_FEATURES")
)

// ToStandardError converts a pipeline error into the error shown to the caller.
func ToStandardError(err error) *apperrors.StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := apperrors.AsStandardError(err); ok {
		return stdErr
	}

	switch {
	case errors.Is(err, ErrArtifactMissing):
		return apperrors.NewArtifactMissingError(err.Error())
	case errors.Is(err, ErrArtifactInvalid):
		return apperrors.NewArtifactInvalidError(err.Error())
	case errors.Is(err, ErrSchemaUnavailable):
		return apperrors.NewSchemaUnavailableError(err.Error())
	case errors.Is(err, ErrInference):
		return apperrors.NewInferenceError(err.Error())
	case errors.Is(err, ErrInvalidFeatures):
		return apperrors.NewInvalidHouseFeaturesError(err.Error())
	default:
		return apperrors.NewInternalError(err)
	}
}
