package api

import (
	"encoding/json"
	"net/http"

	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/pricing"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidHouseFeatures, apperrors.ErrCodeParseError:
		return http.StatusBadRequest
	case apperrors.ErrCodeValuationNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeInferenceFailed:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeArtifactMissing,
		apperrors.ErrCodeArtifactInvalid,
		apperrors.ErrCodeSchemaUnavailable,
		apperrors.ErrCodeDatabaseConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError turns any error into the single JSON error message of the API.
func writeError(w http.ResponseWriter, err error) {
	stdErr := pricing.ToStandardError(err)
	writeJSON(w, statusFor(stdErr.Code), errorBody{Error: errorDetail{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		Details: stdErr.Details,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
