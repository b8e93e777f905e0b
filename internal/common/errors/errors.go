// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Valuation pipeline
	ErrCodeArtifactMissing      ErrorCode = "ARTIFACT_MISSING"
	ErrCodeArtifactInvalid      ErrorCode = "ARTIFACT_INVALID"
	ErrCodeSchemaUnavailable    ErrorCode = "SCHEMA_UNAVAILABLE"
	ErrCodeInferenceFailed      ErrorCode = "INFERENCE_ERROR"
	ErrCodeInvalidHouseFeatures ErrorCode = "INVALID_HOUSE_FEATURES"

	// Valuation history and delivery
	ErrCodeValuationNotFound      ErrorCode = "VALUATION_NOT_FOUND"
	ErrCodeValuationRecordFailed  ErrorCode = "VALUATION_RECORD_FAILED"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeInvalidRecipient       ErrorCode = "INVALID_RECIPIENT"

	// Infrastructure
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeRateLimited                   ErrorCode = "RATE_LIMITED"
	ErrCodeParseError                    ErrorCode = "PARSE_ERROR"
	ErrCodeInternal                      ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key to the error metadata and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newStandardError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// NewArtifactMissingError reports a model or schema file that is not on disk.
func NewArtifactMissingError(details string) *StandardError {
	return newStandardError(ErrCodeArtifactMissing, "Model artifact is not available", details, false)
}

// NewArtifactInvalidError reports a model file that exists but cannot be decoded.
func NewArtifactInvalidError(details string) *StandardError {
	return newStandardError(ErrCodeArtifactInvalid, "Model artifact could not be loaded", details, false)
}

// NewSchemaUnavailableError blocks alignment for a single request.
func NewSchemaUnavailableError(details string) *StandardError {
	return newStandardError(ErrCodeSchemaUnavailable, "Expected input schema is unavailable", details, false)
}

// NewInferenceError carries the model's rejection verbatim in Details.
func NewInferenceError(details string) *StandardError {
	return newStandardError(ErrCodeInferenceFailed, "Model rejected the house features", details, false)
}

func NewInvalidHouseFeaturesError(details string) *StandardError {
	return newStandardError(ErrCodeInvalidHouseFeatures, "House features failed validation", details, false)
}

func NewValuationNotFoundError(valuationID string) *StandardError {
	return newStandardError(ErrCodeValuationNotFound, "Valuation not found",
		fmt.Sprintf("valuationId: %s", valuationID), false)
}

// NewValuationRecordFailedError creates a retryable history persistence error.
func NewValuationRecordFailedError(err error) *StandardError {
	return newStandardError(ErrCodeValuationRecordFailed, "Failed to record valuation", err.Error(), true)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newStandardError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("type: %s, error: %s", notificationType, err.Error()), true)
}

func NewInvalidRecipientError(details string) *StandardError {
	return newStandardError(ErrCodeInvalidRecipient, "Report recipient is invalid", details, false)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newStandardError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true)
}

func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return newStandardError(ErrCodeElasticsearchConnectionFailed, "Elasticsearch connection error", err.Error(), true)
}

func NewRateLimitedError(client string) *StandardError {
	return newStandardError(ErrCodeRateLimited, "Rate limit exceeded",
		fmt.Sprintf("client: %s", client), false)
}

func NewParseError(err error) *StandardError {
	return newStandardError(ErrCodeParseError, "Failed to parse job variables", err.Error(), false)
}

func NewInternalError(err error) *StandardError {
	return newStandardError(ErrCodeInternal, "Unexpected error", err.Error(), false)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newStandardError("EXTERNAL_SERVICE_ERROR",
		fmt.Sprintf("External service '%s' error", service), err.Error(), true)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newStandardError("TIMEOUT_ERROR",
		fmt.Sprintf("Service '%s' timeout", service), err.Error(), true)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newStandardError("RESOURCE_NOT_FOUND",
		fmt.Sprintf("Resource not found in %s", service), details, false)
}

func NewAuthenticationError(details string) *StandardError {
	return newStandardError("AUTHENTICATION_ERROR", "Authentication failed", details, false)
}

// ==========================
// 4. BPMN Mapping
// ==========================

// BPMNErrorMapping maps internal codes to the error codes caught by boundary events.
// ARTIFACT_INVALID is caught by the same boundary event as ARTIFACT_MISSING.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeArtifactMissing:        "ARTIFACT_MISSING",
	ErrCodeArtifactInvalid:        "ARTIFACT_MISSING",
	ErrCodeSchemaUnavailable:      "SCHEMA_UNAVAILABLE",
	ErrCodeInferenceFailed:        "INFERENCE_ERROR",
	ErrCodeInvalidHouseFeatures:   "INVALID_HOUSE_FEATURES",
	ErrCodeValuationNotFound:      "VALUATION_NOT_FOUND",
	ErrCodeValuationRecordFailed:  "VALUATION_RECORD_FAILED",
	ErrCodeNotificationSendFailed: "NOTIFICATION_SEND_FAILED",
	ErrCodeInvalidRecipient:       "INVALID_RECIPIENT",
	ErrCodeParseError:             "PARSE_ERROR",
}

// GetRetryCount returns how many times the engine should retry a failed job.
// Valuation errors are deterministic for a given input and artifact, so they never retry.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeValuationRecordFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeElasticsearchConnectionFailed:
		return 3
	case "EXTERNAL_SERVICE_ERROR", "TIMEOUT_ERROR":
		return 2
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "ARTIFACT") || strings.Contains(codeStr, "SCHEMA"):
		return "MODEL"
	case strings.Contains(codeStr, "INFERENCE"):
		return "INFERENCE"
	case strings.Contains(codeStr, "VALUATION") || strings.Contains(codeStr, "DATABASE"):
		return "HISTORY"
	case strings.Contains(codeStr, "ELASTICSEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "PARSE"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RATE"):
		return "THROTTLING"
	default:
		return "OTHER"
	}
}

// AsStandardError finds a StandardError anywhere in err's chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}
