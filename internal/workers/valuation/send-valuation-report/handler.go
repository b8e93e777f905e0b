package sendvaluationreport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsnotify "house-price-workers/internal/common/aws"
	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/metrics"
	"house-price-workers/internal/common/validation"
	"house-price-workers/internal/history"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
)

const (
	TaskType = "send-valuation-report"
)

// Notifier delivers the report. *aws.Notifier satisfies it.
type Notifier interface {
	EmailEnabled() bool
	SMSEnabled() bool
	SendEmail(ctx context.Context, msg awsnotify.Email) (string, error)
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type Handler struct {
	config       *Config
	notifier     Notifier
	history      history.Reader
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

// NewHandler builds the handler. reader may be nil, in which case the
// estimates must travel with the job.
func NewHandler(config *Config, notifier Notifier, reader history.Reader, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		notifier:     notifier,
		history:      reader,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, apperrors.NewParseError(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		stdErr, ok := apperrors.AsStandardError(err)
		if !ok {
			stdErr = apperrors.NewInternalError(err)
		}
		h.failJob(client, job, stdErr)
		return
	}

	h.completeJob(client, job, output)
}

// Execute sends the report by email and, when there is no email or
// SMSForEveryReport is set, by SMS. Delivery failures are retryable.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := h.validate(input); err != nil {
		return nil, err
	}

	estimates := input.Estimates
	if len(estimates) == 0 {
		entry, err := h.lookup(ctx, input.ValuationID)
		if err != nil {
			return nil, err
		}
		estimates = entry.Estimates
	}
	if len(estimates) == 0 {
		return nil, apperrors.NewValuationNotFoundError(input.ValuationID)
	}

	text, html, sms, err := render(input.ValuationID, estimates)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("render report: %w", err))
	}

	output := &Output{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}

	if input.Email != "" && h.notifier.EmailEnabled() {
		id, err := h.notifier.SendEmail(ctx, awsnotify.Email{
			To:      input.Email,
			Subject: h.config.Subject,
			Text:    text,
			HTML:    html,
		})
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError("email", err)
		}
		output.EmailMessageID = id
		output.Status = StatusSent
	}

	wantSMS := output.EmailMessageID == "" || h.config.SMSForEveryReport
	if input.Phone != "" && wantSMS && h.notifier.SMSEnabled() {
		id, err := h.notifier.SendSMS(ctx, input.Phone, sms)
		if err != nil {
			return nil, apperrors.NewNotificationSendFailedError("sms", err)
		}
		output.SMSMessageID = id
		output.Status = StatusSent
	}

	if output.Status == StatusDisabled {
		h.logger.Warn("no delivery channel for valuation report", map[string]interface{}{
			"valuationId":  input.ValuationID,
			"emailEnabled": h.notifier.EmailEnabled(),
			"smsEnabled":   h.notifier.SMSEnabled(),
		})
	}
	return output, nil
}

func (h *Handler) validate(input *Input) error {
	if input.ValuationID == "" {
		return apperrors.NewInvalidRecipientError("valuationId is required")
	}
	if input.Email == "" && input.Phone == "" {
		return apperrors.NewInvalidRecipientError("email or phone is required")
	}
	if input.Email != "" && !validation.ValidateEmail(input.Email) {
		return apperrors.NewInvalidRecipientError(fmt.Sprintf("invalid email: %s", input.Email))
	}
	if input.Phone != "" && !validation.ValidatePhone(input.Phone) {
		return apperrors.NewInvalidRecipientError(fmt.Sprintf("invalid phone: %s", input.Phone))
	}
	return nil
}

func (h *Handler) lookup(ctx context.Context, valuationID string) (*history.Entry, error) {
	if h.history == nil {
		return nil, apperrors.NewValuationNotFoundError(valuationID)
	}
	return h.history.Get(ctx, valuationID)
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.failJob(client, job, apperrors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
		"status": output.Status,
	})
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(context.Background(), client, job, stdErr)
}
