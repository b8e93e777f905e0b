package predicthouseprice

import (
	"context"
	"time"

	apperrors "house-price-workers/internal/common/errors"
	"house-price-workers/internal/common/logger"
	"house-price-workers/internal/common/metrics"
	"house-price-workers/internal/history"
	"house-price-workers/internal/pricing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "predict-house-price"
)

// Estimator values one house.
type Estimator interface {
	Predict(ctx context.Context, f pricing.HouseFeatures) (*pricing.Valuation, error)
}

type Handler struct {
	config       *Config
	estimator    Estimator
	recorder     history.Recorder
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, estimator Estimator, recorder history.Recorder, log logger.Logger) *Handler {
	if recorder == nil {
		recorder = history.Nop{}
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		estimator:    estimator,
		recorder:     recorder,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := ParseInput(job.Variables)
	if err != nil {
		h.failJob(context.Background(), client, job, apperrors.NewParseError(err))
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(context.Background(), client, job, pricing.ToStandardError(err))
		return
	}

	h.completeJob(context.Background(), client, job, output)
}

// Execute validates the form values, values the house and records the result.
// A history failure is logged and does not fail the valuation.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	features, err := pricing.DecodeFeatures(input.Features)
	if err != nil {
		return nil, err
	}

	valuation, err := h.estimator.Predict(ctx, features)
	if err != nil {
		return nil, err
	}

	h.record(ctx, valuation)

	primary := valuation.Primary()
	h.logger.Info("house valued", map[string]interface{}{
		"valuationId": valuation.ID,
		"requestId":   input.RequestID,
		"model":       primary.Model,
		"price":       primary.Formatted,
	})

	return &Output{
		ValuationID:    valuation.ID,
		Estimates:      valuation.Estimates,
		Price:          primary.Price,
		FormattedPrice: primary.Formatted,
		Currency:       valuation.Currency,
		Model:          primary.Model,
		ValuedAt:       valuation.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (h *Handler) record(ctx context.Context, v *pricing.Valuation) {
	if h.config.HistoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.HistoryTimeout)
		defer cancel()
	}
	if err := h.recorder.Record(ctx, v); err != nil {
		h.logger.Warn("valuation history not written", map[string]interface{}{
			"valuationId": v.ID,
			"error":       err.Error(),
		})
	}
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.failJob(ctx, client, job, apperrors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}
