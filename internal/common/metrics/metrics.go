// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	ValuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "house_valuations_total",
			Help: "Valuation requests by outcome",
		},
		[]string{"outcome"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "house_inference_duration_seconds",
			Help:    "Time spent in a single model prediction",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2},
		},
		[]string{"model"},
	)

	PredictedPrice = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "house_predicted_price",
			Help:    "Distribution of predicted prices",
			Buckets: prometheus.ExponentialBuckets(50000, 2, 10),
		},
		[]string{"model"},
	)

	ArtifactLoadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_artifact_load_failures_total",
			Help: "Model, manifest or schema loads that failed",
		},
		[]string{"reason"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
