package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Observability owns the OTel meter and tracer providers of the process.
// A nil *Observability is valid and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter

	jobCounter        otelmetric.Int64Counter
	jobDuration       otelmetric.Float64Histogram
	valuationCounter  otelmetric.Int64Counter
	valuationDuration otelmetric.Float64Histogram
}

type Options struct {
	ServiceName    string
	JaegerEndpoint string  // empty disables span export
	SampleRatio    float64 // 0 means always sample
}

func New(opts Options) *Observability {
	o := &Observability{}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
	} else {
		o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter))
		otel.SetMeterProvider(o.meterProvider)
		o.meter = o.meterProvider.Meter(opts.ServiceName)
		o.initInstruments()
	}

	if opts.JaegerEndpoint != "" {
		tp, err := newTracerProvider(opts)
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			o.tracerProvider = tp
			otel.SetTracerProvider(tp)
		}
	}

	return o
}

func (o *Observability) initInstruments() {
	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.valuationCounter, _ = o.meter.Int64Counter(
		"valuations.processed",
		otelmetric.WithDescription("Number of house valuations by outcome"),
	)
	o.valuationDuration, _ = o.meter.Float64Histogram(
		"valuations.duration",
		otelmetric.WithDescription("End to end valuation duration"),
		otelmetric.WithUnit("ms"),
	)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordValuation(ctx context.Context, outcome string, duration time.Duration) {
	if o == nil || o.valuationCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	o.valuationCounter.Add(ctx, 1, attrs)
	o.valuationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Failed to flush spans: %v", err)
		}
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
