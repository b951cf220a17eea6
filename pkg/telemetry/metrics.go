package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Validation outcomes recorded on metrics and spans.
const (
	OutcomeValid             = "valid"
	OutcomeInvalid           = "invalid"
	OutcomeValidationFailure = "validation_failure"
	OutcomeInvalidRequest    = "invalid_request"
	OutcomeInternalError     = "internal_error"
	OutcomeRateLimited       = "rate_limited"
)

var (
	metricsOnce         sync.Once
	metricsInitErr      error
	validationCounter   metric.Int64Counter
	messageCounter      metric.Int64Counter
	validationHistogram metric.Float64Histogram
	stageHistogram      metric.Float64Histogram
)

// ValidationMetrics captures the fields recorded for one pipeline run.
type ValidationMetrics struct {
	DocumentType string
	Outcome      string
	FailedStage  string
	Duration     time.Duration
	Messages     int
}

// StageMetrics captures the fields recorded for one pipeline stage.
type StageMetrics struct {
	Stage    string
	Duration time.Duration
	Failed   bool
}

// RecordValidation emits the counters and histograms describing a pipeline run.
func RecordValidation(ctx context.Context, m ValidationMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("document.type", m.DocumentType),
		attribute.String("validation.outcome", m.Outcome),
	}
	if m.FailedStage != "" {
		attrs = append(attrs, attribute.String("validation.failed_stage", m.FailedStage))
	}

	validationCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		validationHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if m.Messages > 0 {
		messageCounter.Add(ctx, int64(m.Messages), metric.WithAttributes(attrs...))
	}
}

// RecordStage emits the latency of a single pipeline stage.
func RecordStage(ctx context.Context, m StageMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "ok"
	if m.Failed {
		outcome = "error"
	}
	stageHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(
		attribute.String("validation.stage", m.Stage),
		attribute.String("stage.outcome", outcome),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("cxv.pipeline")

		validationCounter, metricsInitErr = meter.Int64Counter(
			"cxv.validation.requests_total",
			metric.WithDescription("Policy definition validations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		messageCounter, metricsInitErr = meter.Int64Counter(
			"cxv.validation.messages_total",
			metric.WithDescription("Semantic violation messages returned to callers"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		validationHistogram, metricsInitErr = meter.Float64Histogram(
			"cxv.validation.duration_ms",
			metric.WithDescription("Observed end-to-end validation latency"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		stageHistogram, metricsInitErr = meter.Float64Histogram(
			"cxv.validation.stage.duration_ms",
			metric.WithDescription("Observed latency per pipeline stage"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}

// RecordValidationEvent attaches a coarse-grained validation event to the provided span
// without leaking the document itself.
func RecordValidationEvent(span trace.Span, outcome string, failedStage string, messages int) {
	if span == nil || !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("validation.outcome", outcome),
		attribute.Int("validation.messages.count", messages),
	}

	if failedStage != "" {
		attrs = append(attrs, attribute.String("validation.failed_stage", failedStage))
	}

	span.AddEvent("validation.completed", trace.WithAttributes(attrs...))
}
