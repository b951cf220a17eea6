package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Config describes the telemetry bootstrap options.
type Config struct {
	ServiceName  string
	Endpoint     string
	Environment  string
	Insecure     bool
	Headers      map[string]string
	ResourceTags map[string]string
}

// SetupProvider initialises the process-wide OpenTelemetry tracer and meter providers
// using the supplied configuration and returns a shutdown function that callers must
// invoke during graceful termination to flush buffered spans and metrics.
func SetupProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		// No endpoint configured, return no-op shutdown
		return func(context.Context) error { return nil }, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	traceExporter, err := otlptrace.New(dialCtx, otlptracegrpc.NewClient(traceClientOptions(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(dialCtx, metricClientOptions(cfg)...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	for k, v := range cfg.ResourceTags {
		attrs = append(attrs, attribute.String(k, v))
	}

	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		_ = metricExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithMaxExportBatchSize(100), sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricExportInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		return errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
	}, nil
}

const metricExportInterval = 15 * time.Second

func traceClientOptions(cfg Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return append(opts, otlptracegrpc.WithDialOption(
		grpc.WithReturnConnectionError(), //nolint:staticcheck // Requested alternative to grpc.WithBlock for connection errors.
	))
}

func metricClientOptions(cfg Config) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	} else {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
	}
	return opts
}

// Redaction instructs RedactAttributes how to treat one attribute key.
// Strategy is one of drop, mask, hash or replace.
type Redaction struct {
	Attribute string
	Strategy  string
}

// defaultDropKeys never leave the process.
var defaultDropKeys = []string{
	"http.request.header.authorization",
	"http.request.header.x-api-key",
	"http.response.header.set_cookie",
	"request.body",
	"response.body",
	"policy.private_properties",
}

// RedactAttributes applies the default deny-list plus the supplied redactions to
// attrs before they are attached to spans.
func RedactAttributes(redactions []Redaction, attrs []attribute.KeyValue) []attribute.KeyValue {
	if len(attrs) == 0 {
		return attrs
	}

	dropKeys := make(map[string]struct{}, len(defaultDropKeys))
	for _, key := range defaultDropKeys {
		dropKeys[key] = struct{}{}
	}

	strategies := make(map[string]string, len(redactions))
	for _, r := range redactions {
		strategy := strings.ToLower(r.Strategy)
		if strategy == "" {
			strategy = "drop"
		}
		strategies[r.Attribute] = strategy
	}

	redacted := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		key := string(kv.Key)
		if _, drop := dropKeys[key]; drop {
			continue
		}

		switch strategies[key] {
		case "drop":
			continue
		case "mask":
			redacted = append(redacted, attribute.String(key, maskValue(kv.Value.Emit())))
		case "hash":
			redacted = append(redacted, attribute.String(key, hashValue(kv.Value.Emit())))
		case "replace", "redact":
			redacted = append(redacted, attribute.String(key, "[REDACTED]"))
		default:
			redacted = append(redacted, kv)
		}
	}

	return redacted
}

// maskValue keeps the first and last four characters.
func maskValue(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}

// hashValue produces a deterministic digest so redacted values still correlate.
func hashValue(s string) string {
	if s == "" {
		return "[REDACTED:empty]"
	}
	sum := sha256.Sum256([]byte(s))
	return "[REDACTED:sha256:" + hex.EncodeToString(sum[:8]) + "]"
}
