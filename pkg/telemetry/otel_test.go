package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupProvider_NoEndpointIsNoop(t *testing.T) {
	prevMeter := otel.GetMeterProvider()

	shutdown, err := SetupProvider(context.Background(), Config{ServiceName: "cxv"})
	require.NoError(t, err)
	assert.Same(t, prevMeter, otel.GetMeterProvider())
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupProvider_InstallsTracerAndMeterProviders(t *testing.T) {
	prevTracer := otel.GetTracerProvider()
	prevMeter := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTracer)
		otel.SetMeterProvider(prevMeter)
		ResetMetricsForTest()
	})

	shutdown, err := SetupProvider(context.Background(), Config{
		ServiceName: "cxv",
		Endpoint:    "127.0.0.1:4317",
		Insecure:    true,
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "tracer provider is %T", otel.GetTracerProvider())
	_, ok = otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, ok, "meter provider is %T", otel.GetMeterProvider())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Nothing listens on the endpoint, so the final flush may fail.
	_ = shutdown(ctx)
}
