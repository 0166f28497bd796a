package adapter

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/srediag/gwbridge"

// GlobalTelemetry returns a tracer and meter from the globally registered
// OpenTelemetry providers. Both are no-ops until an SDK is installed.
func GlobalTelemetry() (trace.Tracer, metric.Meter) {
	return otel.GetTracerProvider().Tracer(instrumentationName),
		otel.GetMeterProvider().Meter(instrumentationName)
}
