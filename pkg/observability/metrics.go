package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter returns the meter of the current global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// RecordCount adds n to the OpenTelemetry counter called name. Instrument
// creation errors are ignored and leave the measurement unrecorded.
func RecordCount(ctx context.Context, name string, n int64, attrs map[string]string) {
	counter, err := Meter().Int64Counter(name)
	if err != nil {
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	counter.Add(ctx, n, metric.WithAttributes(kvs...))
}
