package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the OTLP counterparts of the Prometheus operation metrics.
type Instruments struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewInstruments creates the vault instruments on the global meter provider.
// They are no-ops until Init installs a metrics exporter.
func NewInstruments() (*Instruments, error) {
	return newInstruments(otel.Meter(InstrumentationName))
}

func newInstruments(meter metric.Meter) (*Instruments, error) {
	operations, err := meter.Int64Counter("stakevault.operations",
		metric.WithDescription("Vault operations by name and outcome."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("stakevault.operation.duration",
		metric.WithDescription("Vault operation latency."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Instruments{operations: operations, duration: duration}, nil
}

// RecordOperation counts one finished operation and its latency.
func (i *Instruments) RecordOperation(ctx context.Context, name, outcome string, elapsed time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("outcome", outcome),
	)
	i.operations.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}
