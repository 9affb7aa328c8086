package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// tracer/meter are the bare OTel API handles. Statistics exporters are
// out of scope here: this package wires the otel/otel-metric/otel-trace
// API surface directly (no otelhttp middleware is used), but leaves
// exporter/SDK configuration to whatever process wires a real
// TracerProvider/MeterProvider (or none, since the no-op global
// implementations satisfy every call below with zero overhead).
var (
	tracer = otel.Tracer("github.com/wayfinder/wayfinder")
	meter  = otel.Meter("github.com/wayfinder/wayfinder")
)

var connectDuration, _ = meter.Float64Histogram(
	"wayfinder.upstream.connect_duration",
	metric.WithDescription("Time spent establishing an upstream connection, in seconds."),
	metric.WithUnit("s"),
)

// StartStreamSpan starts a span covering one proxied request/response
// stream, tagged with its StreamInfo ID for correlation with access logs.
func StartStreamSpan(ctx context.Context, streamID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "proxy.stream", trace.WithAttributes(
		attribute.String("stream.id", streamID),
	))
}

// RecordConnectDuration records how long a dial to cluster took.
func RecordConnectDuration(ctx context.Context, cluster string, d time.Duration) {
	connectDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("cluster", cluster),
	))
}
