package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInitTracingWithoutExporter(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), Config{ServiceName: "listing-crawler", SampleRatio: 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, shutdown(context.Background())) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "probe")
	defer span.End()
	require.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	require.NotEmpty(t, carrier.Get("traceparent"))
}
