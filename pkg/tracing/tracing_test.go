package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

const inboundTraceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

// restoreGlobals puts the global provider and propagator back after t.
func restoreGlobals(t *testing.T) {
	t.Helper()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func TestInitTracer_DisabledStillPropagates(t *testing.T) {
	restoreGlobals(t)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	shutdown, err := InitTracer(context.Background(), DefaultConfig("search-service"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.False(t, isSDK, "disabled tracing must not install an exporting provider")

	in := http.Header{}
	in.Set("Traceparent", inboundTraceparent)
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(in))

	out := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out))
	assert.Equal(t, inboundTraceparent, out.Get("Traceparent"))
}

func TestInitTracer_Enabled(t *testing.T) {
	restoreGlobals(t)

	// Batched export is async, so an unroutable endpoint still initializes.
	cfg := Config{
		ServiceName:    "search-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "127.0.0.1:0",
		SampleRate:     0.5,
		Enabled:        true,
	}

	shutdown, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "global provider should be the SDK provider")
}

func TestPropagator_CarriesBaggage(t *testing.T) {
	member, err := baggage.NewMember("reindex_run", "r-17")
	require.NoError(t, err)
	bag, err := baggage.New(member)
	require.NoError(t, err)
	ctx := baggage.ContextWithBaggage(context.Background(), bag)

	h := http.Header{}
	Propagator().Inject(ctx, propagation.HeaderCarrier(h))

	got := baggage.FromContext(Propagator().Extract(context.Background(), propagation.HeaderCarrier(h)))
	assert.Equal(t, "r-17", got.Member("reindex_run").Value())
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, Propagator().Fields())
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, Config{
		ServiceName:    "search-service",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
	}, DefaultConfig("search-service"))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want sdktrace.Sampler
	}{
		{7, sdktrace.AlwaysSample()},
		{1, sdktrace.AlwaysSample()},
		{0.25, sdktrace.TraceIDRatioBased(0.25)},
		{0, sdktrace.NeverSample()},
		{-1, sdktrace.NeverSample()},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want.Description(), sampler(tt.rate).Description(), "rate %v", tt.rate)
	}
}

func TestRecordError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("search")

	spanFor := func(name string, err error) {
		_, span := tracer.Start(context.Background(), name, trace.WithSpanKind(trace.SpanKindInternal))
		RecordError(span, err)
		span.End()
	}
	spanFor("engine.Restore", errors.New("snapshot version 9 unsupported"))
	spanFor("engine.Search", nil)

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "snapshot version 9 unsupported", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	assert.Empty(t, spans[1].Events())
}
