package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := tracer
	tracer = tp.Tracer("test")
	t.Cleanup(func() { tracer = previous })
	return recorder
}

func TestStartSpan_WithoutTracer(t *testing.T) {
	previous := tracer
	tracer = nil
	t.Cleanup(func() { tracer = previous })

	ctx := context.Background()
	got, span := StartSpan(ctx, "noop", SlotIDKey.String("s1"))
	assert.Equal(t, ctx, got)
	assert.False(t, span.SpanContext().IsValid())
	EndSpan(span, errors.New("ignored"))
}

func TestStartSpan_RecordsAttributesAndError(t *testing.T) {
	recorder := recordSpans(t)

	attrs := append([]attribute.KeyValue{OperationKey.String("accept")}, Actor("alice", "student")...)
	_, span := StartSpan(context.Background(), "ConsultationService.transitionOffer", attrs...)
	EndSpan(span, errors.New("offer is not pending"))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "ConsultationService.transitionOffer", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.ElementsMatch(t, []attribute.KeyValue{
		OperationKey.String("accept"),
		ActorIDKey.String("alice"),
		ActorRoleKey.String("student"),
	}, ended[0].Attributes())
}

func TestEndSpan_Success(t *testing.T) {
	recorder := recordSpans(t)

	_, span := StartSpan(context.Background(), "BookingService.BookSlot")
	EndSpan(span, nil)

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}

func TestActor_Anonymous(t *testing.T) {
	assert.Empty(t, Actor("", ""))
}
