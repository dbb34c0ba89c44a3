package amqp

import (
	"context"
	"testing"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTableCarrier(t *testing.T) {
	c := tableCarrier(amqp091.Table{
		"as-string": "value",
		"as-bytes":  []byte("bytes"),
		"as-int":    int64(7),
	})

	assert.Equal(t, "value", c.Get("as-string"))
	assert.Equal(t, "bytes", c.Get("as-bytes"))
	assert.Equal(t, "", c.Get("as-int"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("traceparent", "00-abc")
	assert.Equal(t, "00-abc", c.Get("traceparent"))
	assert.Len(t, c.Keys(), 4)
}

func TestTraceRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := amqp091.Table{}
	injectTrace(ctx, headers)
	require.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(extractTrace(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
	assert.True(t, got.IsSampled())
}

func TestExtractTrace_NoHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, extractTrace(ctx, nil))
}
