package amqp

import (
	"context"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
)

// propagator carries W3C trace context in the traceparent/tracestate headers.
var propagator = propagation.TraceContext{}

// tableCarrier adapts an amqp091.Table to a propagation carrier. Header
// values may arrive as strings or byte slices depending on the publisher.
type tableCarrier amqp091.Table

func (c tableCarrier) Get(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (c tableCarrier) Set(key, value string) { c[key] = value }

func (c tableCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func injectTrace(ctx context.Context, headers amqp091.Table) {
	propagator.Inject(ctx, tableCarrier(headers))
}

func extractTrace(ctx context.Context, headers amqp091.Table) context.Context {
	if headers == nil {
		return ctx
	}
	return propagator.Extract(ctx, tableCarrier(headers))
}
